// Package container reads PBP packaged game containers. A PBP file is a
// fixed header of eight sub-file offsets followed by the sub-files
// themselves; each sub-file is addressed by a well-known logical name.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrInvalid  = errors.New("container: not a valid packaged container")
	ErrNotFound = errors.New("container: sub-file not present")
)

// Logical sub-file names.
const (
	SubParamSFO = "PARAM.SFO"
	SubIcon0    = "ICON0.PNG"
	SubIcon1    = "ICON1.PMF"
	SubPic0     = "PIC0.PNG"
	SubPic1     = "PIC1.PNG"
	SubSnd0     = "SND0.AT3"
	SubDataPSP  = "DATA.PSP"
	SubDataPSAR = "DATA.PSAR"
)

const (
	numSubFiles = 8
	headerSize  = 8 + numSubFiles*4
)

var magic = []byte{0x00, 'P', 'B', 'P'}

var subIndex = map[string]int{
	SubParamSFO: 0,
	SubIcon0:    1,
	SubIcon1:    2,
	SubPic0:     3,
	SubPic1:     4,
	SubSnd0:     5,
	SubDataPSP:  6,
	SubDataPSAR: 7,
}

// Reader is an open packaged container. It keeps the underlying file open
// until Close; sub-file reads are independent and positional.
type Reader struct {
	r       io.ReaderAt
	size    int64
	offsets [numSubFiles]uint32
	closer  io.Closer
}

// Open opens and validates the container at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("container: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("container: stat %s: %w", path, err)
	}
	cr, err := New(f, st.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	cr.closer = f
	return cr, nil
}

// New validates a container served from an arbitrary ReaderAt of the given
// total size.
func New(r io.ReaderAt, size int64) (*Reader, error) {
	if size < headerSize {
		return nil, ErrInvalid
	}
	var hdr [headerSize]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, ErrInvalid
	}
	if hdr[0] != magic[0] || hdr[1] != magic[1] || hdr[2] != magic[2] || hdr[3] != magic[3] {
		return nil, ErrInvalid
	}

	cr := &Reader{r: r, size: size}
	for i := 0; i < numSubFiles; i++ {
		off := binary.LittleEndian.Uint32(hdr[8+i*4 : 12+i*4])
		if int64(off) > size {
			return nil, ErrInvalid
		}
		cr.offsets[i] = off
	}
	// Offsets must be non-decreasing; a hand-truncated header would
	// otherwise yield negative sub-file lengths.
	for i := 1; i < numSubFiles; i++ {
		if cr.offsets[i] < cr.offsets[i-1] {
			return nil, ErrInvalid
		}
	}
	return cr, nil
}

func (c *Reader) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func (c *Reader) span(name string) (int64, int64, error) {
	i, ok := subIndex[name]
	if !ok {
		return 0, 0, fmt.Errorf("container: unknown sub-file %q", name)
	}
	start := int64(c.offsets[i])
	end := c.size
	if i+1 < numSubFiles {
		end = int64(c.offsets[i+1])
	}
	return start, end, nil
}

// SubFileSize returns the size of the named sub-file, 0 when absent.
func (c *Reader) SubFileSize(name string) int64 {
	start, end, err := c.span(name)
	if err != nil {
		return 0
	}
	return end - start
}

// SubFile reads the named sub-file in full. Absent or empty sub-files
// return ErrNotFound.
func (c *Reader) SubFile(name string) ([]byte, error) {
	start, end, err := c.span(name)
	if err != nil {
		return nil, err
	}
	if end <= start {
		return nil, ErrNotFound
	}
	data := make([]byte, end-start)
	if _, err := c.r.ReadAt(data, start); err != nil {
		return nil, fmt.Errorf("container: read %s: %w", name, err)
	}
	return data, nil
}
