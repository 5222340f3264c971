package blockdev

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/flate"
)

// CSO container layout: a 24-byte header followed by an index of
// numBlocks+1 little-endian uint32 entries. The top bit of an entry marks
// the block as stored uncompressed; the remaining bits, shifted left by
// the header's align value, give the block's byte position in the file.
const (
	csoHeaderSize = 24
	plainBlockBit = 0x80000000
)

var csoMagic = []byte{'C', 'I', 'S', 'O'}

type csoDevice struct {
	f         *os.File
	totalSize int64
	blockSize int
	align     uint8
	index     []uint32

	mu        sync.Mutex
	lastBlock int64
	lastData  []byte
}

// OpenCSO opens a CSO compressed disc image.
func OpenCSO(path string) (Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}
	d, err := newCSO(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: %s: %w", path, err)
	}
	return d, nil
}

func newCSO(f *os.File) (*csoDevice, error) {
	var hdr [csoHeaderSize]byte
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, csoHeaderSize), hdr[:]); err != nil {
		return nil, ErrCorrupt
	}
	if string(hdr[0:4]) != string(csoMagic) {
		return nil, ErrCorrupt
	}
	totalSize := int64(binary.LittleEndian.Uint64(hdr[8:16]))
	blockSize := int(binary.LittleEndian.Uint32(hdr[16:20]))
	align := hdr[21]
	if totalSize <= 0 || blockSize <= 0 {
		return nil, ErrCorrupt
	}

	numBlocks := (totalSize + int64(blockSize) - 1) / int64(blockSize)
	index := make([]uint32, numBlocks+1)
	idxBytes := make([]byte, len(index)*4)
	if _, err := f.ReadAt(idxBytes, csoHeaderSize); err != nil {
		return nil, ErrCorrupt
	}
	for i := range index {
		index[i] = binary.LittleEndian.Uint32(idxBytes[i*4 : i*4+4])
	}

	return &csoDevice{
		f:         f,
		totalSize: totalSize,
		blockSize: blockSize,
		align:     align,
		index:     index,
		lastBlock: -1,
	}, nil
}

func (d *csoDevice) Size() int64 { return d.totalSize }

func (d *csoDevice) Close() error { return d.f.Close() }

func (d *csoDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrCorrupt
	}
	if off >= d.totalSize {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && off < d.totalSize {
		block := off / int64(d.blockSize)
		inBlock := int(off % int64(d.blockSize))

		data, err := d.readBlock(block)
		if err != nil {
			return n, err
		}
		c := copy(p[n:], data[inBlock:])
		n += c
		off += int64(c)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *csoDevice) readBlock(block int64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if block == d.lastBlock {
		return d.lastData, nil
	}
	if block+1 >= int64(len(d.index)) {
		return nil, ErrCorrupt
	}

	ent := d.index[block]
	next := d.index[block+1]
	start := int64(ent&^plainBlockBit) << d.align
	end := int64(next&^plainBlockBit) << d.align
	if end < start {
		return nil, ErrCorrupt
	}

	// The final block may be short.
	size := int64(d.blockSize)
	if rem := d.totalSize - block*int64(d.blockSize); rem < size {
		size = rem
	}

	out := make([]byte, size)
	if ent&plainBlockBit != 0 {
		if _, err := d.f.ReadAt(out, start); err != nil && err != io.EOF {
			return nil, fmt.Errorf("blockdev: read block %d: %w", block, err)
		}
	} else {
		fr := flate.NewReader(io.NewSectionReader(d.f, start, end-start))
		if _, err := io.ReadFull(fr, out); err != nil {
			fr.Close()
			return nil, fmt.Errorf("blockdev: inflate block %d: %w", block, err)
		}
		fr.Close()
	}

	d.lastBlock = block
	d.lastData = out
	return out, nil
}
