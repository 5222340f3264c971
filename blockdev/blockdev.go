// Package blockdev exposes disc images as random-access block devices.
// Plain images are served straight from the file; CSO images are
// decompressed per block on demand.
package blockdev

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrCorrupt = errors.New("blockdev: corrupt image")

// Device is a random-access view over a disc image.
type Device interface {
	ReadAt(p []byte, off int64) (int, error)
	Size() int64
	Close() error
}

// New constructs a device for the image at path, selecting the backend by
// file extension.
func New(path string) (Device, error) {
	if strings.EqualFold(filepath.Ext(path), ".cso") {
		return OpenCSO(path)
	}
	return OpenFile(path)
}

type fileDevice struct {
	f    *os.File
	size int64
}

// OpenFile opens a plain (uncompressed) disc image.
func OpenFile(path string) (Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: stat %s: %w", path, err)
	}
	return &fileDevice{f: f, size: st.Size()}, nil
}

func (d *fileDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

func (d *fileDevice) Size() int64 { return d.size }

func (d *fileDevice) Close() error { return d.f.Close() }
