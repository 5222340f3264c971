// Package isofs is a read-only ISO9660 filesystem over a block device.
// It implements just what metadata loading needs: existence checks and
// whole-file reads by absolute path.
package isofs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/a30929959/gamemeta/blockdev"
)

var (
	ErrNotFound = errors.New("isofs: file not found")
	ErrNoVolume = errors.New("isofs: no primary volume descriptor")
)

const (
	sectorSize = 2048

	descPrimary    = 1
	descTerminator = 255

	flagDirectory = 0x02

	rootRecordOffset = 156
)

type dirRecord struct {
	name   string
	extent uint32
	size   uint32
	isDir  bool
}

// FS is a mounted ISO9660 volume.
type FS struct {
	dev  blockdev.Device
	root dirRecord
}

// New mounts the volume on dev. The device stays owned by the caller.
func New(dev blockdev.Device) (*FS, error) {
	sector := make([]byte, sectorSize)
	for lba := int64(16); ; lba++ {
		if _, err := dev.ReadAt(sector, lba*sectorSize); err != nil {
			return nil, ErrNoVolume
		}
		if string(sector[1:6]) != "CD001" {
			return nil, ErrNoVolume
		}
		switch sector[0] {
		case descPrimary:
			root, ok := parseDirRecord(sector[rootRecordOffset:])
			if !ok {
				return nil, ErrNoVolume
			}
			return &FS{dev: dev, root: root}, nil
		case descTerminator:
			return nil, ErrNoVolume
		}
	}
}

func parseDirRecord(b []byte) (dirRecord, bool) {
	if len(b) < 33 {
		return dirRecord{}, false
	}
	recLen := int(b[0])
	nameLen := int(b[32])
	if recLen == 0 || 33+nameLen > recLen || 33+nameLen > len(b) {
		return dirRecord{}, false
	}
	name := string(b[33 : 33+nameLen])
	switch name {
	case "\x00":
		name = "."
	case "\x01":
		name = ".."
	default:
		// Identifiers carry a ";1" version suffix.
		if i := strings.IndexByte(name, ';'); i >= 0 {
			name = name[:i]
		}
	}
	return dirRecord{
		name:   name,
		extent: binary.LittleEndian.Uint32(b[2:6]),
		size:   binary.LittleEndian.Uint32(b[10:14]),
		isDir:  b[25]&flagDirectory != 0,
	}, true
}

// walk resolves an absolute slash-separated path to its directory record.
// Matching is case-insensitive.
func (fs *FS) walk(path string) (dirRecord, error) {
	cur := fs.root
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." {
			continue
		}
		if !cur.isDir {
			return dirRecord{}, ErrNotFound
		}
		next, err := fs.lookup(cur, part)
		if err != nil {
			return dirRecord{}, err
		}
		cur = next
	}
	return cur, nil
}

func (fs *FS) lookup(dir dirRecord, name string) (dirRecord, error) {
	data, err := fs.readExtent(dir)
	if err != nil {
		return dirRecord{}, err
	}

	off := 0
	for off < len(data) {
		recLen := int(data[off])
		if recLen == 0 {
			// Records do not straddle sector boundaries; a zero
			// length means the rest of the sector is padding.
			off = (off/sectorSize + 1) * sectorSize
			continue
		}
		if off+recLen > len(data) {
			break
		}
		rec, ok := parseDirRecord(data[off : off+recLen])
		if ok && strings.EqualFold(rec.name, name) {
			return rec, nil
		}
		off += recLen
	}
	return dirRecord{}, ErrNotFound
}

func (fs *FS) readExtent(rec dirRecord) ([]byte, error) {
	data := make([]byte, rec.size)
	if rec.size == 0 {
		return data, nil
	}
	if n, err := fs.dev.ReadAt(data, int64(rec.extent)*sectorSize); err != nil && n < len(data) {
		return nil, fmt.Errorf("isofs: read extent %d: %w", rec.extent, err)
	}
	return data, nil
}

// Exists reports whether path names a file or directory on the volume.
func (fs *FS) Exists(path string) bool {
	_, err := fs.walk(path)
	return err == nil
}

// ReadFile reads the file at path in full.
func (fs *FS) ReadFile(path string) ([]byte, error) {
	rec, err := fs.walk(path)
	if err != nil {
		return nil, err
	}
	if rec.isDir {
		return nil, fmt.Errorf("isofs: %s: is a directory", path)
	}
	return fs.readExtent(rec)
}
