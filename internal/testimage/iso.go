// Package testimage builds tiny ISO9660 volumes for tests: a primary
// volume descriptor, one directory under the root, and that directory's
// files.
package testimage

import "encoding/binary"

const sectorSize = 2048

const (
	sectorPVD        = 16
	sectorTerminator = 17
	sectorRootDir    = 18
	sectorSubDir     = 19
	sectorFirstFile  = 20
)

// BuildISO assembles a volume holding dirName under the root with the
// given files inside it. File data each occupy whole sectors starting at
// sector 20.
func BuildISO(dirName string, files map[string][]byte) []byte {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	// Deterministic extent assignment.
	for i := 0; i < len(names); i++ {
		for k := i + 1; k < len(names); k++ {
			if names[k] < names[i] {
				names[i], names[k] = names[k], names[i]
			}
		}
	}

	extents := make(map[string]uint32, len(names))
	next := uint32(sectorFirstFile)
	for _, name := range names {
		extents[name] = next
		next += uint32((len(files[name]) + sectorSize - 1) / sectorSize)
		if len(files[name]) == 0 {
			next++
		}
	}

	image := make([]byte, int(next)*sectorSize)
	sector := func(n uint32) []byte {
		return image[int(n)*sectorSize : (int(n)+1)*sectorSize]
	}

	// Primary volume descriptor.
	pvd := sector(sectorPVD)
	pvd[0] = 1
	copy(pvd[1:6], "CD001")
	pvd[6] = 1
	copy(pvd[156:], record("\x00", sectorRootDir, sectorSize, true))

	term := sector(sectorTerminator)
	term[0] = 255
	copy(term[1:6], "CD001")

	// Root directory: self, parent, the one subdirectory.
	root := sector(sectorRootDir)
	off := 0
	off += copy(root[off:], record("\x00", sectorRootDir, sectorSize, true))
	off += copy(root[off:], record("\x01", sectorRootDir, sectorSize, true))
	copy(root[off:], record(dirName, sectorSubDir, sectorSize, true))

	// Subdirectory: self, parent, the files.
	sub := sector(sectorSubDir)
	off = 0
	off += copy(sub[off:], record("\x00", sectorSubDir, sectorSize, true))
	off += copy(sub[off:], record("\x01", sectorRootDir, sectorSize, true))
	for _, name := range names {
		off += copy(sub[off:], record(name+";1", extents[name], uint32(len(files[name])), false))
	}

	for _, name := range names {
		copy(image[int(extents[name])*sectorSize:], files[name])
	}

	return image
}

func record(name string, extent, size uint32, isDir bool) []byte {
	nameLen := len(name)
	recLen := 33 + nameLen
	if recLen%2 == 1 {
		recLen++
	}
	b := make([]byte, recLen)
	b[0] = byte(recLen)
	binary.LittleEndian.PutUint32(b[2:6], extent)
	binary.BigEndian.PutUint32(b[6:10], extent)
	binary.LittleEndian.PutUint32(b[10:14], size)
	binary.BigEndian.PutUint32(b[14:18], size)
	if isDir {
		b[25] = 0x02
	}
	b[32] = byte(nameLen)
	copy(b[33:], name)
	return b
}
