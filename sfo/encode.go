package sfo

import "encoding/binary"

// Encode serializes entries into a PARAM.SFO block. Entry order is
// preserved. String values are stored NUL-terminated.
func Encode(entries []Entry) []byte {
	keyTable := make([]byte, 0, 64)
	dataTable := make([]byte, 0, 256)
	index := make([]byte, 0, len(entries)*indexSize)

	for _, e := range entries {
		keyOff := uint16(len(keyTable))
		keyTable = append(keyTable, e.Key...)
		keyTable = append(keyTable, 0)

		dataOff := uint32(len(dataTable))
		var dataFmt uint16
		var dataLen, dataMax uint32
		if e.IsNum {
			dataFmt = fmtUint32
			dataLen, dataMax = 4, 4
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], e.Num)
			dataTable = append(dataTable, buf[:]...)
		} else {
			dataFmt = fmtString
			dataLen = uint32(len(e.Str) + 1)
			dataMax = dataLen
			dataTable = append(dataTable, e.Str...)
			dataTable = append(dataTable, 0)
		}
		// Data table entries are 4-byte aligned.
		for len(dataTable)%4 != 0 {
			dataTable = append(dataTable, 0)
			dataMax++
		}

		var ent [indexSize]byte
		binary.LittleEndian.PutUint16(ent[0:2], keyOff)
		binary.LittleEndian.PutUint16(ent[2:4], dataFmt)
		binary.LittleEndian.PutUint32(ent[4:8], dataLen)
		binary.LittleEndian.PutUint32(ent[8:12], dataMax)
		binary.LittleEndian.PutUint32(ent[12:16], dataOff)
		index = append(index, ent[:]...)
	}

	// Key table is padded to 4-byte alignment before the data table.
	for len(keyTable)%4 != 0 {
		keyTable = append(keyTable, 0)
	}

	keyTableStart := uint32(headerSize + len(index))
	dataTableStart := keyTableStart + uint32(len(keyTable))

	out := make([]byte, 0, int(dataTableStart)+len(dataTable))
	out = append(out, magic...)
	var hdr [16]byte
	binary.LittleEndian.PutUint32(hdr[0:4], 0x00000101)
	binary.LittleEndian.PutUint32(hdr[4:8], keyTableStart)
	binary.LittleEndian.PutUint32(hdr[8:12], dataTableStart)
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(entries)))
	out = append(out, hdr[:]...)
	out = append(out, index...)
	out = append(out, keyTable...)
	out = append(out, dataTable...)
	return out
}
