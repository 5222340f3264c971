// Package sfo parses PARAM.SFO metadata blocks into an ordered key/value
// table. The format is a small binary index over a key table and a data
// table; values are either UTF-8 strings or unsigned 32-bit integers.
package sfo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrInvalid   = errors.New("sfo: invalid metadata block")
	ErrTruncated = errors.New("sfo: truncated metadata block")
)

const (
	headerSize = 20
	indexSize  = 16

	fmtBytes  = 0x0004
	fmtString = 0x0204
	fmtUint32 = 0x0404
)

var magic = []byte{0x00, 'P', 'S', 'F'}

// Entry is a single parsed key/value pair. Exactly one of Str/Num carries
// the value, selected by IsNum.
type Entry struct {
	Key   string
	Str   string
	Num   uint32
	IsNum bool
}

// Table is an ordered key/value table parsed from a PARAM.SFO block.
// Order follows the block's index table.
type Table struct {
	entries []Entry
	index   map[string]int
}

// Parse decodes a raw PARAM.SFO block. A nil or empty block is ErrInvalid.
func Parse(data []byte) (*Table, error) {
	if len(data) < headerSize {
		return nil, ErrInvalid
	}
	if !bytes.Equal(data[:4], magic) {
		return nil, ErrInvalid
	}

	keyTableStart := binary.LittleEndian.Uint32(data[8:12])
	dataTableStart := binary.LittleEndian.Uint32(data[12:16])
	count := binary.LittleEndian.Uint32(data[16:20])

	if int64(keyTableStart) > int64(len(data)) || int64(dataTableStart) > int64(len(data)) {
		return nil, ErrTruncated
	}

	t := &Table{
		entries: make([]Entry, 0, count),
		index:   make(map[string]int, count),
	}

	for i := uint32(0); i < count; i++ {
		off := headerSize + int(i)*indexSize
		if off+indexSize > len(data) {
			return nil, ErrTruncated
		}
		keyOff := binary.LittleEndian.Uint16(data[off : off+2])
		dataFmt := binary.LittleEndian.Uint16(data[off+2 : off+4])
		dataLen := binary.LittleEndian.Uint32(data[off+4 : off+8])
		dataOff := binary.LittleEndian.Uint32(data[off+12 : off+16])

		key, err := readKey(data, keyTableStart, keyOff)
		if err != nil {
			return nil, err
		}

		start := int64(dataTableStart) + int64(dataOff)
		end := start + int64(dataLen)
		if start > int64(len(data)) || end > int64(len(data)) {
			return nil, ErrTruncated
		}
		raw := data[start:end]

		e := Entry{Key: key}
		switch dataFmt {
		case fmtUint32:
			if len(raw) < 4 {
				return nil, ErrTruncated
			}
			e.Num = binary.LittleEndian.Uint32(raw[:4])
			e.IsNum = true
		case fmtString, fmtBytes:
			e.Str = string(bytes.TrimRight(raw, "\x00"))
		default:
			return nil, fmt.Errorf("sfo: unknown value format 0x%04x for key %q", dataFmt, key)
		}

		t.index[key] = len(t.entries)
		t.entries = append(t.entries, e)
	}

	return t, nil
}

// FromEntries builds a table directly from already-parsed entries,
// preserving their order. Later duplicates win lookups.
func FromEntries(entries []Entry) *Table {
	t := &Table{
		entries: append([]Entry(nil), entries...),
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range t.entries {
		t.index[e.Key] = i
	}
	return t
}

func readKey(data []byte, tableStart uint32, keyOff uint16) (string, error) {
	start := int64(tableStart) + int64(keyOff)
	if start >= int64(len(data)) {
		return "", ErrTruncated
	}
	rest := data[start:]
	n := bytes.IndexByte(rest, 0)
	if n < 0 {
		n = len(rest)
	}
	return string(rest[:n]), nil
}

// GetString returns the string value for key, or "" when absent or numeric.
func (t *Table) GetString(key string) string {
	if t == nil {
		return ""
	}
	i, ok := t.index[key]
	if !ok || t.entries[i].IsNum {
		return ""
	}
	return t.entries[i].Str
}

// GetUint32 returns the numeric value for key and whether it was present
// as a number.
func (t *Table) GetUint32(key string) (uint32, bool) {
	if t == nil {
		return 0, false
	}
	i, ok := t.index[key]
	if !ok || !t.entries[i].IsNum {
		return 0, false
	}
	return t.entries[i].Num, true
}

// Has reports whether key is present.
func (t *Table) Has(key string) bool {
	if t == nil {
		return false
	}
	_, ok := t.index[key]
	return ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entries returns the parsed entries in table order. The returned slice is
// shared; callers must not mutate it.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	return t.entries
}
