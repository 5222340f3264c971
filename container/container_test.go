package container

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildPBP assembles a container image from eight sub-file payloads in
// header order. Empty payloads yield zero-length sub-files.
func buildPBP(subs [8][]byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 'P', 'B', 'P'})
	binary.Write(&buf, binary.LittleEndian, uint32(0x00010000))

	off := uint32(8 + 8*4)
	for _, sub := range subs {
		binary.Write(&buf, binary.LittleEndian, off)
		off += uint32(len(sub))
	}
	for _, sub := range subs {
		buf.Write(sub)
	}
	return buf.Bytes()
}

func TestSubFileReads(t *testing.T) {
	var subs [8][]byte
	subs[0] = []byte("metadata block")
	subs[1] = []byte("icon bytes")
	subs[4] = []byte("background bytes")
	data := buildPBP(subs)

	cr, err := New(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	got, err := cr.SubFile(SubParamSFO)
	require.NoError(t, err)
	require.Equal(t, []byte("metadata block"), got)

	got, err = cr.SubFile(SubIcon0)
	require.NoError(t, err)
	require.Equal(t, []byte("icon bytes"), got)

	got, err = cr.SubFile(SubPic1)
	require.NoError(t, err)
	require.Equal(t, []byte("background bytes"), got)

	require.Equal(t, int64(0), cr.SubFileSize(SubPic0))
}

func TestAbsentSubFile(t *testing.T) {
	data := buildPBP([8][]byte{0: []byte("meta")})

	cr, err := New(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	_, err = cr.SubFile(SubPic1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidContainer(t *testing.T) {
	_, err := New(bytes.NewReader([]byte("garbage")), 7)
	require.ErrorIs(t, err, ErrInvalid)

	bad := buildPBP([8][]byte{})
	bad[0] = 'X'
	_, err = New(bytes.NewReader(bad), int64(len(bad)))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestDecreasingOffsetsRejected(t *testing.T) {
	data := buildPBP([8][]byte{0: []byte("meta"), 1: []byte("icon")})
	// Swap two offsets so they decrease.
	binary.LittleEndian.PutUint32(data[8:12], 60)
	binary.LittleEndian.PutUint32(data[12:16], 40)
	_, err := New(bytes.NewReader(data), int64(len(data)))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestOpenFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.pbp")
	data := buildPBP([8][]byte{0: []byte("meta")})
	require.NoError(t, os.WriteFile(path, data, 0644))

	cr, err := Open(path)
	require.NoError(t, err)
	defer cr.Close()

	got, err := cr.SubFile(SubParamSFO)
	require.NoError(t, err)
	require.Equal(t, []byte("meta"), got)
}
