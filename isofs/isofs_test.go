package isofs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/a30929959/gamemeta/blockdev"
	"github.com/a30929959/gamemeta/internal/testimage"
	"github.com/stretchr/testify/require"
)

func mountImage(t *testing.T, files map[string][]byte) *FS {
	t.Helper()
	path := filepath.Join(t.TempDir(), "game.iso")
	require.NoError(t, os.WriteFile(path, testimage.BuildISO("PSP_GAME", files), 0644))

	dev, err := blockdev.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	fs, err := New(dev)
	require.NoError(t, err)
	return fs
}

func TestReadFile(t *testing.T) {
	fs := mountImage(t, map[string][]byte{
		"PARAM.SFO": []byte("metadata contents"),
		"ICON0.PNG": []byte("icon contents"),
	})

	data, err := fs.ReadFile("/PSP_GAME/PARAM.SFO")
	require.NoError(t, err)
	require.Equal(t, []byte("metadata contents"), data)

	data, err = fs.ReadFile("/PSP_GAME/ICON0.PNG")
	require.NoError(t, err)
	require.Equal(t, []byte("icon contents"), data)
}

func TestCaseInsensitiveLookup(t *testing.T) {
	fs := mountImage(t, map[string][]byte{"PARAM.SFO": []byte("x")})

	require.True(t, fs.Exists("/psp_game/param.sfo"))
	data, err := fs.ReadFile("/Psp_Game/Param.Sfo")
	require.NoError(t, err)
	require.Equal(t, []byte("x"), data)
}

func TestMissingFile(t *testing.T) {
	fs := mountImage(t, map[string][]byte{"PARAM.SFO": []byte("x")})

	require.False(t, fs.Exists("/PSP_GAME/PIC1.PNG"))
	_, err := fs.ReadFile("/PSP_GAME/PIC1.PNG")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = fs.ReadFile("/OTHER_DIR/PARAM.SFO")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDirectoryLookup(t *testing.T) {
	fs := mountImage(t, map[string][]byte{"PARAM.SFO": []byte("x")})

	require.True(t, fs.Exists("/PSP_GAME"))
	_, err := fs.ReadFile("/PSP_GAME")
	require.Error(t, err)
}

func TestNotAVolume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.iso")
	require.NoError(t, os.WriteFile(path, make([]byte, 40*1024), 0644))

	dev, err := blockdev.New(path)
	require.NoError(t, err)
	defer dev.Close()

	_, err = New(dev)
	require.ErrorIs(t, err, ErrNoVolume)
}
