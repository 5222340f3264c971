package gamemeta

import (
	"context"
	"testing"

	"github.com/a30929959/gamemeta/artifactstore"
	"github.com/a30929959/gamemeta/sfo"
	"github.com/a30929959/gamemeta/texture"
	"github.com/stretchr/testify/require"
)

func mustSFO(title string) []byte {
	return sfo.Encode([]sfo.Entry{{Key: "TITLE", Str: title}})
}

// runJob executes a load synchronously, bypassing the queue.
func runJob(c *Cache, e *Entry, backgroundOnly bool) {
	e.inFlight.Add(1)
	j := &loadJob{cache: c, entry: e, backgroundOnly: backgroundOnly}
	j.Run()
}

func TestLoadExecutable(t *testing.T) {
	c := newTestCache(t, Options{})

	for _, name := range []string{"boot.elf", "MODULE.PRX"} {
		e := c.GetEntry(name, false)
		runJob(c, e, false)
		require.Equal(t, FileTypeExecutable, e.FileType())
		require.Equal(t, "", e.Title())
		require.Nil(t, e.Metadata())
	}
}

func TestLoadInstalledGameIsNoop(t *testing.T) {
	c := newTestCache(t, Options{})

	e := c.GetEntry("ms0:/PSP/GAME/MYGAME", false)
	runJob(c, e, false)

	require.Equal(t, FileTypeUnknown, e.FileType())
	require.Equal(t, "", e.Title())
}

func TestLoadInvalidContainerLeavesEntryEmpty(t *testing.T) {
	c := newTestCache(t, Options{})

	// The path has the packaged extension but no such file exists.
	e := c.GetEntry("nonexistent.pbp", false)
	runJob(c, e, false)

	require.Equal(t, FileTypeUnknown, e.FileType())
	require.Equal(t, "", e.Title())
	for slot := SlotIcon; slot < numSlots; slot++ {
		require.Nil(t, e.Image(slot))
	}
}

func TestBackgroundOnlyJobSkipsMetadataAndIcon(t *testing.T) {
	dec := &fakeDecoder{}
	c := newTestCache(t, Options{Decoder: dec})

	path := writePBP(t, t.TempDir(), "game.pbp", "Bar", []byte("icon"), []byte("art"))
	e := c.GetEntry(path, true)
	runJob(c, e, true)

	require.Nil(t, e.Metadata())
	require.Equal(t, "", e.Title())

	e.mu.Lock()
	iconRaw := e.images[SlotIcon].raw
	bgRaw := e.images[SlotBackground1].raw
	e.mu.Unlock()
	require.Empty(t, iconRaw)
	require.Equal(t, []byte("art"), bgRaw)
}

func TestBackgroundOnlyJobServedFromArtifactStore(t *testing.T) {
	store := artifactstore.NewMemory("t")
	c := newTestCache(t, Options{ArtifactStore: store})

	// Seed the store for a path whose file no longer exists; the job
	// must fill the slots without touching the filesystem.
	path := "ghost.iso"
	ctx := context.Background()
	hash := gameHash(path)
	require.NoError(t, store.Write(ctx, store.ArtifactPath(hash, SlotBackground0.String()), []byte("art0")))
	require.NoError(t, store.Write(ctx, store.ArtifactPath(hash, SlotBackground1.String()), []byte("art1")))

	e := c.GetEntry(path, true)
	runJob(c, e, true)

	e.mu.Lock()
	bg0 := e.images[SlotBackground0].raw
	bg1 := e.images[SlotBackground1].raw
	e.mu.Unlock()
	require.Equal(t, []byte("art0"), bg0)
	require.Equal(t, []byte("art1"), bg1)
}

func TestFullJobPopulatesArtifactStore(t *testing.T) {
	store := artifactstore.NewMemory("t")
	c := newTestCache(t, Options{ArtifactStore: store, Decoder: texture.PNGDecoder{}})

	path := writePBP(t, t.TempDir(), "game.pbp", "Foo", pngBytes(t), nil)
	e := c.GetEntry(path, false)
	runJob(c, e, false)

	data, err := store.Read(context.Background(), store.ArtifactPath(gameHash(path), SlotIcon.String()))
	require.NoError(t, err)
	require.Equal(t, pngBytes(t), data)
}

func TestJobCallbacksAndInFlightCount(t *testing.T) {
	var startPath, endPath string
	c := newTestCache(t, Options{
		OnJobStart: func(p string) { startPath = p },
		OnJobEnd:   func(p string, err error) { endPath = p },
	})

	e := c.GetEntry("boot.elf", false)
	require.Equal(t, int32(1), e.inFlight.Load())
	runJob(c, e, false)

	// One decrement for the queued-but-never-run job is still pending;
	// the synchronous run accounted only for itself.
	require.Equal(t, int32(1), e.inFlight.Load())
	require.Equal(t, "boot.elf", startPath)
	require.Equal(t, "boot.elf", endPath)
}

func TestDiscImageLoadsFromISO(t *testing.T) {
	c := newTestCache(t, Options{Decoder: texture.PNGDecoder{}})

	path := writeISO(t, t.TempDir(), "game.iso", map[string][]byte{
		"PARAM.SFO": mustSFO("Disc Game"),
		"ICON0.PNG": pngBytes(t),
		"PIC0.PNG":  pngBytes(t),
		"PIC1.PNG":  pngBytes(t),
	})

	e := c.GetEntry(path, true)
	runJob(c, e, false)

	e2 := c.GetEntry(path, true)
	require.Same(t, e, e2)
	require.Equal(t, FileTypeDiscImage, e.FileType())
	require.Equal(t, "Disc Game", e.Title())
	require.NotNil(t, e.Image(SlotIcon))
	require.NotNil(t, e.Image(SlotBackground0))
	require.NotNil(t, e.Image(SlotBackground1))
}
