package gamemeta

import (
	"context"
	"testing"

	"github.com/a30929959/gamemeta/artifactstore"
	"github.com/a30929959/gamemeta/sfo"
	"github.com/a30929959/gamemeta/texture"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c := newTestCache(t, Options{})
	e := c.GetEntry("game.iso", false)
	e.setFileType(FileTypeDiscImage)
	e.setMetadata(sfo.FromEntries([]sfo.Entry{
		{Key: "TITLE", Str: "Saved Game"},
		{Key: "REGION", Num: 32768, IsNum: true},
	}), "Saved Game")

	require.NoError(t, c.Save(ctx, dir))

	c2 := newTestCache(t, Options{})
	require.NoError(t, c2.Load(ctx, dir))
	require.Equal(t, 1, c2.Len())

	restored := c2.GetEntry("game.iso", false)
	require.Equal(t, FileTypeDiscImage, restored.FileType())
	require.Equal(t, "Saved Game", restored.Title())
	require.Equal(t, "Saved Game", restored.Metadata().GetString("TITLE"))
	n, ok := restored.Metadata().GetUint32("REGION")
	require.True(t, ok)
	require.Equal(t, uint32(32768), n)

	// Restored entries start without the background flag so a later
	// wantBackground lookup schedules the usual upgrade job.
	require.False(t, restored.WantBackground())
}

func TestSaveSkipsUnpopulatedEntries(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c := newTestCache(t, Options{})
	c.GetEntry("empty.iso", false)
	require.NoError(t, c.Save(ctx, dir))

	c2 := newTestCache(t, Options{})
	require.NoError(t, c2.Load(ctx, dir))
	require.Equal(t, 0, c2.Len())
}

func TestLoadDoesNotOverwriteLiveEntries(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c := newTestCache(t, Options{})
	e := c.GetEntry("game.iso", false)
	e.setFileType(FileTypeDiscImage)
	e.setMetadata(sfo.FromEntries([]sfo.Entry{{Key: "TITLE", Str: "Old"}}), "Old")
	require.NoError(t, c.Save(ctx, dir))

	c2 := newTestCache(t, Options{})
	live := c2.GetEntry("game.iso", false)
	live.setMetadata(sfo.FromEntries([]sfo.Entry{{Key: "TITLE", Str: "New"}}), "New")

	require.NoError(t, c2.Load(ctx, dir))
	require.Same(t, live, c2.GetEntry("game.iso", false))
	require.Equal(t, "New", live.Title())
}

func TestSaveCapturesIconFromArtifactStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := artifactstore.NewMemory("t")

	c := newTestCache(t, Options{ArtifactStore: store, Decoder: texture.PNGDecoder{}})
	path := writePBP(t, t.TempDir(), "game.pbp", "Iconic", pngBytes(t), nil)

	e := c.GetEntry(path, false)
	runJob(c, e, false)
	c.GetEntry(path, false) // decode consumes the raw bytes

	require.NoError(t, c.Save(ctx, dir))

	// A fresh cache sharing the artifact store restores the icon as raw
	// bytes; the first read decodes it lazily.
	c2 := newTestCache(t, Options{ArtifactStore: store, Decoder: texture.PNGDecoder{}})
	require.NoError(t, c2.Load(ctx, dir))

	restored := c2.GetEntry(path, false)
	require.Equal(t, "Iconic", restored.Title())
	require.NotNil(t, restored.Image(SlotIcon))
}

func TestDecodeRecordChecksum(t *testing.T) {
	rec := &persistRecord{Path: "x", Title: "y"}
	data, err := encodeRecord(rec)
	require.NoError(t, err)

	var out persistRecord
	require.NoError(t, decodeRecord(data, &out))
	require.Equal(t, *rec, out)

	data[len(data)-1] ^= 0xff
	require.Error(t, decodeRecord(data, &out))
	require.Error(t, decodeRecord(data[:4], &out))
}
