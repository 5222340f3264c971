package gamemeta

import (
	"context"
	"testing"

	"github.com/a30929959/gamemeta/artifactstore"
	"github.com/stretchr/testify/require"
)

func TestArtifactCacheStoreLayer(t *testing.T) {
	ctx := context.Background()
	store := artifactstore.NewMemory("t")

	a, err := newArtifactCache(Options{ArtifactCacheSize: -1, ArtifactStore: store}, nil)
	require.NoError(t, err)
	defer a.close()

	hash := gameHash("game.iso")
	_, ok := a.get(ctx, hash, SlotIcon)
	require.False(t, ok)

	a.put(ctx, hash, SlotIcon, []byte("icon bytes"))

	got, ok := a.get(ctx, hash, SlotIcon)
	require.True(t, ok)
	require.Equal(t, []byte("icon bytes"), got)

	// Slots are independent.
	_, ok = a.get(ctx, hash, SlotBackground0)
	require.False(t, ok)
}

func TestArtifactCacheMemoryLayer(t *testing.T) {
	ctx := context.Background()

	a, err := newArtifactCache(Options{ArtifactCacheSize: 1 << 20}, nil)
	require.NoError(t, err)
	defer a.close()

	hash := gameHash("game.pbp")
	a.put(ctx, hash, SlotBackground1, []byte("art"))
	a.mem.Wait()

	got, ok := a.get(ctx, hash, SlotBackground1)
	require.True(t, ok)
	require.Equal(t, []byte("art"), got)
}

func TestArtifactCacheDisabled(t *testing.T) {
	ctx := context.Background()

	a, err := newArtifactCache(Options{ArtifactCacheSize: -1}, nil)
	require.NoError(t, err)

	a.put(ctx, "abc", SlotIcon, []byte("x"))
	_, ok := a.get(ctx, "abc", SlotIcon)
	require.False(t, ok)

	var nilCache *artifactCache
	_, ok = nilCache.get(ctx, "abc", SlotIcon)
	require.False(t, ok)
	nilCache.put(ctx, "abc", SlotIcon, nil)
}

func TestGameHashStable(t *testing.T) {
	require.Equal(t, gameHash("game.iso"), gameHash("game.iso"))
	require.NotEqual(t, gameHash("game.iso"), gameHash("other.iso"))
}
