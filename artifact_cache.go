package gamemeta

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/a30929959/gamemeta/artifactstore"
	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"
)

const defaultArtifactItemSize = 64 << 10

// artifactCache fronts extraction with two layers: an in-memory ristretto
// byte cache and an optional persistent artifact store. Either layer may be
// absent; a fully absent cache degrades to always-miss.
type artifactCache struct {
	mem     *ristretto.Cache[string, []byte]
	store   *artifactstore.Store
	metrics *Metrics
}

func newArtifactCache(opts Options, metrics *Metrics) (*artifactCache, error) {
	a := &artifactCache{store: opts.ArtifactStore, metrics: metrics}
	if opts.ArtifactCacheSize <= 0 {
		return a, nil
	}
	mem, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: artifactCacheCounters(opts.ArtifactCacheSize),
		MaxCost:     opts.ArtifactCacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	a.mem = mem
	return a, nil
}

func artifactCacheCounters(maxCost int64) int64 {
	entries := maxCost / defaultArtifactItemSize
	if entries < 1 {
		entries = 1
	}
	counters := entries * 10
	if counters < 1024 {
		counters = 1024
	}
	return counters
}

// gameHash derives the stable extraction key for a game path.
func gameHash(path string) string {
	return strconv.FormatUint(xxhash.Sum64String(path), 16)
}

func artifactKey(hash string, slot ImageSlot) string {
	var b strings.Builder
	b.Grow(len(hash) + 1 + 4)
	b.WriteString(hash)
	b.WriteByte(':')
	b.WriteString(slot.String())
	return b.String()
}

// get returns previously extracted bytes for one image slot, promoting
// store hits into the memory layer.
func (a *artifactCache) get(ctx context.Context, hash string, slot ImageSlot) ([]byte, bool) {
	if a == nil {
		return nil, false
	}
	key := artifactKey(hash, slot)
	if a.mem != nil {
		if data, ok := a.mem.Get(key); ok {
			a.metrics.ObserveArtifactLookup(true)
			return data, true
		}
	}
	if a.store != nil {
		data, err := a.store.Read(ctx, a.store.ArtifactPath(hash, slot.String()))
		if err == nil {
			if a.mem != nil {
				a.mem.Set(key, data, int64(len(data)))
			}
			a.metrics.ObserveArtifactLookup(true)
			return data, true
		}
	}
	a.metrics.ObserveArtifactLookup(false)
	return nil, false
}

// put records freshly extracted bytes in both layers. Store failures are
// logged and otherwise ignored; the cache is an optimization.
func (a *artifactCache) put(ctx context.Context, hash string, slot ImageSlot, data []byte) {
	if a == nil || len(data) == 0 {
		return
	}
	if a.mem != nil {
		a.mem.Set(artifactKey(hash, slot), data, int64(len(data)))
	}
	if a.store != nil {
		if err := a.store.Write(ctx, a.store.ArtifactPath(hash, slot.String()), data); err != nil {
			slog.Debug("gamemeta: artifact store write failed", "slot", slot.String(), "error", err)
		}
	}
}

func (a *artifactCache) close() {
	if a == nil {
		return
	}
	if a.mem != nil {
		a.mem.Close()
	}
}
