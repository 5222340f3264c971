package gamemeta

import (
	"github.com/a30929959/gamemeta/artifactstore"
	"github.com/a30929959/gamemeta/texture"
	"github.com/benbjohnson/clock"
)

// Options configures a Cache. Zero values fall back to defaults in New.
type Options struct {
	// Workers is the background worker pool size.
	Workers int

	// InstalledRoot is the path prefix of installed games, which have no
	// container to extract from.
	InstalledRoot string

	// DiscRoot is the directory on a mounted disc image holding the
	// metadata and image files.
	DiscRoot string

	// Decoder decodes extracted image bytes on foreground reads.
	Decoder texture.Decoder

	// Clock supplies timestamps for access times and job priorities.
	Clock clock.Clock

	// ArtifactCacheSize is the in-memory extracted-bytes cache budget in
	// bytes. Zero means the default; a negative value disables the
	// memory layer.
	ArtifactCacheSize int64

	// ArtifactStore, when set, persists extracted image bytes across
	// processes.
	ArtifactStore *artifactstore.Store

	// MaxEntries caps the entry map for Decimate; zero means unlimited.
	MaxEntries int

	Metrics *Metrics

	OnJobStart func(path string)
	OnJobEnd   func(path string, err error)
}

func DefaultOptions() Options {
	return Options{
		Workers:           1,
		InstalledRoot:     "ms0:/PSP/GAME",
		DiscRoot:          "/PSP_GAME",
		Decoder:           texture.PNGDecoder{},
		ArtifactCacheSize: 8 * 1024 * 1024,
	}
}
