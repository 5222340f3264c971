// Package gamemeta is a concurrent metadata cache for game entries keyed
// by filesystem path. Metadata and encoded images are extracted by a
// prioritized background worker pool; image decoding happens lazily on the
// reading thread, only for entries that are actually looked at.
package gamemeta

import (
	"cmp"
	"log/slog"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
)

// Cache maps game paths to entries and owns the background work queue.
// Construct one per application with New; there is no package-level
// instance.
type Cache struct {
	opts      Options
	clock     clock.Clock
	queue     *WorkQueue
	metrics   *Metrics
	artifacts *artifactCache

	mu      sync.Mutex
	entries map[string]*Entry
}

// New creates a Cache. Call Start before the first lookup if background
// population is wanted; lookups themselves never block on I/O.
func New(opts Options) (*Cache, error) {
	d := DefaultOptions()
	opts.Workers = cmp.Or(opts.Workers, d.Workers)
	opts.InstalledRoot = cmp.Or(opts.InstalledRoot, d.InstalledRoot)
	opts.DiscRoot = cmp.Or(opts.DiscRoot, d.DiscRoot)
	opts.ArtifactCacheSize = cmp.Or(opts.ArtifactCacheSize, d.ArtifactCacheSize)
	if opts.Decoder == nil {
		opts.Decoder = d.Decoder
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	artifacts, err := newArtifactCache(opts, opts.Metrics)
	if err != nil {
		return nil, err
	}

	return &Cache{
		opts:      opts,
		clock:     opts.Clock,
		queue:     NewWorkQueue(opts.Workers),
		metrics:   opts.Metrics,
		artifacts: artifacts,
		entries:   make(map[string]*Entry),
	}, nil
}

// Start launches the background worker pool.
func (c *Cache) Start() {
	c.queue.Start()
}

// Stop prevents further background work from starting and waits for
// in-flight jobs to finish. Pending jobs are cancelled unrun.
func (c *Cache) Stop() {
	for _, job := range c.queue.Stop() {
		if lj, ok := job.(*loadJob); ok {
			lj.entry.inFlight.Add(-1)
		}
	}
}

// Close stops the cache and releases its internal caches.
func (c *Cache) Close() error {
	c.Stop()
	c.artifacts.close()
	return nil
}

// GetEntry returns the entry for path, creating it and scheduling a load
// on first sight. The returned entry may still be unpopulated; callers
// poll by calling GetEntry again. Never blocks on I/O. The reference stays
// valid until the next ClearAll or Decimate.
func (c *Cache) GetEntry(path string, wantBackground bool) *Entry {
	if path == "" {
		return nil
	}
	now := c.clock.Now()

	c.mu.Lock()
	e, ok := c.entries[path]
	if !ok {
		e = newEntry(path, wantBackground, now)
		c.entries[path] = e
		c.mu.Unlock()
		c.metrics.ObserveLookup(true, false)
		c.submit(e, false)
		return e
	}
	c.mu.Unlock()

	// Upgrading to background images mutates the existing entry in place
	// and schedules a background-only job. The entry is never replaced; a
	// job from the original submission may still hold it.
	upgraded := false
	if wantBackground && e.upgradeBackground() {
		upgraded = true
		c.submit(e, true)
	}

	// Just-in-time decode of any raw bytes the job has delivered, one
	// short critical section per slot so a concurrent writer is never
	// held off for the whole read.
	for slot := SlotIcon; slot < numSlots; slot++ {
		attempted, err := e.decodeSlot(slot, c.opts.Decoder, now)
		if attempted {
			c.metrics.ObserveDecode(err)
			if err != nil {
				slog.Debug("gamemeta: image decode failed",
					"path", path, "slot", slot.String(), "error", err)
			}
		}
	}

	e.touch(now)
	c.metrics.ObserveLookup(false, upgraded)
	return e
}

// submit schedules a load job for e. The in-flight count is raised before
// the job is visible to workers and dropped if the queue refuses it.
func (c *Cache) submit(e *Entry, backgroundOnly bool) {
	e.inFlight.Add(1)
	if !c.queue.Submit(&loadJob{cache: c, entry: e, backgroundOnly: backgroundOnly}) {
		e.inFlight.Add(-1)
		return
	}
	c.metrics.ObserveJobSubmitted()
}

// ClearAll drains the work queue, releases every entry's image resources
// and empties the map. This is the only blocking operation in the cache.
func (c *Cache) ClearAll() {
	c.queue.Flush()

	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()

	for _, e := range entries {
		e.releaseSlots(SlotIcon, SlotBackground0, SlotBackground1)
	}
	c.metrics.ObserveEviction(len(entries))
}

// ClearBackgroundImages releases both background image slots of every
// entry, keeping metadata, icons and the wantBackground flag warm. It does
// not drain the queue and does not remove entries.
func (c *Cache) ClearBackgroundImages() {
	for _, e := range c.snapshot() {
		e.releaseSlots(backgroundSlots...)
	}
}

// Decimate trims least-recently-accessed entries above Options.MaxEntries.
// Entries with a job in flight are skipped; their turn comes next call.
func (c *Cache) Decimate() {
	max := c.opts.MaxEntries
	if max <= 0 {
		return
	}

	c.mu.Lock()
	excess := len(c.entries) - max
	if excess <= 0 {
		c.mu.Unlock()
		return
	}
	candidates := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].lastAccessed.Load() < candidates[k].lastAccessed.Load()
	})
	var victims []*Entry
	for _, e := range candidates {
		if len(victims) == excess {
			break
		}
		if e.inFlight.Load() != 0 {
			continue
		}
		delete(c.entries, e.path)
		victims = append(victims, e)
	}
	c.mu.Unlock()

	for _, e := range victims {
		e.releaseSlots(SlotIcon, SlotBackground0, SlotBackground1)
	}
	c.metrics.ObserveEviction(len(victims))
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) snapshot() []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}
