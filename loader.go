package gamemeta

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/a30929959/gamemeta/blockdev"
	"github.com/a30929959/gamemeta/container"
	"github.com/a30929959/gamemeta/isofs"
	"github.com/a30929959/gamemeta/sfo"
)

// titleKey is the metadata key holding the display title.
const titleKey = "TITLE"

// File names on a mounted disc image, relative to Options.DiscRoot.
const (
	discParamSFO = "PARAM.SFO"
	discIcon0    = "ICON0.PNG"
	discPic0     = "PIC0.PNG"
	discPic1     = "PIC1.PNG"
)

// loadJob populates one entry from its source container on a worker. A
// backgroundOnly job fetches just the background images and leaves
// metadata and icon untouched, which makes upgrade re-submissions
// idempotent. Every entry write goes through the entry's own lock in a
// short critical section; the job holds no other shared state.
type loadJob struct {
	cache          *Cache
	entry          *Entry
	backgroundOnly bool
}

func (j *loadJob) Priority() float64 {
	return j.entry.priority()
}

func (j *loadJob) Run() {
	start := j.cache.clock.Now()
	defer j.entry.inFlight.Add(-1)

	if j.cache.opts.OnJobStart != nil {
		j.cache.opts.OnJobStart(j.entry.path)
	}

	err := j.load()
	if err != nil {
		// Invalid or unreadable sources are not errors to callers; the
		// entry simply stays unpopulated.
		slog.Debug("gamemeta: load aborted", "path", j.entry.path, "error", err)
	}

	j.cache.metrics.ObserveJobDone(j.cache.clock.Now().Sub(start))
	if j.cache.opts.OnJobEnd != nil {
		j.cache.opts.OnJobEnd(j.entry.path, err)
	}
}

func (j *loadJob) load() error {
	path := j.entry.path
	switch {
	case strings.HasPrefix(path, j.cache.opts.InstalledRoot):
		// Installed games keep their metadata unpacked on disk; there is
		// no container to extract from yet.
		return nil
	case hasExt(path, ".pbp"):
		return j.loadPackaged(path)
	case hasExt(path, ".elf"), hasExt(path, ".prx"):
		j.entry.setFileType(FileTypeExecutable)
		return nil
	default:
		return j.loadDiscImage(path)
	}
}

func hasExt(path, ext string) bool {
	return strings.EqualFold(filepath.Ext(path), ext)
}

func (j *loadJob) loadPackaged(path string) error {
	ctx := context.Background()
	hash := gameHash(path)

	var cr *container.Reader
	open := func() error {
		if cr != nil {
			return nil
		}
		var err error
		cr, err = container.Open(path)
		return err
	}
	defer func() {
		if cr != nil {
			cr.Close()
		}
	}()

	if !j.backgroundOnly {
		if err := open(); err != nil {
			return err
		}
		j.entry.setFileType(FileTypePackaged)

		if data, err := cr.SubFile(container.SubParamSFO); err == nil {
			j.applyMetadata(data)
		} else {
			slog.Debug("gamemeta: no metadata block", "path", path, "error", err)
		}

		j.fetchSlot(ctx, hash, SlotIcon, func() ([]byte, error) {
			if err := open(); err != nil {
				return nil, err
			}
			return cr.SubFile(container.SubIcon0)
		})
	}

	if j.entry.WantBackground() {
		j.fetchSlot(ctx, hash, SlotBackground1, func() ([]byte, error) {
			if err := open(); err != nil {
				return nil, err
			}
			return cr.SubFile(container.SubPic1)
		})
	}

	return nil
}

func (j *loadJob) loadDiscImage(path string) error {
	ctx := context.Background()
	hash := gameHash(path)

	j.entry.setFileType(FileTypeDiscImage)

	var dev blockdev.Device
	var fs *isofs.FS
	mount := func() error {
		if fs != nil {
			return nil
		}
		d, err := blockdev.New(path)
		if err != nil {
			return err
		}
		f, err := isofs.New(d)
		if err != nil {
			d.Close()
			return fmt.Errorf("mount %s: %w", path, err)
		}
		dev, fs = d, f
		return nil
	}
	defer func() {
		if dev != nil {
			dev.Close()
		}
	}()

	root := j.cache.opts.DiscRoot

	if !j.backgroundOnly {
		if err := mount(); err != nil {
			return err
		}

		if data, err := fs.ReadFile(root + "/" + discParamSFO); err == nil {
			j.applyMetadata(data)
		} else {
			slog.Debug("gamemeta: no metadata file", "path", path, "error", err)
		}

		j.fetchSlot(ctx, hash, SlotIcon, func() ([]byte, error) {
			if err := mount(); err != nil {
				return nil, err
			}
			return fs.ReadFile(root + "/" + discIcon0)
		})
	}

	if j.entry.WantBackground() {
		for slot, name := range map[ImageSlot]string{
			SlotBackground0: discPic0,
			SlotBackground1: discPic1,
		} {
			j.fetchSlot(ctx, hash, slot, func() ([]byte, error) {
				if err := mount(); err != nil {
					return nil, err
				}
				return fs.ReadFile(root + "/" + name)
			})
		}
	}

	return nil
}

// fetchSlot obtains encoded bytes for one image slot, consulting the
// artifact cache before extracting, and delivers them to the entry. A
// missing sub-resource is a soft miss, not a failure.
func (j *loadJob) fetchSlot(ctx context.Context, hash string, slot ImageSlot, extract func() ([]byte, error)) {
	if data, ok := j.cache.artifacts.get(ctx, hash, slot); ok {
		j.entry.storeRaw(slot, data)
		return
	}
	data, err := extract()
	if err != nil {
		slog.Debug("gamemeta: image not present", "path", j.entry.path, "slot", slot.String(), "error", err)
		return
	}
	j.entry.storeRaw(slot, data)
	j.cache.artifacts.put(ctx, hash, slot, data)
}

func (j *loadJob) applyMetadata(data []byte) {
	table, err := sfo.Parse(data)
	if err != nil {
		slog.Debug("gamemeta: bad metadata block", "path", j.entry.path, "error", err)
		return
	}
	j.entry.setMetadata(table, table.GetString(titleKey))
}
