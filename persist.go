package gamemeta

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/a30929959/gamemeta/sfo"
	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
)

// Snapshot records are stored one per path under this key prefix, as an
// 8-byte xxhash of the JSON payload followed by the payload itself.
var persistKeyPrefix = []byte("entry:")

type persistRecord struct {
	Path     string      `json:"path"`
	FileType FileType    `json:"file_type"`
	Title    string      `json:"title"`
	Metadata []sfo.Entry `json:"metadata,omitempty"`
	Icon     []byte      `json:"icon,omitempty"`
}

// Save snapshots cached metadata (and encoded icon bytes, where the
// artifact cache still holds them) into a key-value store at dir. The
// snapshot holds metadata only; background art is re-fetched on demand
// after a Load.
func (c *Cache) Save(ctx context.Context, dir string) error {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("open snapshot store %s: %w", dir, err)
	}
	defer db.Close()

	wb := db.NewWriteBatch()
	defer wb.Cancel()

	for _, e := range c.snapshot() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := c.recordFor(ctx, e)
		if rec == nil {
			continue
		}
		payload, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		key := append(append([]byte(nil), persistKeyPrefix...), e.path...)
		if err := wb.Set(key, payload); err != nil {
			return fmt.Errorf("write snapshot record %s: %w", e.path, err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

// recordFor captures e's persistable state. Entries nothing has populated
// yet are skipped.
func (c *Cache) recordFor(ctx context.Context, e *Entry) *persistRecord {
	e.mu.Lock()
	rec := &persistRecord{
		Path:     e.path,
		Title:    e.title,
		Metadata: e.meta.Entries(),
	}
	e.mu.Unlock()
	rec.FileType = e.FileType()

	if rec.Title == "" && len(rec.Metadata) == 0 && rec.FileType == FileTypeUnknown {
		return nil
	}

	// The entry clears raw bytes after decode, so encoded icon bytes come
	// from the artifact cache when available.
	if data, ok := c.artifacts.get(ctx, gameHash(e.path), SlotIcon); ok {
		rec.Icon = data
	}
	return rec
}

// Load restores a snapshot written by Save. Existing entries win over
// snapshot records. Restored entries carry raw icon bytes, so the normal
// lazy-decode path warms them on first read; wantBackground starts false
// so background art is re-fetched through the usual upgrade job.
func (c *Cache) Load(ctx context.Context, dir string) error {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("open snapshot store %s: %w", dir, err)
	}
	defer db.Close()

	now := c.clock.Now()
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(persistKeyPrefix); it.ValidForPrefix(persistKeyPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec persistRecord
			err := it.Item().Value(func(val []byte) error {
				return decodeRecord(val, &rec)
			})
			if err != nil {
				slog.Warn("gamemeta: skipping corrupt snapshot record",
					"key", string(it.Item().Key()), "error", err)
				continue
			}
			c.restore(&rec, now)
		}
		return nil
	})
}

func (c *Cache) restore(rec *persistRecord, now time.Time) {
	if rec.Path == "" {
		return
	}

	c.mu.Lock()
	if _, exists := c.entries[rec.Path]; exists {
		c.mu.Unlock()
		return
	}
	e := newEntry(rec.Path, false, now)
	c.entries[rec.Path] = e
	c.mu.Unlock()

	e.setFileType(rec.FileType)
	if len(rec.Metadata) > 0 || rec.Title != "" {
		e.setMetadata(sfo.FromEntries(rec.Metadata), rec.Title)
	}
	e.storeRaw(SlotIcon, rec.Icon)
}

func encodeRecord(rec *persistRecord) ([]byte, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot record %s: %w", rec.Path, err)
	}
	out := make([]byte, 8+len(body))
	binary.LittleEndian.PutUint64(out[:8], xxhash.Sum64(body))
	copy(out[8:], body)
	return out, nil
}

func decodeRecord(data []byte, rec *persistRecord) error {
	if len(data) < 8 {
		return fmt.Errorf("record too short")
	}
	body := data[8:]
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(data[:8]) {
		return fmt.Errorf("record checksum mismatch")
	}
	return json.Unmarshal(body, rec)
}
