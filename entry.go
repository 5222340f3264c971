package gamemeta

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/a30929959/gamemeta/sfo"
	"github.com/a30929959/gamemeta/texture"
	"github.com/segmentio/ksuid"
)

// FileType classifies how a game path is sourced.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypePackaged
	FileTypeExecutable
	FileTypeDiscImage
)

func (t FileType) String() string {
	switch t {
	case FileTypePackaged:
		return "packaged"
	case FileTypeExecutable:
		return "executable"
	case FileTypeDiscImage:
		return "disc-image"
	default:
		return "unknown"
	}
}

// ImageSlot identifies one of the three image resources of an entry.
type ImageSlot int

const (
	SlotIcon ImageSlot = iota
	SlotBackground0
	SlotBackground1

	numSlots = 3
)

func (s ImageSlot) String() string {
	switch s {
	case SlotIcon:
		return "icon"
	case SlotBackground0:
		return "pic0"
	case SlotBackground1:
		return "pic1"
	default:
		return "invalid"
	}
}

// backgroundSlots are the slots released by ClearBackgroundImages.
var backgroundSlots = []ImageSlot{SlotBackground0, SlotBackground1}

// imageState holds one slot's data. raw and decoded are never both set:
// decode consumes raw exactly once.
type imageState struct {
	raw       []byte
	decoded   texture.Image
	decodedAt time.Time
}

// Entry is the cached record for one game path. The entry is created by the
// cache, populated by a background job, and read by foreground callers; mu
// guards metadata, title, the image slots and wantBackground. fileType and
// lastAccessed are updated atomically and need no lock. The ksuid gives the
// entry a stable identity independent of map membership, and inFlight
// counts jobs still holding a reference so the cache never frees an entry
// out from under one.
type Entry struct {
	id   ksuid.KSUID
	path string

	fileType     atomic.Int32
	lastAccessed atomic.Int64
	inFlight     atomic.Int32

	mu             sync.Mutex
	meta           *sfo.Table
	title          string
	images         [numSlots]imageState
	wantBackground bool
}

func newEntry(path string, wantBackground bool, now time.Time) *Entry {
	e := &Entry{
		id:             ksuid.New(),
		path:           path,
		wantBackground: wantBackground,
	}
	e.lastAccessed.Store(now.UnixNano())
	return e
}

func (e *Entry) ID() ksuid.KSUID { return e.id }

func (e *Entry) Path() string { return e.path }

func (e *Entry) FileType() FileType {
	return FileType(e.fileType.Load())
}

func (e *Entry) setFileType(t FileType) {
	e.fileType.Store(int32(t))
}

// LastAccessed returns the time of the most recent successful read.
func (e *Entry) LastAccessed() time.Time {
	return time.Unix(0, e.lastAccessed.Load())
}

func (e *Entry) touch(now time.Time) {
	e.lastAccessed.Store(now.UnixNano())
}

// priority orders the entry's pending job: most recently accessed first.
func (e *Entry) priority() float64 {
	return float64(e.lastAccessed.Load())
}

// Title returns the game title parsed from the metadata block, "" until
// the background job delivers it.
func (e *Entry) Title() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.title
}

// Metadata returns the parsed metadata table, nil until loaded.
func (e *Entry) Metadata() *sfo.Table {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta
}

// Image returns the decoded image for slot, nil when not (yet) available.
// A nil image after the job completed means "no image", not "pending".
func (e *Entry) Image(slot ImageSlot) texture.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images[slot].decoded
}

// WantBackground reports whether background images were requested.
func (e *Entry) WantBackground() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wantBackground
}

func (e *Entry) setMetadata(t *sfo.Table, title string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.meta = t
	e.title = title
}

// storeRaw delivers encoded bytes for slot. A slot that already holds raw
// or decoded data keeps it, which makes redundant deliveries harmless.
func (e *Entry) storeRaw(slot ImageSlot, data []byte) {
	if len(data) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st := &e.images[slot]
	if len(st.raw) > 0 || st.decoded != nil {
		return
	}
	st.raw = data
}

// decodeSlot performs the one-shot raw-to-decoded transition for slot under
// the entry lock. Raw bytes are cleared whether or not decoding succeeds;
// a failed decode is not retried. Reports whether a decode was attempted.
func (e *Entry) decodeSlot(slot ImageSlot, dec texture.Decoder, now time.Time) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := &e.images[slot]
	if len(st.raw) == 0 {
		return false, nil
	}
	img, err := dec.Decode(st.raw)
	if err == nil {
		st.decoded = img
		st.decodedAt = now
	}
	st.raw = nil
	return true, err
}

// releaseSlots releases decoded resources and drops raw buffers for the
// given slots.
func (e *Entry) releaseSlots(slots ...ImageSlot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, slot := range slots {
		st := &e.images[slot]
		if st.decoded != nil {
			st.decoded.Release()
			st.decoded = nil
		}
		st.raw = nil
		st.decodedAt = time.Time{}
	}
}

// upgradeBackground flips wantBackground from false to true. Reports
// whether this call performed the upgrade.
func (e *Entry) upgradeBackground() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wantBackground {
		return false
	}
	e.wantBackground = true
	return true
}
