// Package journal defines the domain model of the memory journal: events,
// items, canvas placements, and the bookkeeping records the sync engine
// keeps about tracked files. It also owns the content addressing
// convention shared by the indexer and the writer, the canvas JSON codec,
// and the serialized Service facade over the whole engine.
package journal

import (
	"strings"
	"time"
)

// Special filenames inside the journal tree. Everything else ending in
// .md inside an event folder is an item.
const (
	YearDescriptor  = "_year.md"
	EventDescriptor = "_event.md"
	CanvasFileName  = "_canvas.json"
)

// EventType classifies a row in the events table. Years are materialized
// as events of type year so the UI can query one table for the timeline.
type EventType string

const (
	EventYear   EventType = "year"
	EventPeriod EventType = "period"
	EventEvent  EventType = "event"
	EventItem   EventType = "item"
)

// ValidEventType reports whether t is one of the known event types.
func ValidEventType(t EventType) bool {
	switch t {
	case EventYear, EventPeriod, EventEvent, EventItem:
		return true
	}

	return false
}

// ItemType classifies an item within an event.
type ItemType string

const (
	ItemText  ItemType = "text"
	ItemPhoto ItemType = "photo"
	ItemVideo ItemType = "video"
	ItemLink  ItemType = "link"
	ItemAudio ItemType = "audio"
)

// ValidItemType reports whether t is one of the known item types.
func ValidItemType(t ItemType) bool {
	switch t {
	case ItemText, ItemPhoto, ItemVideo, ItemLink, ItemAudio:
		return true
	}

	return false
}

// Location is an optional geotag on an event.
type Location struct {
	Lat   float64
	Lng   float64
	Label string
}

// Event is a titled occurrence or period owning a folder of items. Year
// folders are mirrored into the index as events of type year.
type Event struct {
	ID          string
	Type        EventType
	Title       string
	Description string
	StartAt     time.Time
	EndAt       time.Time
	Location    *Location
	// FeaturedPhoto references an item by slug.
	FeaturedPhoto string
	Tags          []string
	// ParentID points at the year-kind event covering StartAt. Resolved
	// at index-build time, never by a database constraint.
	ParentID string
	// FilePath is the descriptor markdown file; FolderPath the owning
	// folder. Both are relative to the journal root.
	FilePath   string
	FolderPath string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Item is an atomic memory unit inside an event. Slug doubles as the
// filename stem of its markdown file and is the human-facing identity;
// ID is the stable one.
type Item struct {
	ID      string
	EventID string
	Type    ItemType
	Slug    string
	// Content follows the addressing convention: a file: reference for
	// media items, a URL for link items, plain text otherwise. See
	// IsFileRef and friends.
	Content    string
	Caption    string
	HappenedAt time.Time
	Place      string
	People     []string
	Tags       []string
	Category   string
	// Exif carries camera metadata verbatim from frontmatter.
	Exif      map[string]string
	FilePath  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanvasItem is a free-form 2D placement of an item on its event's
// canvas. Keyed by item slug on disk and by item ID in the index.
type CanvasItem struct {
	EventID   string
	ItemID    string
	ItemSlug  string
	X         float64
	Y         float64
	Scale     float64
	Rotation  float64
	ZIndex    int
	TextScale float64
}

// FileKind classifies a tracked file in the file_index table.
type FileKind string

const (
	FileYear   FileKind = "year"
	FileEvent  FileKind = "event"
	FileItem   FileKind = "item"
	FileCanvas FileKind = "canvas"
)

// FileIndexEntry records what the index knew about a tracked file at the
// last rebuild. The sync service diffs live stat results against these
// rows to detect external edits. Media files are deliberately not
// tracked; their sidecar markdown is.
type FileIndexEntry struct {
	Path        string
	Kind        FileKind
	ModTime     time.Time
	Size        int64
	ContentHash string
	IndexedAt   time.Time
}

// Content addressing. An item's Content string is one of: a file:
// reference to a sibling media file (path relative to the journal root),
// an inline data URI, a plain URL, or plain text. The indexer and the
// writer must agree on this convention exactly.

const fileRefPrefix = "file:"

// IsFileRef reports whether content is a file: reference.
func IsFileRef(content string) bool {
	return strings.HasPrefix(content, fileRefPrefix)
}

// FileRefPath extracts the root-relative path from a file: reference.
// Returns "" when content is not a file reference.
func FileRefPath(content string) string {
	if !IsFileRef(content) {
		return ""
	}

	return strings.TrimPrefix(content, fileRefPrefix)
}

// NewFileRef builds a file: reference from a root-relative path.
func NewFileRef(relPath string) string {
	return fileRefPrefix + relPath
}

// IsDataURI reports whether content is an inline data URI.
func IsDataURI(content string) bool {
	return strings.HasPrefix(content, "data:")
}

// IsURL reports whether content is a plain http(s) URL.
func IsURL(content string) bool {
	return strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://")
}

// mediaExts maps a lowercase file extension (with dot) to the item type
// its files carry.
var mediaExts = map[string]ItemType{
	".jpg":  ItemPhoto,
	".jpeg": ItemPhoto,
	".png":  ItemPhoto,
	".gif":  ItemPhoto,
	".webp": ItemPhoto,
	".heic": ItemPhoto,
	".avif": ItemPhoto,
	".mp4":  ItemVideo,
	".mov":  ItemVideo,
	".webm": ItemVideo,
	".m4v":  ItemVideo,
	".mp3":  ItemAudio,
	".m4a":  ItemAudio,
	".wav":  ItemAudio,
	".ogg":  ItemAudio,
	".flac": ItemAudio,
}

// MediaKindForExt returns the item type for a media file extension
// (".jpg", case-insensitive). ok is false for non-media extensions.
func MediaKindForExt(ext string) (ItemType, bool) {
	t, ok := mediaExts[strings.ToLower(ext)]

	return t, ok
}

// IsMediaExt reports whether ext is a recognized media extension.
func IsMediaExt(ext string) bool {
	_, ok := MediaKindForExt(ext)

	return ok
}
