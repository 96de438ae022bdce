// Package writer implements every mutation of the journal: creating,
// updating, and deleting events and items, saving canvas layouts, and
// materializing year folders. Each mutation follows the write-through
// order: compute the new file content, write the file(s), update the
// index rows to match, flush the index. The file tree is the source of
// truth, so a crash mid-sequence leaves at worst a stale index, which
// the next full rebuild reconciles.
package writer

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"memorylane/internal/frontmatter"
	"memorylane/internal/fs"
	"memorylane/internal/index"
	"memorylane/internal/journal"
	"memorylane/internal/naming"
)

// Writer mutates the journal tree and keeps the index in step.
type Writer struct {
	fs    fs.FS
	root  string
	store *index.Store
	clock journal.Clock
	ids   journal.IDGenerator
	log   journal.Logger
}

// New wires a writer over the journal root and the live index store.
func New(fsys fs.FS, root string, store *index.Store, clock journal.Clock, ids journal.IDGenerator, log journal.Logger) *Writer {
	if clock == nil {
		clock = journal.RealClock{}
	}

	if ids == nil {
		ids = journal.UUIDGenerator{}
	}

	if log == nil {
		log = journal.NewNopLogger()
	}

	return &Writer{fs: fsys, root: root, store: store, clock: clock, ids: ids, log: log}
}

func (w *Writer) abs(rel string) string { return filepath.Join(w.root, rel) }

// CreateEvent materializes a new event folder with its descriptor and
// indexes it. The owning year is created on demand.
func (w *Writer) CreateEvent(ctx context.Context, draft journal.EventDraft) (journal.Event, error) {
	if w.root == "" {
		return journal.Event{}, journal.ErrNoRoot
	}

	if draft.StartAt.IsZero() {
		return journal.Event{}, fmt.Errorf("create event: start date required")
	}

	yearEvent, err := w.EnsureYear(ctx, draft.StartAt.Year())
	if err != nil {
		return journal.Event{}, err
	}

	folderName, err := w.uniqueFolderName(yearEvent.FolderPath, naming.EventFolderName(draft.Title, draft.StartAt, draft.EndAt))
	if err != nil {
		return journal.Event{}, err
	}

	now := w.clock.Now()

	ev := journal.Event{
		ID:            w.ids.New(),
		Type:          journal.EventEvent,
		Title:         draft.Title,
		Description:   draft.Description,
		StartAt:       draft.StartAt,
		EndAt:         draft.EndAt,
		Location:      draft.Location,
		FeaturedPhoto: draft.FeaturedPhoto,
		Tags:          draft.Tags,
		ParentID:      yearEvent.ID,
		FolderPath:    filepath.Join(yearEvent.FolderPath, folderName),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if draft.Type == journal.EventPeriod {
		ev.Type = journal.EventPeriod
	}

	ev.FilePath = filepath.Join(ev.FolderPath, journal.EventDescriptor)

	if err := w.fs.MkdirAll(w.abs(ev.FolderPath), 0o755); err != nil {
		return journal.Event{}, fmt.Errorf("create event folder: %w", err)
	}

	content := frontmatter.Generate(journal.EncodeEvent(ev), "", journal.EventKeyOrder)

	if err := w.fs.WriteFileAtomic(w.abs(ev.FilePath), content, 0o644); err != nil {
		return journal.Event{}, fmt.Errorf("write event descriptor: %w", err)
	}

	if err := w.store.PutEvent(ctx, ev); err != nil {
		return journal.Event{}, err
	}

	if err := w.trackFile(ctx, ev.FilePath, journal.FileEvent); err != nil {
		return journal.Event{}, err
	}

	return ev, w.store.Flush(ctx)
}

// UpdateEvent merges changed fields into an existing descriptor,
// preserving its body text and any frontmatter keys the schema does not
// know, then re-indexes it.
func (w *Writer) UpdateEvent(ctx context.Context, id string, patch journal.EventPatch) (journal.Event, error) {
	if w.root == "" {
		return journal.Event{}, journal.ErrNoRoot
	}

	ev, err := w.store.GetEvent(ctx, id)
	if err != nil {
		return journal.Event{}, err
	}

	body := ""
	extra := frontmatter.Frontmatter{}

	if ev.FilePath != "" {
		raw, err := w.fs.ReadFile(w.abs(ev.FilePath))
		if err == nil {
			var fm frontmatter.Frontmatter

			fm, body = frontmatter.Parse(raw)
			extra = unknownKeys(fm, journal.EventKeyOrder)
		}
	} else {
		// Inferred events have no descriptor yet; editing one creates it.
		ev.FilePath = filepath.Join(ev.FolderPath, journal.EventDescriptor)
	}

	applyEventPatch(&ev, patch)
	ev.UpdatedAt = w.clock.Now()

	fm := journal.EncodeEvent(ev)
	for key, val := range extra {
		fm[key] = val
	}

	content := frontmatter.Generate(fm, body, journal.EventKeyOrder)

	if err := w.fs.WriteFileAtomic(w.abs(ev.FilePath), content, 0o644); err != nil {
		return journal.Event{}, fmt.Errorf("rewrite event descriptor: %w", err)
	}

	if err := w.store.PutEvent(ctx, ev); err != nil {
		return journal.Event{}, err
	}

	if err := w.trackFile(ctx, ev.FilePath, journal.FileEvent); err != nil {
		return journal.Event{}, err
	}

	return ev, w.store.Flush(ctx)
}

// DeleteEvent removes the event's folder recursively, then its index
// rows (cascading to items and canvas placements).
func (w *Writer) DeleteEvent(ctx context.Context, id string) error {
	if w.root == "" {
		return journal.ErrNoRoot
	}

	ev, err := w.store.GetEvent(ctx, id)
	if err != nil {
		return err
	}

	if ev.FolderPath != "" {
		if err := w.fs.RemoveAll(w.abs(ev.FolderPath)); err != nil {
			return fmt.Errorf("delete event folder: %w", err)
		}

		if err := w.store.DeleteFileEntriesUnder(ctx, ev.FolderPath); err != nil {
			return err
		}
	}

	if err := w.store.DeleteEvent(ctx, id); err != nil {
		return err
	}

	return w.store.Flush(ctx)
}

// EnsureYear returns the year event covering year, creating the folder,
// a minimal _year.md, and the index row when absent. Idempotent.
func (w *Writer) EnsureYear(ctx context.Context, year int) (journal.Event, error) {
	if w.root == "" {
		return journal.Event{}, journal.ErrNoRoot
	}

	existing, err := w.store.GetYearEvent(ctx, year)
	if err == nil {
		return existing, nil
	}

	folderName := naming.YearFolderName(year)
	now := w.clock.Now()

	ev := journal.Event{
		ID:         w.ids.New(),
		Type:       journal.EventYear,
		Title:      folderName,
		StartAt:    time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
		EndAt:      time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC),
		FolderPath: folderName,
		FilePath:   filepath.Join(folderName, journal.YearDescriptor),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := w.fs.MkdirAll(w.abs(folderName), 0o755); err != nil {
		return journal.Event{}, fmt.Errorf("create year folder: %w", err)
	}

	// A descriptor may exist on disk without an index row, for example
	// before the first rebuild. Adopt it instead of overwriting.
	if raw, err := w.fs.ReadFile(w.abs(ev.FilePath)); err == nil {
		fm, _ := frontmatter.Parse(raw)

		decoded, _ := journal.DecodeEvent(fm)

		if decoded.ID != "" {
			ev.ID = decoded.ID
		}

		if decoded.Title != "" {
			ev.Title = decoded.Title
		}

		if decoded.Description != "" {
			ev.Description = decoded.Description
		}

		if !decoded.StartAt.IsZero() {
			ev.StartAt = decoded.StartAt
		}

		if !decoded.EndAt.IsZero() {
			ev.EndAt = decoded.EndAt
		}

		if !decoded.CreatedAt.IsZero() {
			ev.CreatedAt = decoded.CreatedAt
		}

		if !decoded.UpdatedAt.IsZero() {
			ev.UpdatedAt = decoded.UpdatedAt
		}
	} else {
		content := frontmatter.Generate(journal.EncodeEvent(ev), "", journal.EventKeyOrder)

		if err := w.fs.WriteFileAtomic(w.abs(ev.FilePath), content, 0o644); err != nil {
			return journal.Event{}, fmt.Errorf("write year descriptor: %w", err)
		}
	}

	if err := w.store.PutEvent(ctx, ev); err != nil {
		return journal.Event{}, err
	}

	if err := w.trackFile(ctx, ev.FilePath, journal.FileYear); err != nil {
		return journal.Event{}, err
	}

	return ev, w.store.Flush(ctx)
}

// SaveCanvas serializes an event's full canvas layout to _canvas.json
// and replaces its placement rows. Placements without a slug fall back
// to the item ID as key.
func (w *Writer) SaveCanvas(ctx context.Context, eventID string, placements []journal.CanvasItem) error {
	if w.root == "" {
		return journal.ErrNoRoot
	}

	ev, err := w.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}

	canvasRel := filepath.Join(ev.FolderPath, journal.CanvasFileName)

	cf := journal.CanvasFile{
		Version:   journal.CanvasFileVersion,
		Items:     make([]journal.CanvasPlacement, 0, len(placements)),
		UpdatedAt: journal.FormatTimestamp(w.clock.Now()),
	}

	// Saving placements must not drop the viewport a previous save or a
	// manual edit left in the file.
	if raw, err := w.fs.ReadFile(w.abs(canvasRel)); err == nil {
		if prev, err := journal.ParseCanvas(raw); err == nil {
			cf.Viewport = prev.Viewport
		}
	}

	for _, p := range placements {
		key := p.ItemSlug
		if key == "" {
			key = p.ItemID
		}

		cf.Items = append(cf.Items, journal.CanvasPlacement{
			ItemSlug:  key,
			X:         p.X,
			Y:         p.Y,
			Scale:     p.Scale,
			Rotation:  p.Rotation,
			ZIndex:    p.ZIndex,
			TextScale: p.TextScale,
		})
	}

	data, err := journal.EncodeCanvas(cf)
	if err != nil {
		return err
	}

	if err := w.fs.WriteFileAtomic(w.abs(canvasRel), data, 0o644); err != nil {
		return fmt.Errorf("write canvas: %w", err)
	}

	if err := w.store.DeleteCanvasByEvent(ctx, eventID); err != nil {
		return err
	}

	for _, p := range placements {
		p.EventID = eventID

		if err := w.store.PutCanvasItem(ctx, p); err != nil {
			return err
		}
	}

	if err := w.trackFile(ctx, canvasRel, journal.FileCanvas); err != nil {
		return err
	}

	return w.store.Flush(ctx)
}

// trackFile refreshes the file_index row for a file the writer just
// wrote, so the next drift check does not mistake our own write for an
// external edit.
func (w *Writer) trackFile(ctx context.Context, relPath string, kind journal.FileKind) error {
	info, err := w.fs.Stat(w.abs(relPath))
	if err != nil {
		return fmt.Errorf("stat written file %s: %w", relPath, err)
	}

	return w.store.PutFileEntry(ctx, journal.FileIndexEntry{
		Path:      relPath,
		Kind:      kind,
		ModTime:   info.ModTime(),
		Size:      info.Size(),
		IndexedAt: w.clock.Now(),
	})
}

// uniqueFolderName appends " 2", " 3", ... until the candidate does not
// exist inside parentRel.
func (w *Writer) uniqueFolderName(parentRel, base string) (string, error) {
	candidate := base

	for i := 2; ; i++ {
		exists, err := w.fs.Exists(w.abs(filepath.Join(parentRel, candidate)))
		if err != nil {
			return "", fmt.Errorf("check folder name: %w", err)
		}

		if !exists {
			return candidate, nil
		}

		candidate = base + " " + strconv.Itoa(i)
	}
}

// unknownKeys returns the entries of fm whose keys are not in known.
func unknownKeys(fm frontmatter.Frontmatter, known []string) frontmatter.Frontmatter {
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}

	out := frontmatter.Frontmatter{}

	for key, val := range fm {
		if !knownSet[key] {
			out[key] = val
		}
	}

	return out
}

func applyEventPatch(ev *journal.Event, patch journal.EventPatch) {
	if patch.Title != nil {
		ev.Title = *patch.Title
	}

	if patch.Description != nil {
		ev.Description = *patch.Description
	}

	if patch.StartAt != nil {
		ev.StartAt = *patch.StartAt
	}

	if patch.EndAt != nil {
		ev.EndAt = *patch.EndAt
	}

	if patch.ClearLocation {
		ev.Location = nil
	} else if patch.Location != nil {
		ev.Location = patch.Location
	}

	if patch.FeaturedPhoto != nil {
		ev.FeaturedPhoto = *patch.FeaturedPhoto
	}

	if patch.Tags != nil {
		ev.Tags = *patch.Tags
	}
}

// slugExists reports whether any file in the event folder already uses
// slug as its stem.
func (w *Writer) slugExists(folderRel, slug string) bool {
	entries, err := w.fs.ReadDir(w.abs(folderRel))
	if err != nil {
		return false
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) == slug {
			return true
		}
	}

	return false
}
