// Package migrate performs the one-time export of a legacy database
// into a journal file tree. Earlier versions of the app kept the
// database as the only store; this walks its events, items, and canvas
// placements and materializes them as year folders, event folders,
// markdown files, and canvas JSON. It preserves legacy IDs and
// timestamps so nothing loses identity in the move. Run reindex
// afterwards; the export writes no index rows itself.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"memorylane/internal/frontmatter"
	"memorylane/internal/fs"
	"memorylane/internal/journal"
	"memorylane/internal/naming"
	"memorylane/internal/writer"
)

// Result summarizes an export run.
type Result struct {
	Years  int
	Events int
	Items  int
	Canvas int
	// Issues holds rows that could not be exported; the run continues
	// past them.
	Issues []journal.Issue
}

// Exporter reads a legacy database and writes the journal tree.
type Exporter struct {
	fs   fs.FS
	root string
	log  journal.Logger
}

// New wires an exporter targeting root.
func New(fsys fs.FS, root string, log journal.Logger) *Exporter {
	if log == nil {
		log = journal.NewNopLogger()
	}

	return &Exporter{fs: fsys, root: root, log: log}
}

// legacyEvent mirrors a row of the old events table.
type legacyEvent struct {
	id        string
	kind      string
	title     string
	startAt   time.Time
	endAt     time.Time
	parentID  string
	coverID   string
	createdAt time.Time
	updatedAt time.Time
}

// legacyItem mirrors a row of the old items table.
type legacyItem struct {
	id         string
	eventID    string
	kind       string
	content    string
	caption    string
	happenedAt time.Time
	placeLat   sql.NullFloat64
	placeLng   sql.NullFloat64
	placeLabel string
}

type legacyCanvas struct {
	eventID  string
	itemID   string
	x        float64
	y        float64
	scale    float64
	rotation float64
	zIndex   int
}

// Export reads the legacy database at dbPath and writes the full file
// tree under the exporter's root. Row-level problems are collected as
// issues; only structural failures abort the run.
func (e *Exporter) Export(ctx context.Context, dbPath string) (Result, error) {
	if e.root == "" {
		return Result{}, journal.ErrNoRoot
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return Result{}, fmt.Errorf("open legacy database: %w", err)
	}
	defer func() { _ = db.Close() }()

	var res Result

	events, err := e.loadEvents(ctx, db, &res)
	if err != nil {
		return res, err
	}

	items, err := e.loadItems(ctx, db, &res)
	if err != nil {
		return res, err
	}

	canvas, err := e.loadCanvas(ctx, db)
	if err != nil {
		return res, err
	}

	yearFolders, err := e.writeYears(events, &res)
	if err != nil {
		return res, err
	}

	itemsByEvent := make(map[string][]legacyItem)
	for _, it := range items {
		itemsByEvent[it.eventID] = append(itemsByEvent[it.eventID], it)
	}

	canvasByEvent := make(map[string][]legacyCanvas)
	for _, c := range canvas {
		canvasByEvent[c.eventID] = append(canvasByEvent[c.eventID], c)
	}

	for _, ev := range events {
		if ev.kind == string(journal.EventYear) {
			continue
		}

		if err := e.writeEvent(ev, yearFolders, itemsByEvent[ev.id], canvasByEvent[ev.id], &res); err != nil {
			return res, err
		}
	}

	e.log.Info("legacy export complete",
		"years", res.Years,
		"events", res.Events,
		"items", res.Items,
		"issues", len(res.Issues))

	return res, nil
}

func (e *Exporter) loadEvents(ctx context.Context, db *sql.DB, res *Result) ([]legacyEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, type, COALESCE(title, ''), start_at, COALESCE(end_at, ''),
		       COALESCE(parent_id, ''), COALESCE(cover_media_id, ''),
		       created_at, updated_at
		FROM events ORDER BY start_at`)
	if err != nil {
		return nil, fmt.Errorf("query legacy events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []legacyEvent

	for rows.Next() {
		var ev legacyEvent

		var startAt, endAt, created, updated string

		err := rows.Scan(&ev.id, &ev.kind, &ev.title, &startAt, &endAt,
			&ev.parentID, &ev.coverID, &created, &updated)
		if err != nil {
			return nil, fmt.Errorf("scan legacy event: %w", err)
		}

		ev.startAt = e.parseTime(startAt, "events/"+ev.id, res)
		ev.endAt = e.parseTime(endAt, "events/"+ev.id, res)
		ev.createdAt = e.parseTime(created, "events/"+ev.id, res)
		ev.updatedAt = e.parseTime(updated, "events/"+ev.id, res)

		out = append(out, ev)
	}

	return out, rows.Err()
}

func (e *Exporter) loadItems(ctx context.Context, db *sql.DB, res *Result) ([]legacyItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, event_id, item_type, content, COALESCE(caption, ''),
		       COALESCE(happened_at, ''), place_lat, place_lng,
		       COALESCE(place_label, '')
		FROM items ORDER BY event_id, id`)
	if err != nil {
		return nil, fmt.Errorf("query legacy items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []legacyItem

	for rows.Next() {
		var it legacyItem

		var happenedAt string

		err := rows.Scan(&it.id, &it.eventID, &it.kind, &it.content,
			&it.caption, &happenedAt, &it.placeLat, &it.placeLng, &it.placeLabel)
		if err != nil {
			return nil, fmt.Errorf("scan legacy item: %w", err)
		}

		it.happenedAt = e.parseTime(happenedAt, "items/"+it.id, res)

		out = append(out, it)
	}

	return out, rows.Err()
}

func (e *Exporter) loadCanvas(ctx context.Context, db *sql.DB) ([]legacyCanvas, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT event_id, item_id, x, y, scale, rotation, z_index
		FROM canvas_items ORDER BY event_id, z_index`)
	if err != nil {
		return nil, fmt.Errorf("query legacy canvas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []legacyCanvas

	for rows.Next() {
		var c legacyCanvas

		err := rows.Scan(&c.eventID, &c.itemID, &c.x, &c.y, &c.scale, &c.rotation, &c.zIndex)
		if err != nil {
			return nil, fmt.Errorf("scan legacy canvas row: %w", err)
		}

		out = append(out, c)
	}

	return out, rows.Err()
}

// writeYears materializes one year folder per legacy year event, plus
// one per calendar year referenced by an event without a usable parent.
// Returns legacy event ID (or "year:NNNN") → year folder name.
func (e *Exporter) writeYears(events []legacyEvent, res *Result) (map[string]string, error) {
	folders := make(map[string]string)
	written := make(map[string]bool)

	writeYear := func(key string, year int, ev *legacyEvent) error {
		name := naming.YearFolderName(year)
		folders[key] = name

		if written[name] {
			return nil
		}

		if err := e.fs.MkdirAll(filepath.Join(e.root, name), 0o755); err != nil {
			return fmt.Errorf("create year folder %s: %w", name, err)
		}

		yearEv := journal.Event{
			Type:       journal.EventYear,
			Title:      name,
			StartAt:    time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
			EndAt:      time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC),
			FolderPath: name,
		}

		if ev != nil {
			yearEv.ID = ev.id
			yearEv.CreatedAt = ev.createdAt
			yearEv.UpdatedAt = ev.updatedAt
		}

		content := frontmatter.Generate(journal.EncodeEvent(yearEv), "", journal.EventKeyOrder)

		rel := filepath.Join(name, journal.YearDescriptor)
		if err := e.fs.WriteFileAtomic(filepath.Join(e.root, rel), content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}

		written[name] = true
		res.Years++

		return nil
	}

	for i := range events {
		ev := &events[i]
		if ev.kind != string(journal.EventYear) {
			continue
		}

		if err := writeYear(ev.id, ev.startAt.Year(), ev); err != nil {
			return nil, err
		}
	}

	// Events whose parent is missing still need a year to live in.
	for _, ev := range events {
		if ev.kind == string(journal.EventYear) {
			continue
		}

		if _, ok := folders[ev.parentID]; ok && ev.parentID != "" {
			continue
		}

		year := ev.startAt.Year()
		if year == 1 {
			year = time.Now().Year()
		}

		key := fmt.Sprintf("year:%04d", year)
		if err := writeYear(key, year, nil); err != nil {
			return nil, err
		}
	}

	return folders, nil
}

func (e *Exporter) writeEvent(ev legacyEvent, yearFolders map[string]string, items []legacyItem, canvas []legacyCanvas, res *Result) error {
	yearFolder, ok := yearFolders[ev.parentID]
	if !ok {
		year := ev.startAt.Year()
		if year == 1 {
			year = time.Now().Year()
		}

		yearFolder = yearFolders[fmt.Sprintf("year:%04d", year)]
	}

	title := ev.title
	if title == "" {
		title = "Untitled"
	}

	folderName := e.uniqueFolderName(yearFolder, naming.EventFolderName(title, ev.startAt, ev.endAt))
	folderRel := filepath.Join(yearFolder, folderName)

	if err := e.fs.MkdirAll(filepath.Join(e.root, folderRel), 0o755); err != nil {
		return fmt.Errorf("create event folder %s: %w", folderRel, err)
	}

	out := journal.Event{
		ID:            ev.id,
		Type:          journal.EventType(ev.kind),
		Title:         ev.title,
		StartAt:       ev.startAt,
		EndAt:         ev.endAt,
		FeaturedPhoto: ev.coverID,
		CreatedAt:     ev.createdAt,
		UpdatedAt:     ev.updatedAt,
	}

	content := frontmatter.Generate(journal.EncodeEvent(out), "", journal.EventKeyOrder)

	rel := filepath.Join(folderRel, journal.EventDescriptor)
	if err := e.fs.WriteFileAtomic(filepath.Join(e.root, rel), content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}

	res.Events++

	slugByID, err := e.writeItems(folderRel, ev, items, res)
	if err != nil {
		return err
	}

	if len(canvas) > 0 {
		if err := e.writeCanvas(folderRel, canvas, slugByID, res); err != nil {
			return err
		}
	}

	return nil
}

// writeItems emits one markdown file per legacy item, decoding inline
// data URIs into sibling media files. Returns item ID → slug for the
// canvas export.
func (e *Exporter) writeItems(folderRel string, ev legacyEvent, items []legacyItem, res *Result) (map[string]string, error) {
	slugByID := make(map[string]string, len(items))
	taken := make(map[string]bool)

	for _, it := range items {
		base := naming.Slug(it.caption, naming.DefaultSlugLen)
		if base == naming.FallbackSlug && it.caption == "" {
			base = fmt.Sprintf("%s-%d", it.kind, len(taken)+1)
		}

		slug := naming.UniqueSlug(base, func(s string) bool { return taken[s] })
		taken[slug] = true
		slugByID[it.id] = slug

		item := journal.Item{
			ID:         it.id,
			EventID:    ev.id,
			Type:       journal.ItemType(it.kind),
			Slug:       slug,
			Content:    it.content,
			Caption:    it.caption,
			HappenedAt: it.happenedAt,
			Place:      it.placeLabel,
		}

		if item.Place == "" && it.placeLat.Valid && it.placeLng.Valid {
			item.Place = fmt.Sprintf("%g,%g", it.placeLat.Float64, it.placeLng.Float64)
		}

		if item.HappenedAt.IsZero() {
			item.HappenedAt = ev.startAt
		}

		mediaFilename := ""

		if journal.IsDataURI(it.content) {
			data, ext, err := writer.DecodeDataURI(it.content)
			if err != nil {
				e.issue(res, filepath.Join(folderRel, slug+".md"), err)
			} else {
				mediaFilename = slug + ext

				mediaRel := filepath.Join(folderRel, mediaFilename)
				if err := e.fs.WriteFileAtomic(filepath.Join(e.root, mediaRel), data, 0o644); err != nil {
					return nil, fmt.Errorf("write media %s: %w", mediaRel, err)
				}

				item.Content = journal.NewFileRef(mediaRel)
			}
		}

		body := ""
		if item.Type == journal.ItemText {
			body = item.Content
		}

		content := frontmatter.Generate(journal.EncodeItem(item, mediaFilename), body, journal.ItemKeyOrder)

		rel := filepath.Join(folderRel, slug+".md")
		if err := e.fs.WriteFileAtomic(filepath.Join(e.root, rel), content, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", rel, err)
		}

		res.Items++
	}

	return slugByID, nil
}

func (e *Exporter) writeCanvas(folderRel string, canvas []legacyCanvas, slugByID map[string]string, res *Result) error {
	file := journal.CanvasFile{Version: journal.CanvasFileVersion}

	for _, c := range canvas {
		slug, ok := slugByID[c.itemID]
		if !ok {
			// Placement of an item that no longer exists.
			continue
		}

		file.Items = append(file.Items, journal.CanvasPlacement{
			ItemSlug: slug,
			X:        c.x,
			Y:        c.y,
			Scale:    c.scale,
			Rotation: c.rotation,
			ZIndex:   c.zIndex,
		})
	}

	if len(file.Items) == 0 {
		return nil
	}

	sort.Slice(file.Items, func(i, j int) bool {
		if file.Items[i].ZIndex != file.Items[j].ZIndex {
			return file.Items[i].ZIndex < file.Items[j].ZIndex
		}

		return file.Items[i].ItemSlug < file.Items[j].ItemSlug
	})

	data, err := journal.EncodeCanvas(file)
	if err != nil {
		return fmt.Errorf("encode canvas for %s: %w", folderRel, err)
	}

	rel := filepath.Join(folderRel, journal.CanvasFileName)
	if err := e.fs.WriteFileAtomic(filepath.Join(e.root, rel), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}

	res.Canvas += len(file.Items)

	return nil
}

func (e *Exporter) uniqueFolderName(yearFolder, base string) string {
	name := base

	for n := 2; ; n++ {
		exists, err := e.fs.Exists(filepath.Join(e.root, yearFolder, name))
		if err != nil || !exists {
			return name
		}

		name = fmt.Sprintf("%s %d", base, n)
	}
}

func (e *Exporter) parseTime(s, where string, res *Result) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := journal.ParseTimestamp(s)
	if err != nil {
		e.issue(res, where, fmt.Errorf("unparseable timestamp %q", s))

		return time.Time{}
	}

	return t
}

func (e *Exporter) issue(res *Result, path string, err error) {
	e.log.Warn("export issue", "path", path, "err", err)
	res.Issues = append(res.Issues, journal.Issue{Path: path, Err: err})
}
