// Package indexer reconstructs the relational index from the journal
// file tree. A rebuild is always full: it scans into a fresh database
// and swaps it over the live one, so stale rows cannot survive a
// structural change. Per-file failures are collected and reported, never
// fatal to the scan.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"memorylane/internal/frontmatter"
	"memorylane/internal/fs"
	"memorylane/internal/index"
	"memorylane/internal/journal"
	"memorylane/internal/naming"
)

// rebuildFileName is the temp database a rebuild scans into, next to the
// live index file.
const rebuildFileName = "rebuild.sqlite"

// Indexer scans the file tree and rebuilds the index store.
type Indexer struct {
	fs    fs.FS
	root  string
	store *index.Store
	clock journal.Clock
	ids   journal.IDGenerator
	log   journal.Logger
}

// New wires an indexer. root is the journal root directory; store is the
// live index the rebuild will replace.
func New(fsys fs.FS, root string, store *index.Store, clock journal.Clock, ids journal.IDGenerator, log journal.Logger) *Indexer {
	if clock == nil {
		clock = journal.RealClock{}
	}

	if ids == nil {
		ids = journal.UUIDGenerator{}
	}

	if log == nil {
		log = journal.NewNopLogger()
	}

	return &Indexer{fs: fsys, root: root, store: store, clock: clock, ids: ids, log: log}
}

// Rebuild scans the whole tree into a fresh database and installs it
// over the live index. Three phases, in order: discover year folders,
// index each year, index each event folder (with its items and canvas)
// within the year. Per-file failures land in Result.Issues and the scan
// continues; the returned error is reserved for wholesale failure.
func (ix *Indexer) Rebuild(ctx context.Context) (journal.RebuildResult, error) {
	if ix.root == "" {
		return journal.RebuildResult{}, journal.ErrNoRoot
	}

	freshPath := filepath.Join(filepath.Dir(ix.store.Path()), rebuildFileName)

	fresh, err := index.OpenFresh(ctx, freshPath)
	if err != nil {
		return journal.RebuildResult{}, fmt.Errorf("open rebuild database: %w", err)
	}

	sc := &scan{Indexer: ix, out: fresh, now: ix.clock.Now()}

	if err := sc.run(ctx); err != nil {
		_ = fresh.Close()

		return journal.RebuildResult{}, err
	}

	if err := fresh.MetaSet(ctx, index.MetaSchemaVersion, fmt.Sprintf("%d", index.SchemaVersion)); err != nil {
		_ = fresh.Close()

		return journal.RebuildResult{}, err
	}

	builtAt := ix.clock.Now()

	if err := fresh.MetaSet(ctx, index.MetaLastFullIndex, journal.FormatTimestamp(builtAt)); err != nil {
		_ = fresh.Close()

		return journal.RebuildResult{}, err
	}

	if err := ix.store.ReplaceWith(ctx, fresh); err != nil {
		_ = fresh.Close()

		return journal.RebuildResult{}, fmt.Errorf("install rebuilt index: %w", err)
	}

	sc.result.BuiltAt = builtAt

	if n := len(sc.result.Issues); n > 0 {
		ix.log.Warn("rebuild finished with issues", "issues", n)
	}

	return sc.result, nil
}

// scan carries the state of one rebuild pass.
type scan struct {
	*Indexer

	out    *index.Store
	now    time.Time
	result journal.RebuildResult
}

func (sc *scan) run(ctx context.Context) error {
	years, err := sc.discoverYears()
	if err != nil {
		return err
	}

	for _, year := range years {
		yearEvent, err := sc.indexYear(ctx, year)
		if err != nil {
			sc.issue(year, err)

			continue
		}

		sc.result.Years++

		if err := sc.indexYearEvents(ctx, year, yearEvent); err != nil {
			return err
		}
	}

	return nil
}

// discoverYears lists top-level folders matching the year pattern, in
// ascending (hence chronological) order.
func (sc *scan) discoverYears() ([]string, error) {
	entries, err := sc.fs.ReadDir(sc.root)
	if err != nil {
		return nil, fmt.Errorf("list journal root: %w", err)
	}

	var years []string

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if _, ok := naming.IsYearFolderName(entry.Name()); ok {
			years = append(years, entry.Name())
		}
	}

	sort.Strings(years)

	return years, nil
}

// indexYear builds the year-kind event, from _year.md when the
// descriptor exists and from the folder name alone when it does not.
func (sc *scan) indexYear(ctx context.Context, yearName string) (journal.Event, error) {
	year, _ := naming.IsYearFolderName(yearName)

	ev := journal.Event{
		ID:         journal.DerivedID(yearName),
		Type:       journal.EventYear,
		Title:      yearName,
		StartAt:    time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
		EndAt:      time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC),
		FolderPath: yearName,
	}

	descriptor := filepath.Join(sc.root, yearName, journal.YearDescriptor)

	info, err := sc.fs.Stat(descriptor)
	if err == nil {
		content, err := sc.fs.ReadFile(descriptor)
		if err != nil {
			return journal.Event{}, fmt.Errorf("read %s: %w", journal.YearDescriptor, err)
		}

		fm, _ := frontmatter.Parse(content)

		decoded, problems := journal.DecodeEvent(fm)
		sc.noteProblems(filepath.Join(yearName, journal.YearDescriptor), problems)

		ev = mergeDecodedEvent(ev, decoded)
		ev.Type = journal.EventYear
		ev.FilePath = filepath.Join(yearName, journal.YearDescriptor)

		sc.trackFile(ctx, ev.FilePath, journal.FileYear, info)
	}

	if err := sc.out.PutEvent(ctx, ev); err != nil {
		return journal.Event{}, err
	}

	return ev, nil
}

// indexYearEvents walks the event folders inside one year folder,
// skipping dot-folders.
func (sc *scan) indexYearEvents(ctx context.Context, yearName string, yearEvent journal.Event) error {
	entries, err := sc.fs.ReadDir(filepath.Join(sc.root, yearName))
	if err != nil {
		sc.issue(yearName, fmt.Errorf("list year folder: %w", err))

		return nil
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		folderRel := filepath.Join(yearName, entry.Name())

		if err := sc.indexEventFolder(ctx, folderRel, yearEvent); err != nil {
			sc.issue(folderRel, err)
		}
	}

	return nil
}

func (sc *scan) indexEventFolder(ctx context.Context, folderRel string, yearEvent journal.Event) error {
	folderAbs := filepath.Join(sc.root, folderRel)
	folderName := filepath.Base(folderRel)

	inferred := naming.InferEventFromFolderName(folderName)

	ev := journal.Event{
		ID:         journal.DerivedID(folderRel),
		Type:       journal.EventEvent,
		Title:      inferred.Title,
		StartAt:    inferred.StartAt,
		ParentID:   yearEvent.ID,
		FolderPath: folderRel,
	}

	descriptor := filepath.Join(folderAbs, journal.EventDescriptor)

	info, err := sc.fs.Stat(descriptor)
	if err == nil {
		content, err := sc.fs.ReadFile(descriptor)
		if err != nil {
			return fmt.Errorf("read %s: %w", journal.EventDescriptor, err)
		}

		fm, _ := frontmatter.Parse(content)

		decoded, problems := journal.DecodeEvent(fm)
		sc.noteProblems(filepath.Join(folderRel, journal.EventDescriptor), problems)

		ev = mergeDecodedEvent(ev, decoded)
		ev.ParentID = yearEvent.ID
		ev.FolderPath = folderRel
		ev.FilePath = filepath.Join(folderRel, journal.EventDescriptor)

		if ev.Type != journal.EventPeriod {
			ev.Type = journal.EventEvent
		}

		sc.trackFile(ctx, ev.FilePath, journal.FileEvent, info)
	}

	if err := sc.out.PutEvent(ctx, ev); err != nil {
		return err
	}

	sc.result.Events++

	entries, err := sc.fs.ReadDir(folderAbs)
	if err != nil {
		return fmt.Errorf("list event folder: %w", err)
	}

	// Items keyed by slug, for canvas resolution below.
	itemsBySlug := make(map[string]journal.Item)

	for _, entry := range entries {
		name := entry.Name()

		if entry.IsDir() || isSpecialFile(name) || !strings.HasSuffix(name, ".md") {
			continue
		}

		item, err := sc.indexItem(ctx, folderRel, name, ev, entries)
		if err != nil {
			sc.issue(filepath.Join(folderRel, name), err)

			continue
		}

		itemsBySlug[item.Slug] = item
		sc.result.Items++
	}

	sc.indexCanvas(ctx, folderRel, ev, itemsBySlug)

	return nil
}

// indexItem turns one markdown file into an item row. The filename stem
// is the slug; the frontmatter fills everything else in.
func (sc *scan) indexItem(ctx context.Context, folderRel, fileName string, ev journal.Event, siblings []os.DirEntry) (journal.Item, error) {
	fileRel := filepath.Join(folderRel, fileName)
	fileAbs := filepath.Join(sc.root, fileRel)
	slug := strings.TrimSuffix(fileName, ".md")

	info, err := sc.fs.Stat(fileAbs)
	if err != nil {
		return journal.Item{}, fmt.Errorf("stat item: %w", err)
	}

	content, err := sc.fs.ReadFile(fileAbs)
	if err != nil {
		return journal.Item{}, fmt.Errorf("read item: %w", err)
	}

	fm, body := frontmatter.Parse(content)

	meta, problems := journal.DecodeItem(fm)
	sc.noteProblems(fileRel, problems)

	item := journal.Item{
		ID:         meta.ID,
		EventID:    ev.ID,
		Type:       meta.Type,
		Slug:       slug,
		Caption:    meta.Caption,
		HappenedAt: meta.HappenedAt,
		Place:      meta.Place,
		People:     meta.People,
		Tags:       meta.Tags,
		Category:   meta.Category,
		Exif:       meta.Exif,
		FilePath:   fileRel,
		CreatedAt:  meta.CreatedAt,
		UpdatedAt:  meta.UpdatedAt,
	}

	if item.ID == "" {
		item.ID = journal.DerivedID(fileRel)
	}

	if item.HappenedAt.IsZero() {
		item.HappenedAt = ev.StartAt
	}

	mediaName, mediaKind := resolveMedia(meta.Media, slug, siblings)

	switch {
	case mediaName != "":
		item.Content = journal.NewFileRef(filepath.Join(folderRel, mediaName))

		if item.Type == "" {
			item.Type = mediaKind
		}
	case meta.URL != "":
		item.Content = meta.URL

		if item.Type == "" {
			item.Type = journal.ItemLink
		}
	default:
		item.Content = strings.TrimSpace(body)

		if item.Type == "" {
			item.Type = journal.ItemText
		}
	}

	// Text items carry their body even when typed explicitly.
	if item.Type == journal.ItemText {
		item.Content = strings.TrimSpace(body)
	}

	if err := sc.out.PutItem(ctx, item); err != nil {
		return journal.Item{}, err
	}

	if item.Category != "" {
		if err := sc.out.AddCategory(ctx, item.Category); err != nil {
			return journal.Item{}, err
		}
	}

	sc.trackFile(ctx, fileRel, journal.FileItem, info)

	return item, nil
}

// resolveMedia finds the media file backing an item: an explicit media:
// frontmatter field wins, otherwise a sibling file with the same stem
// and a recognized media extension.
func resolveMedia(explicit, slug string, siblings []os.DirEntry) (string, journal.ItemType) {
	if explicit != "" {
		if kind, ok := journal.MediaKindForExt(filepath.Ext(explicit)); ok {
			for _, sib := range siblings {
				if sib.Name() == explicit {
					return explicit, kind
				}
			}
		}
	}

	for _, sib := range siblings {
		name := sib.Name()

		ext := filepath.Ext(name)
		if strings.TrimSuffix(name, ext) != slug {
			continue
		}

		if kind, ok := journal.MediaKindForExt(ext); ok {
			return name, kind
		}
	}

	return "", ""
}

// indexCanvas parses _canvas.json and upserts one placement per entry
// whose slug resolves to an item just indexed. Dangling slugs are
// dropped without error; manual edits make them an expected state.
func (sc *scan) indexCanvas(ctx context.Context, folderRel string, ev journal.Event, itemsBySlug map[string]journal.Item) {
	canvasRel := filepath.Join(folderRel, journal.CanvasFileName)
	canvasAbs := filepath.Join(sc.root, canvasRel)

	info, err := sc.fs.Stat(canvasAbs)
	if err != nil {
		return
	}

	data, err := sc.fs.ReadFile(canvasAbs)
	if err != nil {
		sc.issue(canvasRel, fmt.Errorf("read canvas: %w", err))

		return
	}

	// Track the file before parsing. A malformed canvas still counts as
	// seen, otherwise every sync check reports it as drift forever.
	sc.trackFile(ctx, canvasRel, journal.FileCanvas, info)

	cf, err := journal.ParseCanvas(data)
	if err != nil {
		sc.issue(canvasRel, err)

		return
	}

	for _, placement := range cf.Items {
		item, ok := itemsBySlug[placement.ItemSlug]
		if !ok {
			continue
		}

		ci := journal.CanvasItem{
			EventID:   ev.ID,
			ItemID:    item.ID,
			ItemSlug:  placement.ItemSlug,
			X:         placement.X,
			Y:         placement.Y,
			Scale:     placement.Scale,
			Rotation:  placement.Rotation,
			ZIndex:    placement.ZIndex,
			TextScale: placement.TextScale,
		}

		if err := sc.out.PutCanvasItem(ctx, ci); err != nil {
			sc.issue(canvasRel, err)

			continue
		}

		sc.result.CanvasItems++
	}
}

func (sc *scan) trackFile(ctx context.Context, relPath string, kind journal.FileKind, info os.FileInfo) {
	fe := journal.FileIndexEntry{
		Path:      relPath,
		Kind:      kind,
		ModTime:   info.ModTime(),
		Size:      info.Size(),
		IndexedAt: sc.now,
	}

	if err := sc.out.PutFileEntry(ctx, fe); err != nil {
		sc.issue(relPath, err)
	}
}

func (sc *scan) issue(path string, err error) {
	sc.result.Issues = append(sc.result.Issues, journal.Issue{Path: path, Err: err})
}

func (sc *scan) noteProblems(path string, problems []string) {
	for _, p := range problems {
		sc.log.Debug("frontmatter field skipped", "path", path, "problem", p)
	}
}

func isSpecialFile(name string) bool {
	return name == journal.YearDescriptor ||
		name == journal.EventDescriptor ||
		name == journal.CanvasFileName ||
		strings.HasPrefix(name, ".")
}

// mergeDecodedEvent overlays non-zero decoded fields onto the synthesized
// fallback, keeping the fallback where the descriptor was silent.
func mergeDecodedEvent(base, decoded journal.Event) journal.Event {
	out := base

	if decoded.ID != "" {
		out.ID = decoded.ID
	}

	if decoded.Type != "" {
		out.Type = decoded.Type
	}

	if decoded.Title != "" {
		out.Title = decoded.Title
	}

	if decoded.Description != "" {
		out.Description = decoded.Description
	}

	if !decoded.StartAt.IsZero() {
		out.StartAt = decoded.StartAt
	}

	if !decoded.EndAt.IsZero() {
		out.EndAt = decoded.EndAt
	}

	if decoded.Location != nil {
		out.Location = decoded.Location
	}

	if decoded.FeaturedPhoto != "" {
		out.FeaturedPhoto = decoded.FeaturedPhoto
	}

	if len(decoded.Tags) > 0 {
		out.Tags = decoded.Tags
	}

	if !decoded.CreatedAt.IsZero() {
		out.CreatedAt = decoded.CreatedAt
	}

	if !decoded.UpdatedAt.IsZero() {
		out.UpdatedAt = decoded.UpdatedAt
	}

	return out
}
