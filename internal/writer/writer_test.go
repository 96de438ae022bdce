package writer

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"memorylane/internal/fs"
	"memorylane/internal/index"
	"memorylane/internal/indexer"
	"memorylane/internal/journal"
)

func newTestWriter(t *testing.T) (*Writer, *index.Store, string) {
	t.Helper()

	root := t.TempDir()

	store, err := index.Open(context.Background(), index.PathFor(root))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })

	clock := journal.FixedClock{T: time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)}
	w := New(fs.NewReal(), root, store, clock, nil, journal.NewNopLogger())

	return w, store, root
}

func createTestEvent(t *testing.T, w *Writer) journal.Event {
	t.Helper()

	ev, err := w.CreateEvent(context.Background(), journal.EventDraft{
		Title:   "Beach Day",
		StartAt: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	return ev
}

func TestCreateEventWritesFolderAndDescriptor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, store, root := newTestWriter(t)

	ev := createTestEvent(t, w)

	wantFolder := filepath.Join("2024", "2024-03-15 Beach Day")
	if ev.FolderPath != wantFolder {
		t.Errorf("folderPath = %q, want %q", ev.FolderPath, wantFolder)
	}

	raw, err := os.ReadFile(filepath.Join(root, ev.FilePath))
	if err != nil {
		t.Fatalf("descriptor missing: %v", err)
	}

	if !strings.Contains(string(raw), "title: Beach Day") {
		t.Errorf("descriptor content:\n%s", raw)
	}

	// Year materialized too, and the event indexed under it.
	year, err := store.GetYearEvent(ctx, 2024)
	if err != nil {
		t.Fatalf("GetYearEvent: %v", err)
	}

	got, err := store.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}

	if got.ParentID != year.ID {
		t.Errorf("parentID = %q, want %q", got.ParentID, year.ID)
	}
}

func TestCreateEventResolvesFolderCollision(t *testing.T) {
	t.Parallel()

	w, _, root := newTestWriter(t)

	first := createTestEvent(t, w)
	second := createTestEvent(t, w)

	if first.FolderPath == second.FolderPath {
		t.Fatalf("both events share folder %q", first.FolderPath)
	}

	if !strings.HasSuffix(second.FolderPath, "Beach Day 2") {
		t.Errorf("second folder = %q", second.FolderPath)
	}

	for _, ev := range []journal.Event{first, second} {
		if _, err := os.Stat(filepath.Join(root, ev.FilePath)); err != nil {
			t.Errorf("descriptor missing for %q: %v", ev.FolderPath, err)
		}
	}
}

func TestEnsureYearIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, store, _ := newTestWriter(t)

	first, err := w.EnsureYear(ctx, 2024)
	if err != nil {
		t.Fatalf("EnsureYear: %v", err)
	}

	second, err := w.EnsureYear(ctx, 2024)
	if err != nil {
		t.Fatalf("EnsureYear again: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("year recreated: %q vs %q", first.ID, second.ID)
	}

	n, err := store.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}

	if n != 1 {
		t.Errorf("events = %d, want 1", n)
	}
}

func TestEnsureYearAdoptsExistingDescriptor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, store, root := newTestWriter(t)

	// A hand-written _year.md that the index has never seen.
	dir := filepath.Join(root, "2025")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	descriptor := `---
id: year-2025
type: year
title: "2025"
description: Year of the move.
---
`

	path := filepath.Join(dir, "_year.md")
	if err := os.WriteFile(path, []byte(descriptor), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}

	ev, err := w.EnsureYear(ctx, 2025)
	if err != nil {
		t.Fatalf("EnsureYear: %v", err)
	}

	if ev.ID != "year-2025" || ev.Description != "Year of the move." {
		t.Errorf("year = %+v, want the on-disk descriptor adopted", ev)
	}

	// The file must be untouched.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read descriptor: %v", err)
	}

	if string(raw) != descriptor {
		t.Errorf("descriptor rewritten:\n%s", raw)
	}

	got, err := store.GetYearEvent(ctx, 2025)
	if err != nil || got.ID != "year-2025" {
		t.Errorf("indexed year = %+v, %v", got, err)
	}
}

func TestUpdateEventPreservesBodyAndUnknownKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, store, root := newTestWriter(t)

	ev := createTestEvent(t, w)

	// Simulate a manual edit adding a body and a custom key.
	path := filepath.Join(root, ev.FilePath)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read descriptor: %v", err)
	}

	edited := strings.Replace(string(raw), "---\n", "---\nweather: sunny\n", 1)
	edited += "\nSome notes about the day.\n"

	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatalf("write edited descriptor: %v", err)
	}

	newTitle := "Beach Day Revisited"

	updated, err := w.UpdateEvent(ctx, ev.ID, journal.EventPatch{Title: &newTitle})
	if err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}

	if updated.Title != newTitle {
		t.Errorf("title = %q", updated.Title)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after update: %v", err)
	}

	for _, want := range []string{"title: Beach Day Revisited", "weather: sunny", "Some notes about the day."} {
		if !strings.Contains(string(after), want) {
			t.Errorf("descriptor lost %q:\n%s", want, after)
		}
	}

	got, err := store.GetEvent(ctx, ev.ID)
	if err != nil || got.Title != newTitle {
		t.Errorf("index title = %q, %v", got.Title, err)
	}
}

func TestUpdateItemPreservesUnknownKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, store, root := newTestWriter(t)

	ev := createTestEvent(t, w)

	item, err := w.CreateItem(ctx, journal.ItemDraft{
		EventID: ev.ID, Type: journal.ItemText, Content: "hello", Caption: "My Note",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	// Simulate a manual edit adding a custom key.
	path := filepath.Join(root, item.FilePath)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read item: %v", err)
	}

	edited := strings.Replace(string(raw), "---\n", "---\nmood: nostalgic\n", 1)
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatalf("write edited item: %v", err)
	}

	place := "Scheveningen"

	updated, err := w.UpdateItem(ctx, item.ID, journal.ItemPatch{Place: &place})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	if updated.Place != place {
		t.Errorf("place = %q", updated.Place)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after update: %v", err)
	}

	for _, want := range []string{"place: Scheveningen", "mood: nostalgic", "hello"} {
		if !strings.Contains(string(after), want) {
			t.Errorf("item file lost %q:\n%s", want, after)
		}
	}

	got, err := store.GetItem(ctx, item.ID)
	if err != nil || got.Place != place {
		t.Errorf("index place = %q, %v", got.Place, err)
	}
}

func TestDeleteEventRemovesFolderAndRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, store, root := newTestWriter(t)

	ev := createTestEvent(t, w)

	if _, err := w.CreateItem(ctx, journal.ItemDraft{
		EventID: ev.ID, Type: journal.ItemText, Content: "hello", Caption: "My Note",
	}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	if err := w.DeleteEvent(ctx, ev.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, ev.FolderPath)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("folder survived delete: %v", err)
	}

	if _, err := store.GetEvent(ctx, ev.ID); !errors.Is(err, index.ErrNotFound) {
		t.Errorf("event row survived: %v", err)
	}

	n, err := store.CountItems(ctx)
	if err != nil || n != 0 {
		t.Errorf("items = %d, %v", n, err)
	}

	entries, err := store.ListFileEntries(ctx)
	if err != nil {
		t.Fatalf("ListFileEntries: %v", err)
	}

	for _, fe := range entries {
		if strings.HasPrefix(fe.Path, ev.FolderPath) {
			t.Errorf("stale file entry %s", fe.Path)
		}
	}
}

func TestCreateTextItemWriteThrough(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, store, root := newTestWriter(t)

	ev := createTestEvent(t, w)

	item, err := w.CreateItem(ctx, journal.ItemDraft{
		EventID: ev.ID,
		Type:    journal.ItemText,
		Content: "hello",
		Caption: "My Note",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	if item.Slug != "my-note" {
		t.Errorf("slug = %q, want my-note", item.Slug)
	}

	raw, err := os.ReadFile(filepath.Join(root, ev.FolderPath, "my-note.md"))
	if err != nil {
		t.Fatalf("markdown missing: %v", err)
	}

	if !strings.Contains(string(raw), "hello") || !strings.Contains(string(raw), "caption: My Note") {
		t.Errorf("markdown content:\n%s", raw)
	}

	// Discard the index entirely and rebuild from files alone.
	ix := indexer.New(fs.NewReal(), root, store, nil, nil, nil)

	if _, err := ix.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	rebuiltEv, err := store.GetEventByFolder(ctx, ev.FolderPath)
	if err != nil {
		t.Fatalf("GetEventByFolder: %v", err)
	}

	rebuilt, err := store.GetItemBySlug(ctx, rebuiltEv.ID, "my-note")
	if err != nil {
		t.Fatalf("GetItemBySlug: %v", err)
	}

	if rebuilt.Caption != "My Note" || rebuilt.Type != journal.ItemText || rebuilt.Content != "hello" {
		t.Errorf("rebuilt item = %+v", rebuilt)
	}
}

func TestCreateItemSlugCollision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, _, _ := newTestWriter(t)

	ev := createTestEvent(t, w)

	draft := journal.ItemDraft{EventID: ev.ID, Type: journal.ItemText, Content: "x", Caption: "Same Caption"}

	first, err := w.CreateItem(ctx, draft)
	if err != nil {
		t.Fatalf("first CreateItem: %v", err)
	}

	second, err := w.CreateItem(ctx, draft)
	if err != nil {
		t.Fatalf("second CreateItem: %v", err)
	}

	if first.Slug != "same-caption" || second.Slug != "same-caption-2" {
		t.Errorf("slugs = %q, %q", first.Slug, second.Slug)
	}
}

func TestCreateItemDecodesDataURI(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, _, root := newTestWriter(t)

	ev := createTestEvent(t, w)

	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0} // jpeg magic
	uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(payload)

	item, err := w.CreateItem(ctx, journal.ItemDraft{
		EventID: ev.ID, Type: journal.ItemPhoto, Content: uri, Caption: "Sunset",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	wantRef := journal.NewFileRef(filepath.Join(ev.FolderPath, "sunset.jpg"))
	if item.Content != wantRef {
		t.Errorf("content = %q, want %q", item.Content, wantRef)
	}

	written, err := os.ReadFile(filepath.Join(root, ev.FolderPath, "sunset.jpg"))
	if err != nil {
		t.Fatalf("media file missing: %v", err)
	}

	if string(written) != string(payload) {
		t.Errorf("media bytes = %x", written)
	}

	raw, err := os.ReadFile(filepath.Join(root, ev.FolderPath, "sunset.md"))
	if err != nil {
		t.Fatalf("markdown missing: %v", err)
	}

	if !strings.Contains(string(raw), "media: sunset.jpg") {
		t.Errorf("markdown content:\n%s", raw)
	}
}

func TestUpdateItemRenameOnCaptionChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, store, root := newTestWriter(t)

	ev := createTestEvent(t, w)

	payload := base64.StdEncoding.EncodeToString([]byte("jpegbytes"))

	item, err := w.CreateItem(ctx, journal.ItemDraft{
		EventID: ev.ID,
		Type:    journal.ItemPhoto,
		Content: "data:image/jpeg;base64," + payload,
		Caption: "Old Title",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	if item.Slug != "old-title" {
		t.Fatalf("slug = %q", item.Slug)
	}

	newCaption := "New Title"

	updated, err := w.UpdateItem(ctx, item.ID, journal.ItemPatch{Caption: &newCaption})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	if updated.Slug != "new-title" {
		t.Errorf("slug = %q, want new-title", updated.Slug)
	}

	folder := filepath.Join(root, ev.FolderPath)

	for _, want := range []string{"new-title.md", "new-title.jpg"} {
		if _, err := os.Stat(filepath.Join(folder, want)); err != nil {
			t.Errorf("%s missing: %v", want, err)
		}
	}

	for _, gone := range []string{"old-title.md", "old-title.jpg"} {
		if _, err := os.Stat(filepath.Join(folder, gone)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s still exists", gone)
		}
	}

	wantRef := journal.NewFileRef(filepath.Join(ev.FolderPath, "new-title.jpg"))
	if updated.Content != wantRef {
		t.Errorf("content = %q, want %q", updated.Content, wantRef)
	}

	got, err := store.GetItem(ctx, item.ID)
	if err != nil || got.Slug != "new-title" || got.Content != wantRef {
		t.Errorf("index row = %+v, %v", got, err)
	}
}

func TestUpdateItemWithoutSlugChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, _, root := newTestWriter(t)

	ev := createTestEvent(t, w)

	item, err := w.CreateItem(ctx, journal.ItemDraft{
		EventID: ev.ID, Type: journal.ItemText, Content: "hello", Caption: "My Note",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	newContent := "hello again"

	updated, err := w.UpdateItem(ctx, item.ID, journal.ItemPatch{Content: &newContent})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	if updated.Slug != "my-note" || updated.Caption != "My Note" {
		t.Errorf("identity changed: %+v", updated)
	}

	raw, err := os.ReadFile(filepath.Join(root, ev.FolderPath, "my-note.md"))
	if err != nil {
		t.Fatalf("markdown missing: %v", err)
	}

	if !strings.Contains(string(raw), "hello again") {
		t.Errorf("body not updated:\n%s", raw)
	}
}

func TestDeleteItemRemovesFilesAndCanvasEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, store, root := newTestWriter(t)

	ev := createTestEvent(t, w)

	payload := base64.StdEncoding.EncodeToString([]byte("jpegbytes"))

	item, err := w.CreateItem(ctx, journal.ItemDraft{
		EventID: ev.ID,
		Type:    journal.ItemPhoto,
		Content: "data:image/jpeg;base64," + payload,
		Caption: "Sunset",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	err = w.SaveCanvas(ctx, ev.ID, []journal.CanvasItem{
		{ItemID: item.ID, ItemSlug: item.Slug, X: 1, Y: 2, Scale: 1},
	})
	if err != nil {
		t.Fatalf("SaveCanvas: %v", err)
	}

	if err := w.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}

	folder := filepath.Join(root, ev.FolderPath)

	for _, gone := range []string{"sunset.md", "sunset.jpg"} {
		if _, err := os.Stat(filepath.Join(folder, gone)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s still exists", gone)
		}
	}

	raw, err := os.ReadFile(filepath.Join(folder, journal.CanvasFileName))
	if err != nil {
		t.Fatalf("canvas missing: %v", err)
	}

	if strings.Contains(string(raw), "sunset") {
		t.Errorf("canvas still references deleted item:\n%s", raw)
	}

	n, err := store.CountCanvasItems(ctx)
	if err != nil || n != 0 {
		t.Errorf("canvas rows = %d, %v", n, err)
	}
}

func TestSaveCanvasWritesFileAndRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, store, root := newTestWriter(t)

	ev := createTestEvent(t, w)

	placements := []journal.CanvasItem{
		{ItemID: "it-1", ItemSlug: "a", X: 1, Y: 2, Scale: 1, ZIndex: 1},
		{ItemID: "it-2", X: 3, Y: 4, Scale: 2, ZIndex: 2}, // no slug, keyed by ID
	}

	if err := w.SaveCanvas(ctx, ev.ID, placements); err != nil {
		t.Fatalf("SaveCanvas: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(root, ev.FolderPath, journal.CanvasFileName))
	if err != nil {
		t.Fatalf("canvas missing: %v", err)
	}

	cf, err := journal.ParseCanvas(raw)
	if err != nil {
		t.Fatalf("ParseCanvas: %v", err)
	}

	if len(cf.Items) != 2 || cf.Items[0].ItemSlug != "a" || cf.Items[1].ItemSlug != "it-2" {
		t.Errorf("canvas file = %+v", cf.Items)
	}

	rows, err := store.ListCanvasByEvent(ctx, ev.ID)
	if err != nil || len(rows) != 2 {
		t.Errorf("canvas rows = %+v, %v", rows, err)
	}
}

func TestCreateItemRegistersCategory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, store, _ := newTestWriter(t)

	ev := createTestEvent(t, w)

	if _, err := w.CreateItem(ctx, journal.ItemDraft{
		EventID: ev.ID, Type: journal.ItemText, Content: "x", Caption: "A", Category: "travel",
	}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	item, err := w.CreateItem(ctx, journal.ItemDraft{
		EventID: ev.ID, Type: journal.ItemText, Content: "y", Caption: "B",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	cat := "food"

	if _, err := w.UpdateItem(ctx, item.ID, journal.ItemPatch{Category: &cat}); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	cats, err := store.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}

	want := []string{"travel", "food"}
	if len(cats) != 2 || cats[0] != want[0] || cats[1] != want[1] {
		t.Errorf("categories = %v, want %v", cats, want)
	}
}

func TestSaveCanvasKeepsViewport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, _, root := newTestWriter(t)

	ev := createTestEvent(t, w)

	canvasPath := filepath.Join(root, ev.FolderPath, journal.CanvasFileName)

	existing := `{
  "version": 1,
  "items": [],
  "viewport": {"centerX": 120, "centerY": -40, "zoom": 0.75}
}`

	if err := os.WriteFile(canvasPath, []byte(existing), 0o644); err != nil {
		t.Fatalf("write canvas: %v", err)
	}

	placements := []journal.CanvasItem{
		{ItemID: "it-1", ItemSlug: "a", X: 1, Y: 2, Scale: 1, ZIndex: 1},
	}

	if err := w.SaveCanvas(ctx, ev.ID, placements); err != nil {
		t.Fatalf("SaveCanvas: %v", err)
	}

	raw, err := os.ReadFile(canvasPath)
	if err != nil {
		t.Fatalf("read canvas: %v", err)
	}

	cf, err := journal.ParseCanvas(raw)
	if err != nil {
		t.Fatalf("ParseCanvas: %v", err)
	}

	if cf.Viewport == nil {
		t.Fatal("viewport dropped on save")
	}

	if cf.Viewport.CenterX != 120 || cf.Viewport.CenterY != -40 || cf.Viewport.Zoom != 0.75 {
		t.Errorf("viewport = %+v", cf.Viewport)
	}

	if len(cf.Items) != 1 || cf.Items[0].ItemSlug != "a" {
		t.Errorf("items = %+v", cf.Items)
	}
}

func TestWriterWithoutRoot(t *testing.T) {
	t.Parallel()

	store, err := index.Open(context.Background(), index.PathFor(t.TempDir()))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	defer func() { _ = store.Close() }()

	w := New(fs.NewReal(), "", store, nil, nil, nil)

	if _, err := w.CreateEvent(context.Background(), journal.EventDraft{Title: "x"}); !errors.Is(err, journal.ErrNoRoot) {
		t.Errorf("CreateEvent = %v, want ErrNoRoot", err)
	}

	if err := w.DeleteItem(context.Background(), "id"); !errors.Is(err, journal.ErrNoRoot) {
		t.Errorf("DeleteItem = %v, want ErrNoRoot", err)
	}
}
