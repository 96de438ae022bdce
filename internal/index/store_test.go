package index

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"memorylane/internal/journal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), PathFor(t.TempDir()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := PathFor(t.TempDir())

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}

	if err := s.MetaSet(ctx, "k", "v"); err != nil {
		t.Fatalf("MetaSet: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening runs schema creation and the column upgrade pass again.
	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	defer func() { _ = s.Close() }()

	got, ok, err := s.MetaGet(ctx, "k")
	if err != nil || !ok || got != "v" {
		t.Errorf("MetaGet after reopen = %q, %v, %v", got, ok, err)
	}
}

func TestEventRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)

	ev := journal.Event{
		ID:            "ev-1",
		Type:          journal.EventEvent,
		Title:         "Beach Day",
		Description:   "Sunny.",
		StartAt:       time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		EndAt:         time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Location:      &journal.Location{Lat: 52.3676, Lng: 4.9041, Label: "Amsterdam"},
		FeaturedPhoto: "sunset",
		Tags:          []string{"family"},
		ParentID:      "year-2024",
		FilePath:      "2024/2024-03-15 Beach Day/_event.md",
		FolderPath:    "2024/2024-03-15 Beach Day",
		CreatedAt:     time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2024, 3, 16, 9, 0, 0, 0, time.UTC),
	}

	if err := s.PutEvent(ctx, ev); err != nil {
		t.Fatalf("PutEvent: %v", err)
	}

	got, err := s.GetEvent(ctx, "ev-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}

	if diff := cmp.Diff(ev, got); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}

	byFolder, err := s.GetEventByFolder(ctx, ev.FolderPath)
	if err != nil || byFolder.ID != "ev-1" {
		t.Errorf("GetEventByFolder = %+v, %v", byFolder, err)
	}

	if _, err := s.GetEvent(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing event = %v, want ErrNotFound", err)
	}
}

func TestEventWithoutLocation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)

	if err := s.PutEvent(ctx, journal.Event{ID: "e", Type: journal.EventEvent, Title: "x"}); err != nil {
		t.Fatalf("PutEvent: %v", err)
	}

	got, err := s.GetEvent(ctx, "e")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}

	if got.Location != nil {
		t.Errorf("location = %+v, want nil", got.Location)
	}

	if !got.StartAt.IsZero() {
		t.Errorf("startAt = %v, want zero", got.StartAt)
	}
}

func TestDeleteEventCascades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)

	mustPutEvent(t, s, journal.Event{ID: "ev-1", Type: journal.EventEvent, Title: "x"})
	mustPutItem(t, s, journal.Item{ID: "it-1", EventID: "ev-1", Type: journal.ItemText, Slug: "a"})
	mustPutItem(t, s, journal.Item{ID: "it-2", EventID: "ev-1", Type: journal.ItemText, Slug: "b"})

	err := s.PutCanvasItem(ctx, journal.CanvasItem{EventID: "ev-1", ItemID: "it-1", ItemSlug: "a"})
	if err != nil {
		t.Fatalf("PutCanvasItem: %v", err)
	}

	if err := s.DeleteEvent(ctx, "ev-1"); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}

	for table, count := range map[string]func(context.Context) (int, error){
		"events": s.CountEvents, "items": s.CountItems, "canvas_items": s.CountCanvasItems,
	} {
		n, err := count(ctx)
		if err != nil {
			t.Fatalf("count %s: %v", table, err)
		}

		if n != 0 {
			t.Errorf("%s rows after cascade = %d, want 0", table, n)
		}
	}
}

func TestItemRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)

	it := journal.Item{
		ID:         "it-1",
		EventID:    "ev-1",
		Type:       journal.ItemPhoto,
		Slug:       "sunset",
		Content:    journal.NewFileRef("2024/2024-03-15 Beach Day/sunset.jpg"),
		Caption:    "Sunset at the pier",
		HappenedAt: time.Date(2024, 3, 15, 19, 42, 0, 0, time.UTC),
		Place:      "Scheveningen",
		People:     []string{"Anna", "Tom"},
		Tags:       []string{"beach"},
		Category:   "holidays",
		Exif:       map[string]string{"camera": "X100V"},
		FilePath:   "2024/2024-03-15 Beach Day/sunset.md",
		CreatedAt:  time.Date(2024, 3, 15, 20, 0, 0, 0, time.UTC),
	}

	if err := s.PutItem(ctx, it); err != nil {
		t.Fatalf("PutItem: %v", err)
	}

	got, err := s.GetItem(ctx, "it-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}

	if diff := cmp.Diff(it, got); diff != "" {
		t.Errorf("item mismatch (-want +got):\n%s", diff)
	}

	bySlug, err := s.GetItemBySlug(ctx, "ev-1", "sunset")
	if err != nil || bySlug.ID != "it-1" {
		t.Errorf("GetItemBySlug = %+v, %v", bySlug, err)
	}
}

func TestDeleteItemRemovesCanvasRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)

	mustPutItem(t, s, journal.Item{ID: "it-1", EventID: "ev-1", Type: journal.ItemText, Slug: "a"})

	err := s.PutCanvasItem(ctx, journal.CanvasItem{EventID: "ev-1", ItemID: "it-1"})
	if err != nil {
		t.Fatalf("PutCanvasItem: %v", err)
	}

	if err := s.DeleteItem(ctx, "it-1"); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}

	n, err := s.CountCanvasItems(ctx)
	if err != nil {
		t.Fatalf("CountCanvasItems: %v", err)
	}

	if n != 0 {
		t.Errorf("canvas rows = %d, want 0", n)
	}
}

func TestCanvasUpsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)

	ci := journal.CanvasItem{EventID: "ev-1", ItemID: "it-1", ItemSlug: "a", X: 1, Y: 2, Scale: 1, ZIndex: 5}

	if err := s.PutCanvasItem(ctx, ci); err != nil {
		t.Fatalf("PutCanvasItem: %v", err)
	}

	ci.X = 99

	if err := s.PutCanvasItem(ctx, ci); err != nil {
		t.Fatalf("PutCanvasItem replace: %v", err)
	}

	list, err := s.ListCanvasByEvent(ctx, "ev-1")
	if err != nil {
		t.Fatalf("ListCanvasByEvent: %v", err)
	}

	if len(list) != 1 || list[0].X != 99 {
		t.Errorf("canvas list = %+v", list)
	}
}

func TestFileEntryKeepsNanosecondMtime(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)

	mtime := time.Unix(1710525600, 123456789)

	fe := journal.FileIndexEntry{
		Path:      "2024/_year.md",
		Kind:      journal.FileYear,
		ModTime:   mtime,
		Size:      321,
		IndexedAt: time.Unix(1710529200, 0).UTC(),
	}

	if err := s.PutFileEntry(ctx, fe); err != nil {
		t.Fatalf("PutFileEntry: %v", err)
	}

	got, err := s.GetFileEntry(ctx, "2024/_year.md")
	if err != nil {
		t.Fatalf("GetFileEntry: %v", err)
	}

	if !got.ModTime.Equal(mtime) {
		t.Errorf("mtime = %v, want %v", got.ModTime, mtime)
	}

	if got.Size != 321 || got.Kind != journal.FileYear {
		t.Errorf("entry = %+v", got)
	}
}

func TestSnapshotRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)

	mustPutEvent(t, s, journal.Event{ID: "ev-1", Type: journal.EventEvent, Title: "x"})

	blob, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if len(blob) == 0 {
		t.Fatal("empty snapshot")
	}

	// Diverge, then restore.
	if err := s.DeleteEvent(ctx, "ev-1"); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}

	if err := s.Restore(ctx, blob); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if _, err := s.GetEvent(ctx, "ev-1"); err != nil {
		t.Errorf("event missing after restore: %v", err)
	}
}

func TestRestoreRejectsGarbage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)

	mustPutEvent(t, s, journal.Event{ID: "ev-1", Type: journal.EventEvent, Title: "x"})

	if err := s.Restore(ctx, []byte("not a database")); err == nil {
		t.Fatal("expected error restoring garbage")
	}

	// Live database untouched.
	if _, err := s.GetEvent(ctx, "ev-1"); err != nil {
		t.Errorf("event lost after failed restore: %v", err)
	}
}

func TestReplaceWithSwapsDatabases(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	live, err := Open(ctx, PathFor(dir))
	if err != nil {
		t.Fatalf("open live: %v", err)
	}

	defer func() { _ = live.Close() }()

	mustPutEvent(t, live, journal.Event{ID: "old", Type: journal.EventEvent, Title: "old"})

	fresh, err := OpenFresh(ctx, filepath.Join(dir, DirName, "rebuild.sqlite"))
	if err != nil {
		t.Fatalf("open fresh: %v", err)
	}

	mustPutEvent(t, fresh, journal.Event{ID: "new", Type: journal.EventEvent, Title: "new"})

	if err := live.ReplaceWith(ctx, fresh); err != nil {
		t.Fatalf("ReplaceWith: %v", err)
	}

	if _, err := live.GetEvent(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old row survived swap: %v", err)
	}

	if _, err := live.GetEvent(ctx, "new"); err != nil {
		t.Errorf("new row missing after swap: %v", err)
	}
}

func TestMeta(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)

	if _, ok, err := s.MetaGet(ctx, "missing"); err != nil || ok {
		t.Errorf("missing key = ok %v, err %v", ok, err)
	}

	if err := s.MetaSet(ctx, MetaSchemaVersion, "2"); err != nil {
		t.Fatalf("MetaSet: %v", err)
	}

	got, ok, err := s.MetaGet(ctx, MetaSchemaVersion)
	if err != nil || !ok || got != "2" {
		t.Errorf("MetaGet = %q, %v, %v", got, ok, err)
	}

	if err := s.MetaDelete(ctx, MetaSchemaVersion); err != nil {
		t.Fatalf("MetaDelete: %v", err)
	}

	if _, ok, _ := s.MetaGet(ctx, MetaSchemaVersion); ok {
		t.Error("key survived delete")
	}
}

func TestCategories(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)

	cats, err := s.Categories(ctx)
	if err != nil || cats != nil {
		t.Errorf("empty store categories = %v, %v", cats, err)
	}

	for _, name := range []string{"travel", "food", "travel", ""} {
		if err := s.AddCategory(ctx, name); err != nil {
			t.Fatalf("AddCategory %q: %v", name, err)
		}
	}

	cats, err = s.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}

	if diff := cmp.Diff([]string{"travel", "food"}, cats); diff != "" {
		t.Errorf("categories (-want +got):\n%s", diff)
	}
}

func mustPutEvent(t *testing.T, s *Store, ev journal.Event) {
	t.Helper()

	if err := s.PutEvent(context.Background(), ev); err != nil {
		t.Fatalf("PutEvent %s: %v", ev.ID, err)
	}
}

func mustPutItem(t *testing.T, s *Store, it journal.Item) {
	t.Helper()

	if err := s.PutItem(context.Background(), it); err != nil {
		t.Fatalf("PutItem %s: %v", it.ID, err)
	}
}
