package journal

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeMutator struct {
	calls int
}

func (f *fakeMutator) CreateEvent(context.Context, EventDraft) (Event, error) {
	f.calls++

	return Event{ID: "ev"}, nil
}

func (f *fakeMutator) UpdateEvent(context.Context, string, EventPatch) (Event, error) {
	f.calls++

	return Event{}, nil
}

func (f *fakeMutator) DeleteEvent(context.Context, string) error { f.calls++; return nil }

func (f *fakeMutator) CreateItem(context.Context, ItemDraft) (Item, error) {
	f.calls++

	return Item{}, nil
}

func (f *fakeMutator) UpdateItem(context.Context, string, ItemPatch) (Item, error) {
	f.calls++

	return Item{}, nil
}

func (f *fakeMutator) DeleteItem(context.Context, string) error { f.calls++; return nil }

func (f *fakeMutator) SaveCanvas(context.Context, string, []CanvasItem) error {
	f.calls++

	return nil
}

func (f *fakeMutator) EnsureYear(context.Context, int) (Event, error) {
	f.calls++

	return Event{}, nil
}

type blockingRebuilder struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRebuilder) Rebuild(context.Context) (RebuildResult, error) {
	close(b.started)
	<-b.release

	return RebuildResult{Events: 1, BuiltAt: time.Now()}, nil
}

func (b *blockingRebuilder) Recover(ctx context.Context) (RebuildResult, error) {
	return b.Rebuild(ctx)
}

type fakeSyncer struct {
	result SyncResult
}

func (f *fakeSyncer) SyncOnFocus(context.Context) (SyncResult, error) { return f.result, nil }

func TestServiceRejectsWritesDuringRebuild(t *testing.T) {
	t.Parallel()

	mutator := &fakeMutator{}
	rebuilder := &blockingRebuilder{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}

	svc := NewService(mutator, rebuilder, &fakeSyncer{}, NewNopLogger())

	done := make(chan error, 1)

	go func() {
		_, err := svc.Rebuild(context.Background())
		done <- err
	}()

	<-rebuilder.started

	_, err := svc.CreateEvent(context.Background(), EventDraft{Title: "x"})
	if !errors.Is(err, ErrRebuildInProgress) {
		t.Errorf("CreateEvent during rebuild = %v, want ErrRebuildInProgress", err)
	}

	if mutator.calls != 0 {
		t.Error("writer invoked during rebuild")
	}

	close(rebuilder.release)

	if err := <-done; err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	// Engine free again.
	if _, err := svc.CreateEvent(context.Background(), EventDraft{Title: "x"}); err != nil {
		t.Errorf("CreateEvent after rebuild: %v", err)
	}

	if mutator.calls != 1 {
		t.Errorf("writer calls = %d, want 1", mutator.calls)
	}
}

func TestServiceSerializesWrites(t *testing.T) {
	t.Parallel()

	mutator := &fakeMutator{}
	svc := NewService(mutator, nil, nil, nil)

	ev, err := svc.CreateEvent(context.Background(), EventDraft{Title: "x"})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	if ev.ID != "ev" {
		t.Errorf("event = %+v", ev)
	}

	if err := svc.DeleteEvent(context.Background(), "ev"); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}

	if mutator.calls != 2 {
		t.Errorf("calls = %d, want 2", mutator.calls)
	}
}

func TestServiceSyncOnFocus(t *testing.T) {
	t.Parallel()

	svc := NewService(&fakeMutator{}, nil, &fakeSyncer{result: SyncResult{HasChanges: false}}, nil)

	res, err := svc.SyncOnFocus(context.Background())
	if err != nil {
		t.Fatalf("SyncOnFocus: %v", err)
	}

	if res.HasChanges {
		t.Error("expected clean sync")
	}
}
