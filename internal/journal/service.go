package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// EventDraft carries the caller-supplied fields for a new event.
type EventDraft struct {
	Type          EventType
	Title         string
	Description   string
	StartAt       time.Time
	EndAt         time.Time
	Location      *Location
	FeaturedPhoto string
	Tags          []string
}

// EventPatch updates an existing event. Nil fields are left unchanged;
// only fields explicitly present are merged into the descriptor.
type EventPatch struct {
	Title         *string
	Description   *string
	StartAt       *time.Time
	EndAt         *time.Time
	Location      *Location
	ClearLocation bool
	FeaturedPhoto *string
	Tags          *[]string
}

// ItemDraft carries the caller-supplied fields for a new item. Content
// follows the addressing convention; a data URI on a photo/video/audio
// draft is decoded to a media file by the writer.
type ItemDraft struct {
	EventID    string
	Type       ItemType
	Content    string
	Caption    string
	HappenedAt time.Time
	Place      string
	People     []string
	Tags       []string
	Category   string
}

// ItemPatch updates an existing item. Nil fields are left unchanged. A
// caption change may rename the item's files; see the writer.
type ItemPatch struct {
	Caption    *string
	Content    *string
	HappenedAt *time.Time
	Place      *string
	People     *[]string
	Tags       *[]string
	Category   *string
}

// RebuildResult summarizes a full index rebuild.
type RebuildResult struct {
	Years       int
	Events      int
	Items       int
	CanvasItems int
	// Issues holds per-file failures the scan skipped over.
	Issues  []Issue
	BuiltAt time.Time
}

// SyncResult reports what a drift check found.
type SyncResult struct {
	HasChanges bool
	Added      []string
	Modified   []string
	Removed    []string
	// Rebuild is non-nil when a change triggered a full rebuild.
	Rebuild *RebuildResult
}

// Mutator is the writer's interface: every mutation follows the
// write-through order of files first, index rows second, flush last.
type Mutator interface {
	CreateEvent(ctx context.Context, draft EventDraft) (Event, error)
	UpdateEvent(ctx context.Context, id string, patch EventPatch) (Event, error)
	DeleteEvent(ctx context.Context, id string) error
	CreateItem(ctx context.Context, draft ItemDraft) (Item, error)
	UpdateItem(ctx context.Context, id string, patch ItemPatch) (Item, error)
	DeleteItem(ctx context.Context, id string) error
	SaveCanvas(ctx context.Context, eventID string, placements []CanvasItem) error
	EnsureYear(ctx context.Context, year int) (Event, error)
}

// Rebuilder is the indexer's interface.
type Rebuilder interface {
	Rebuild(ctx context.Context) (RebuildResult, error)
	Recover(ctx context.Context) (RebuildResult, error)
}

// Synchronizer is the sync service's drift-check interface.
type Synchronizer interface {
	SyncOnFocus(ctx context.Context) (SyncResult, error)
}

// Service serializes every mutation and rebuild behind one mutex, making
// the single-writer requirement a runtime guarantee instead of caller
// discipline. Writer calls arriving while a rebuild holds the engine are
// rejected with ErrRebuildInProgress rather than queued, so the UI can
// tell the user what is happening.
type Service struct {
	mu         sync.Mutex
	rebuilding atomic.Bool

	writer  Mutator
	indexer Rebuilder
	syncer  Synchronizer
	log     Logger
}

// NewService wires the engine facade. All collaborators are injected;
// the service holds no package-level state.
func NewService(writer Mutator, indexer Rebuilder, syncer Synchronizer, log Logger) *Service {
	if log == nil {
		log = NewNopLogger()
	}

	return &Service{writer: writer, indexer: indexer, syncer: syncer, log: log}
}

func (s *Service) write(fn func() error) error {
	if s.rebuilding.Load() {
		return ErrRebuildInProgress
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return fn()
}

func (s *Service) CreateEvent(ctx context.Context, draft EventDraft) (Event, error) {
	var ev Event

	err := s.write(func() error {
		var err error
		ev, err = s.writer.CreateEvent(ctx, draft)

		return err
	})

	return ev, err
}

func (s *Service) UpdateEvent(ctx context.Context, id string, patch EventPatch) (Event, error) {
	var ev Event

	err := s.write(func() error {
		var err error
		ev, err = s.writer.UpdateEvent(ctx, id, patch)

		return err
	})

	return ev, err
}

func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	return s.write(func() error { return s.writer.DeleteEvent(ctx, id) })
}

func (s *Service) CreateItem(ctx context.Context, draft ItemDraft) (Item, error) {
	var it Item

	err := s.write(func() error {
		var err error
		it, err = s.writer.CreateItem(ctx, draft)

		return err
	})

	return it, err
}

func (s *Service) UpdateItem(ctx context.Context, id string, patch ItemPatch) (Item, error) {
	var it Item

	err := s.write(func() error {
		var err error
		it, err = s.writer.UpdateItem(ctx, id, patch)

		return err
	})

	return it, err
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	return s.write(func() error { return s.writer.DeleteItem(ctx, id) })
}

func (s *Service) SaveCanvas(ctx context.Context, eventID string, placements []CanvasItem) error {
	return s.write(func() error { return s.writer.SaveCanvas(ctx, eventID, placements) })
}

func (s *Service) EnsureYear(ctx context.Context, year int) (Event, error) {
	var ev Event

	err := s.write(func() error {
		var err error
		ev, err = s.writer.EnsureYear(ctx, year)

		return err
	})

	return ev, err
}

// Rebuild runs a full index rebuild as an exclusive operation. There is
// no cancellation of an in-flight rebuild beyond the passed context.
func (s *Service) Rebuild(ctx context.Context) (RebuildResult, error) {
	return s.exclusiveRebuild(ctx, s.indexer.Rebuild)
}

// Recover synthesizes markdown for orphaned media and descriptor-less
// event folders, then rebuilds.
func (s *Service) Recover(ctx context.Context) (RebuildResult, error) {
	return s.exclusiveRebuild(ctx, s.indexer.Recover)
}

func (s *Service) exclusiveRebuild(ctx context.Context, fn func(context.Context) (RebuildResult, error)) (RebuildResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rebuilding.Store(true)
	defer s.rebuilding.Store(false)

	start := time.Now()

	res, err := fn(ctx)
	if err != nil {
		return res, err
	}

	s.log.Info("index rebuilt",
		"years", res.Years,
		"events", res.Events,
		"items", res.Items,
		"issues", len(res.Issues),
		"took", time.Since(start))

	if len(res.Issues) > 0 {
		s.log.Warn("scan skipped files", "err", &ScanError{Issues: res.Issues})
	}

	return res, nil
}

// SyncOnFocus checks the tree for drift and rebuilds when any tracked
// file changed. The drift check itself holds the engine so a writer
// cannot race the rebuild decision.
func (s *Service) SyncOnFocus(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rebuilding.Store(true)
	defer s.rebuilding.Store(false)

	return s.syncer.SyncOnFocus(ctx)
}
