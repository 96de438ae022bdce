// Package syncer detects drift between the journal file tree and the
// index. The journal is Obsidian-style editable: files change outside
// the app. On focus (or on a watcher event) the syncer compares every
// indexable file's modification time and size against the bookkeeping
// rows of the last rebuild; any difference triggers a full rebuild.
// Partial patching is deliberately not attempted: referential
// consistency across events, items, and canvas placements is cheaper to
// guarantee by rescanning a personal-scale tree than by incremental
// surgery.
package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"memorylane/internal/fs"
	"memorylane/internal/index"
	"memorylane/internal/journal"
	"memorylane/internal/naming"
)

// DefaultDebounce is the quiet period for coalescing rapid change
// events into one sync.
const DefaultDebounce = 500 * time.Millisecond

// Syncer checks the tree for external edits.
type Syncer struct {
	fs       fs.FS
	root     string
	store    *index.Store
	rebuild  journal.Rebuilder
	clock    journal.Clock
	log      journal.Logger
	mu       sync.Mutex
	lastSync time.Time
}

// New wires a syncer. rebuild performs the full rebuild when drift is
// found.
func New(fsys fs.FS, root string, store *index.Store, rebuild journal.Rebuilder, clock journal.Clock, log journal.Logger) *Syncer {
	if clock == nil {
		clock = journal.RealClock{}
	}

	if log == nil {
		log = journal.NewNopLogger()
	}

	return &Syncer{fs: fsys, root: root, store: store, rebuild: rebuild, clock: clock, log: log}
}

// fileStat is what the drift check compares per file.
type fileStat struct {
	modTime time.Time
	size    int64
}

// SyncOnFocus enumerates every indexable file, diffs against the
// file_index rows, and runs a full rebuild when anything is new,
// modified, or missing. A clean tree reports HasChanges false without
// rebuilding.
func (s *Syncer) SyncOnFocus(ctx context.Context) (journal.SyncResult, error) {
	if s.root == "" {
		return journal.SyncResult{}, journal.ErrNoRoot
	}

	current, err := s.listIndexableFiles()
	if err != nil {
		return journal.SyncResult{}, err
	}

	tracked, err := s.store.ListFileEntries(ctx)
	if err != nil {
		return journal.SyncResult{}, err
	}

	var res journal.SyncResult

	trackedByPath := make(map[string]journal.FileIndexEntry, len(tracked))
	for _, fe := range tracked {
		trackedByPath[fe.Path] = fe
	}

	for path, stat := range current {
		fe, ok := trackedByPath[path]
		if !ok {
			res.Added = append(res.Added, path)

			continue
		}

		if !fe.ModTime.Equal(stat.modTime) || fe.Size != stat.size {
			res.Modified = append(res.Modified, path)
		}
	}

	for path := range trackedByPath {
		if _, ok := current[path]; !ok {
			res.Removed = append(res.Removed, path)
		}
	}

	res.HasChanges = len(res.Added)+len(res.Modified)+len(res.Removed) > 0

	if !res.HasChanges {
		s.setLastSync(s.clock.Now())

		return res, nil
	}

	s.log.Info("drift detected",
		"added", len(res.Added),
		"modified", len(res.Modified),
		"removed", len(res.Removed))

	rebuilt, err := s.rebuild.Rebuild(ctx)
	if err != nil {
		return res, err
	}

	res.Rebuild = &rebuilt

	s.setLastSync(s.clock.Now())

	return res, nil
}

// ShouldAutoSync gates periodic background sync: true when at least
// threshold has passed since the last successful sync.
func (s *Syncer) ShouldAutoSync(threshold time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.clock.Now().Sub(s.lastSync) >= threshold
}

func (s *Syncer) setLastSync(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSync = t
}

// listIndexableFiles walks the tree with the same rules the indexer
// scans by: year descriptors, event descriptors, canvas files, and
// non-special markdown items. Media files are deliberately excluded; a
// changed photo alone does not invalidate the index.
func (s *Syncer) listIndexableFiles() (map[string]fileStat, error) {
	out := make(map[string]fileStat)

	years, err := s.fs.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list journal root: %w", err)
	}

	for _, yearEntry := range years {
		if !yearEntry.IsDir() {
			continue
		}

		if _, ok := naming.IsYearFolderName(yearEntry.Name()); !ok {
			continue
		}

		yearRel := yearEntry.Name()

		entries, err := s.fs.ReadDir(filepath.Join(s.root, yearRel))
		if err != nil {
			return nil, fmt.Errorf("list year folder %s: %w", yearRel, err)
		}

		for _, entry := range entries {
			name := entry.Name()

			if entry.IsDir() {
				if strings.HasPrefix(name, ".") {
					continue
				}

				if err := s.collectEventFiles(filepath.Join(yearRel, name), out); err != nil {
					return nil, err
				}

				continue
			}

			if name == journal.YearDescriptor {
				if err := s.collect(filepath.Join(yearRel, name), out); err != nil {
					return nil, err
				}
			}
		}
	}

	return out, nil
}

func (s *Syncer) collectEventFiles(folderRel string, out map[string]fileStat) error {
	entries, err := s.fs.ReadDir(filepath.Join(s.root, folderRel))
	if err != nil {
		return fmt.Errorf("list event folder %s: %w", folderRel, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		indexable := name == journal.EventDescriptor ||
			name == journal.CanvasFileName ||
			(strings.HasSuffix(name, ".md") && name != journal.YearDescriptor)

		if !indexable {
			continue
		}

		if err := s.collect(filepath.Join(folderRel, name), out); err != nil {
			return err
		}
	}

	return nil
}

func (s *Syncer) collect(relPath string, out map[string]fileStat) error {
	info, err := s.fs.Stat(filepath.Join(s.root, relPath))
	if err != nil {
		return fmt.Errorf("stat %s: %w", relPath, err)
	}

	out[relPath] = fileStat{modTime: info.ModTime(), size: info.Size()}

	return nil
}
