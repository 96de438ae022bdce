package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"memorylane/internal/index"
	"memorylane/internal/journal"
	"memorylane/internal/naming"
)

// Watcher feeds filesystem events into a debounced sync. It watches the
// journal root, every year folder, and every event folder; folders
// created while watching are added on the fly.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	debounce *Debouncer
	log      journal.Logger
}

// NewWatcher builds a watcher over root that calls onChange after
// filesystem activity settles for interval.
func NewWatcher(root string, interval time.Duration, onChange func(), log journal.Logger) (*Watcher, error) {
	if root == "" {
		return nil, journal.ErrNoRoot
	}

	if log == nil {
		log = journal.NewNopLogger()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher:  fw,
		root:     root,
		debounce: NewDebouncer(interval, onChange),
		log:      log,
	}, nil
}

// Run watches until ctx is cancelled or the event stream closes.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addTree(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			w.log.Warn("watch error", "err", err)
		}
	}
}

// Close stops watching and cancels any pending debounced sync.
func (w *Watcher) Close() error {
	w.debounce.Stop()

	return w.watcher.Close()
}

// addTree registers the root, year folders, and event folders.
func (w *Watcher) addTree() error {
	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("watch root: %w", err)
	}

	years, err := filepath.Glob(filepath.Join(w.root, "*"))
	if err != nil {
		return fmt.Errorf("glob year folders: %w", err)
	}

	for _, yearAbs := range years {
		if _, ok := naming.IsYearFolderName(filepath.Base(yearAbs)); !ok {
			continue
		}

		if err := w.watcher.Add(yearAbs); err != nil {
			w.log.Warn("cannot watch year folder", "path", yearAbs, "err", err)

			continue
		}

		events, err := filepath.Glob(filepath.Join(yearAbs, "*"))
		if err != nil {
			continue
		}

		for _, eventAbs := range events {
			name := filepath.Base(eventAbs)
			if strings.HasPrefix(name, ".") {
				continue
			}

			info, err := os.Stat(eventAbs)
			if err != nil || !info.IsDir() {
				continue
			}

			if err := w.watcher.Add(eventAbs); err != nil {
				w.log.Debug("skip watch", "path", eventAbs, "err", err)
			}
		}
	}

	return nil
}

func (w *Watcher) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)

	// The index's own directory churns during rebuilds.
	if strings.Contains(event.Name, index.DirName) || strings.HasPrefix(name, ".") {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		// New folders need their own watch to see files inside them.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err == nil {
				w.log.Debug("watching new folder", "path", event.Name)
			}
		}
	}

	if !relevant(name, event.Op) {
		return
	}

	w.log.Debug("file event", "path", event.Name, "op", event.Op.String())
	w.debounce.Trigger()
}

// relevant filters events down to indexable file shapes: markdown,
// canvas JSON, and removals of anything (a removed folder takes its
// markdown with it).
func relevant(name string, op fsnotify.Op) bool {
	if op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		return true
	}

	return strings.HasSuffix(name, ".md") || name == journal.CanvasFileName
}
