// Package index is the relational index over the journal file tree:
// events, items, canvas placements, tracked-file bookkeeping, and a flat
// meta table. It is a disposable cache. Every row in it can be
// reconstructed from the markdown tree by a full rebuild, so corruption
// is never fatal and schema upgrades can be lazy.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// DirName is the dot-folder under the journal root holding the index.
const DirName = ".memorylane"

// FileName is the index database file inside DirName.
const FileName = "index.sqlite"

// PathFor returns the index database path for a journal root.
func PathFor(root string) string {
	return filepath.Join(root, DirName, FileName)
}

// Store wraps the SQLite handle. One Store owns one database file; the
// engine facade serializes access to it.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the index database at path, applies
// pragmas, creates missing tables, and upgrades the schema of an older
// snapshot in place.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, path: path}

	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()

		return nil, err
	}

	return s, nil
}

// OpenFresh creates a brand-new empty index at path, discarding any
// stale file there. Rebuilds write into a fresh store next to the live
// one and swap it in on success.
func OpenFresh(ctx context.Context, path string) (*Store, error) {
	for _, stale := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale index file: %w", err)
		}
	}

	return Open(ctx, path)
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("open sqlite: path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	statements := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA mmap_size = 268435456",
		"PRAGMA cache_size = -20000",
		"PRAGMA temp_store = MEMORY",
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}

	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	return err
}

// Flush forces the WAL into the main database file. The write-through
// discipline calls it after every logical mutation so the on-disk file
// is durable, not just the journal.
func (s *Store) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}

	return nil
}

// Snapshot exports the whole database as a single self-contained blob,
// suitable for backup or transfer.
func (s *Store) Snapshot(ctx context.Context) ([]byte, error) {
	tmp := s.path + ".snapshot"

	// VACUUM INTO refuses to overwrite.
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove old snapshot: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", tmp); err != nil {
		return nil, fmt.Errorf("vacuum into snapshot: %w", err)
	}

	defer func() { _ = os.Remove(tmp) }()

	blob, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	return blob, nil
}

// Restore replaces the live database with a previously exported
// snapshot. The store reopens on the restored file; the schema upgrade
// runs in case the snapshot predates a column addition.
func (s *Store) Restore(ctx context.Context, blob []byte) error {
	tmp := s.path + ".restore"

	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("write restore file: %w", err)
	}

	// Validate before touching the live file.
	check, err := openSQLite(ctx, tmp)
	if err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("snapshot not a valid database: %w", err)
	}

	_ = check.Close()

	if err := s.swapFile(ctx, tmp); err != nil {
		_ = os.Remove(tmp)

		return err
	}

	return s.ensureSchema(ctx)
}

// ReplaceWith atomically installs a freshly built store over the live
// one. fresh is consumed: its handle is closed and its file renamed
// away.
func (s *Store) ReplaceWith(ctx context.Context, fresh *Store) error {
	if err := fresh.Flush(ctx); err != nil {
		return err
	}

	freshPath := fresh.path

	if err := fresh.Close(); err != nil {
		return fmt.Errorf("close fresh index: %w", err)
	}

	return s.swapFile(ctx, freshPath)
}

// swapFile closes the live handle, renames src over the database file,
// and reopens.
func (s *Store) swapFile(ctx context.Context, src string) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close live index: %w", err)
	}

	// Sidecar files of the closed handle would shadow the new database.
	for _, sidecar := range []string{s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(sidecar); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove wal sidecar: %w", err)
		}
	}

	if err := os.Rename(src, s.path); err != nil {
		return fmt.Errorf("install index: %w", err)
	}

	db, err := openSQLite(ctx, s.path)
	if err != nil {
		return err
	}

	s.db = db

	return nil
}
