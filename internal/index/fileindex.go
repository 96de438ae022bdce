package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"memorylane/internal/journal"
)

const fileColumns = "path, kind, mtime_ns, size, content_hash, indexed_at"

// PutFileEntry inserts or replaces the bookkeeping row for a tracked
// file. Modification time keeps nanosecond precision; the drift check
// compares it for equality.
func (s *Store) PutFileEntry(ctx context.Context, fe journal.FileIndexEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO file_index (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fe.Path, string(fe.Kind), fe.ModTime.UnixNano(), fe.Size,
		fe.ContentHash, timeToUnix(fe.IndexedAt),
	)
	if err != nil {
		return fmt.Errorf("put file entry %s: %w", fe.Path, err)
	}

	return nil
}

// GetFileEntry looks a tracked file up by root-relative path.
func (s *Store) GetFileEntry(ctx context.Context, path string) (journal.FileIndexEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM file_index WHERE path = ?", path)

	fe, err := scanFileEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return journal.FileIndexEntry{}, fmt.Errorf("file entry %s: %w", path, ErrNotFound)
	}

	if err != nil {
		return journal.FileIndexEntry{}, fmt.Errorf("get file entry %s: %w", path, err)
	}

	return fe, nil
}

// ListFileEntries returns every tracked file, ordered by path.
func (s *Store) ListFileEntries(ctx context.Context) ([]journal.FileIndexEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM file_index ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("list file entries: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var out []journal.FileIndexEntry

	for rows.Next() {
		fe, err := scanFileEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file entry: %w", err)
		}

		out = append(out, fe)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file entries: %w", err)
	}

	return out, nil
}

// DeleteFileEntriesUnder removes the rows of every tracked file inside a
// folder, used when an event folder is deleted recursively.
func (s *Store) DeleteFileEntriesUnder(ctx context.Context, folderPath string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM file_index WHERE path = ? OR path LIKE ?",
		folderPath, folderPath+string(filepath.Separator)+"%")
	if err != nil {
		return fmt.Errorf("delete file entries under %s: %w", folderPath, err)
	}

	return nil
}

// DeleteFileEntry removes one tracked file's row.
func (s *Store) DeleteFileEntry(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM file_index WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("delete file entry %s: %w", path, err)
	}

	return nil
}

func scanFileEntry(row rowScanner) (journal.FileIndexEntry, error) {
	var (
		fe        journal.FileIndexEntry
		kind      string
		mtimeNS   int64
		indexedAt int64
	)

	err := row.Scan(&fe.Path, &kind, &mtimeNS, &fe.Size, &fe.ContentHash, &indexedAt)
	if err != nil {
		return journal.FileIndexEntry{}, err
	}

	fe.Kind = journal.FileKind(kind)
	fe.ModTime = time.Unix(0, mtimeNS)
	fe.IndexedAt = unixToTime(indexedAt)

	return fe, nil
}
