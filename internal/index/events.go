package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"memorylane/internal/journal"
)

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = errors.New("not found")

const eventColumns = `id, type, title, description, start_at, end_at,
	place_lat, place_lng, place_label, featured_photo, tags, parent_id,
	file_path, folder_path, created_at, updated_at`

// PutEvent inserts or replaces an event row.
func (s *Store) PutEvent(ctx context.Context, ev journal.Event) error {
	var lat, lng sql.NullFloat64

	var label string

	if ev.Location != nil {
		lat = sql.NullFloat64{Float64: ev.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: ev.Location.Lng, Valid: true}
		label = ev.Location.Label
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.Title, ev.Description,
		timeToUnix(ev.StartAt), timeToUnix(ev.EndAt),
		lat, lng, label, ev.FeaturedPhoto, encodeStrings(ev.Tags),
		ev.ParentID, ev.FilePath, ev.FolderPath,
		timeToUnix(ev.CreatedAt), timeToUnix(ev.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put event %s: %w", ev.ID, err)
	}

	return nil
}

// GetEvent looks an event up by ID.
func (s *Store) GetEvent(ctx context.Context, id string) (journal.Event, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE id = ?", id)

	return scanEvent(row, id)
}

// GetEventByFolder looks an event up by its root-relative folder path.
// At most one event owns a folder.
func (s *Store) GetEventByFolder(ctx context.Context, folderPath string) (journal.Event, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE folder_path = ?", folderPath)

	return scanEvent(row, folderPath)
}

// GetYearEvent returns the year-kind event for a calendar year.
func (s *Store) GetYearEvent(ctx context.Context, year int) (journal.Event, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE type = ? AND folder_path = ?",
		string(journal.EventYear), fmt.Sprintf("%04d", year))

	return scanEvent(row, fmt.Sprintf("year %d", year))
}

// ListEvents returns all events ordered by start date then title.
func (s *Store) ListEvents(ctx context.Context) ([]journal.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events ORDER BY start_at, title")
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	defer func() { _ = rows.Close() }()

	return collectEvents(rows)
}

// ListEventsByParent returns the events under one year event.
func (s *Store) ListEventsByParent(ctx context.Context, parentID string) ([]journal.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE parent_id = ? ORDER BY start_at, title",
		parentID)
	if err != nil {
		return nil, fmt.Errorf("list events by parent: %w", err)
	}

	defer func() { _ = rows.Close() }()

	return collectEvents(rows)
}

// DeleteEvent removes an event and cascades to its items and canvas
// placements. The cascade lives here, not in a foreign key, because the
// whole table is rebuilt from files anyway.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete event: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		"DELETE FROM canvas_items WHERE event_id = ?",
		"DELETE FROM items WHERE event_id = ?",
		"DELETE FROM events WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete event %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete event: %w", err)
	}

	committed = true

	return nil
}

// CountEvents returns row counts for tests and status reporting.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	return s.count(ctx, "events")
}

func (s *Store) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}

	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner, what string) (journal.Event, error) {
	var (
		ev                 journal.Event
		typ, tags          string
		startAt, endAt     int64
		createdAt, updated int64
		lat, lng           sql.NullFloat64
		label              string
	)

	err := row.Scan(
		&ev.ID, &typ, &ev.Title, &ev.Description, &startAt, &endAt,
		&lat, &lng, &label, &ev.FeaturedPhoto, &tags, &ev.ParentID,
		&ev.FilePath, &ev.FolderPath, &createdAt, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return journal.Event{}, fmt.Errorf("event %s: %w", what, ErrNotFound)
	}

	if err != nil {
		return journal.Event{}, fmt.Errorf("scan event %s: %w", what, err)
	}

	ev.Type = journal.EventType(typ)
	ev.StartAt = unixToTime(startAt)
	ev.EndAt = unixToTime(endAt)
	ev.CreatedAt = unixToTime(createdAt)
	ev.UpdatedAt = unixToTime(updated)
	ev.Tags = decodeStrings(tags)

	if lat.Valid && lng.Valid {
		ev.Location = &journal.Location{Lat: lat.Float64, Lng: lng.Float64, Label: label}
	}

	return ev, nil
}

func collectEvents(rows *sql.Rows) ([]journal.Event, error) {
	var out []journal.Event

	for rows.Next() {
		ev, err := scanEvent(rows, "row")
		if err != nil {
			return nil, err
		}

		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return out, nil
}
