package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"memorylane/internal/journal"
)

const itemColumns = `id, event_id, type, slug, content, caption,
	happened_at, place, people, tags, category, exif, file_path,
	created_at, updated_at`

// PutItem inserts or replaces an item row.
func (s *Store) PutItem(ctx context.Context, it journal.Item) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.EventID, string(it.Type), it.Slug, it.Content, it.Caption,
		timeToUnix(it.HappenedAt), it.Place,
		encodeStrings(it.People), encodeStrings(it.Tags),
		it.Category, encodeStringMap(it.Exif), it.FilePath,
		timeToUnix(it.CreatedAt), timeToUnix(it.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put item %s: %w", it.ID, err)
	}

	return nil
}

// GetItem looks an item up by ID.
func (s *Store) GetItem(ctx context.Context, id string) (journal.Item, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM items WHERE id = ?", id)

	return scanItem(row, id)
}

// GetItemBySlug looks an item up by its slug within one event.
func (s *Store) GetItemBySlug(ctx context.Context, eventID, slug string) (journal.Item, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM items WHERE event_id = ? AND slug = ?",
		eventID, slug)

	return scanItem(row, eventID+"/"+slug)
}

// ListItemsByEvent returns an event's items ordered by happened-at then
// slug.
func (s *Store) ListItemsByEvent(ctx context.Context, eventID string) ([]journal.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM items WHERE event_id = ? ORDER BY happened_at, slug",
		eventID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var out []journal.Item

	for rows.Next() {
		it, err := scanItem(rows, "row")
		if err != nil {
			return nil, err
		}

		out = append(out, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	return out, nil
}

// DeleteItem removes an item row and its canvas placement.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete item: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM canvas_items WHERE item_id = ?", id); err != nil {
		return fmt.Errorf("delete item canvas %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete item: %w", err)
	}

	committed = true

	return nil
}

// CountItems returns the items row count.
func (s *Store) CountItems(ctx context.Context) (int, error) {
	return s.count(ctx, "items")
}

func scanItem(row rowScanner, what string) (journal.Item, error) {
	var (
		it                          journal.Item
		typ, people, tags, exif     string
		happenedAt, created, update int64
	)

	err := row.Scan(
		&it.ID, &it.EventID, &typ, &it.Slug, &it.Content, &it.Caption,
		&happenedAt, &it.Place, &people, &tags, &it.Category, &exif,
		&it.FilePath, &created, &update,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return journal.Item{}, fmt.Errorf("item %s: %w", what, ErrNotFound)
	}

	if err != nil {
		return journal.Item{}, fmt.Errorf("scan item %s: %w", what, err)
	}

	it.Type = journal.ItemType(typ)
	it.HappenedAt = unixToTime(happenedAt)
	it.CreatedAt = unixToTime(created)
	it.UpdatedAt = unixToTime(update)
	it.People = decodeStrings(people)
	it.Tags = decodeStrings(tags)
	it.Exif = decodeStringMap(exif)

	return it, nil
}
