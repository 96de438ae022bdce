package index

import (
	"context"
	"fmt"

	"memorylane/internal/journal"
)

const canvasColumns = `event_id, item_id, item_slug, x, y, scale,
	rotation, z_index, text_scale`

// PutCanvasItem inserts or replaces one placement. At most one row
// exists per (event, item) pair.
func (s *Store) PutCanvasItem(ctx context.Context, ci journal.CanvasItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO canvas_items (`+canvasColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ci.EventID, ci.ItemID, ci.ItemSlug,
		ci.X, ci.Y, ci.Scale, ci.Rotation, ci.ZIndex, ci.TextScale,
	)
	if err != nil {
		return fmt.Errorf("put canvas item %s/%s: %w", ci.EventID, ci.ItemID, err)
	}

	return nil
}

// ListCanvasByEvent returns an event's placements ordered by z-index.
func (s *Store) ListCanvasByEvent(ctx context.Context, eventID string) ([]journal.CanvasItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+canvasColumns+" FROM canvas_items WHERE event_id = ? ORDER BY z_index, item_slug",
		eventID)
	if err != nil {
		return nil, fmt.Errorf("list canvas items: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var out []journal.CanvasItem

	for rows.Next() {
		var ci journal.CanvasItem

		err := rows.Scan(
			&ci.EventID, &ci.ItemID, &ci.ItemSlug,
			&ci.X, &ci.Y, &ci.Scale, &ci.Rotation, &ci.ZIndex, &ci.TextScale,
		)
		if err != nil {
			return nil, fmt.Errorf("scan canvas item: %w", err)
		}

		out = append(out, ci)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canvas items: %w", err)
	}

	return out, nil
}

// UpdateCanvasSlug rewrites the stored slug on an item's placements
// after a rename. A no-op when the item has no placement.
func (s *Store) UpdateCanvasSlug(ctx context.Context, itemID, slug string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE canvas_items SET item_slug = ? WHERE item_id = ?", slug, itemID)
	if err != nil {
		return fmt.Errorf("update canvas slug for %s: %w", itemID, err)
	}

	return nil
}

// DeleteCanvasItem removes one placement.
func (s *Store) DeleteCanvasItem(ctx context.Context, eventID, itemID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM canvas_items WHERE event_id = ? AND item_id = ?",
		eventID, itemID)
	if err != nil {
		return fmt.Errorf("delete canvas item %s/%s: %w", eventID, itemID, err)
	}

	return nil
}

// DeleteCanvasByEvent removes every placement of one event, used before
// re-saving a full layout.
func (s *Store) DeleteCanvasByEvent(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM canvas_items WHERE event_id = ?", eventID)
	if err != nil {
		return fmt.Errorf("delete canvas for event %s: %w", eventID, err)
	}

	return nil
}

// CountCanvasItems returns the canvas_items row count.
func (s *Store) CountCanvasItems(ctx context.Context) (int, error) {
	return s.count(ctx, "canvas_items")
}
