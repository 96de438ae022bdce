package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// MetaGet reads one meta value. ok is false when the key is absent.
func (s *Store) MetaGet(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}

	return value, true, nil
}

// MetaSet writes one meta value.
func (s *Store) MetaSet(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}

	return nil
}

// Categories returns the user-defined category list, in insertion order.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	raw, ok, err := s.MetaGet(ctx, MetaCategories)
	if err != nil || !ok {
		return nil, err
	}

	return decodeStrings(raw), nil
}

// AddCategory appends a category to the list unless already present.
func (s *Store) AddCategory(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}

	cats, err := s.Categories(ctx)
	if err != nil {
		return err
	}

	for _, c := range cats {
		if c == name {
			return nil
		}
	}

	return s.MetaSet(ctx, MetaCategories, encodeStrings(append(cats, name)))
}

// MetaDelete removes one meta key. Deleting an absent key is a no-op.
func (s *Store) MetaDelete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM meta WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("delete meta %s: %w", key, err)
	}

	return nil
}
