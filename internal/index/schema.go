package index

import (
	"context"
	"fmt"
)

// SchemaVersion is stored in the meta table at rebuild time. Bump it
// when a rebuild is needed to repopulate new columns.
const SchemaVersion = 2

// Meta keys used by the engine.
const (
	MetaSchemaVersion = "schema_version"
	MetaLastFullIndex = "last_full_index"
	MetaCategories    = "categories"
)

// createStatements create every table and index. They run on each open;
// columns added later are handled by the upgrade pass below.
var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		start_at INTEGER NOT NULL DEFAULT 0,
		end_at INTEGER NOT NULL DEFAULT 0,
		place_lat REAL,
		place_lng REAL,
		place_label TEXT NOT NULL DEFAULT '',
		featured_photo TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		parent_id TEXT NOT NULL DEFAULT '',
		file_path TEXT NOT NULL DEFAULT '',
		folder_path TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		type TEXT NOT NULL,
		slug TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		caption TEXT NOT NULL DEFAULT '',
		happened_at INTEGER NOT NULL DEFAULT 0,
		place TEXT NOT NULL DEFAULT '',
		people TEXT NOT NULL DEFAULT '[]',
		tags TEXT NOT NULL DEFAULT '[]',
		category TEXT NOT NULL DEFAULT '',
		exif TEXT NOT NULL DEFAULT '{}',
		file_path TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS canvas_items (
		event_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		item_slug TEXT NOT NULL DEFAULT '',
		x REAL NOT NULL DEFAULT 0,
		y REAL NOT NULL DEFAULT 0,
		scale REAL NOT NULL DEFAULT 1,
		rotation REAL NOT NULL DEFAULT 0,
		z_index INTEGER NOT NULL DEFAULT 0,
		text_scale REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (event_id, item_id)
	) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS file_index (
		path TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		mtime_ns INTEGER NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		content_hash TEXT NOT NULL DEFAULT '',
		indexed_at INTEGER NOT NULL DEFAULT 0
	) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	) WITHOUT ROWID`,
	"CREATE INDEX IF NOT EXISTS idx_events_parent ON events(parent_id)",
	"CREATE INDEX IF NOT EXISTS idx_events_folder ON events(folder_path)",
	"CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)",
	"CREATE INDEX IF NOT EXISTS idx_items_event ON items(event_id)",
	"CREATE INDEX IF NOT EXISTS idx_items_slug ON items(event_id, slug)",
	"CREATE INDEX IF NOT EXISTS idx_file_kind ON file_index(kind)",
}

// upgradeColumns lists columns added after the initial schema, per
// table. On every open, any column missing from an older snapshot is
// added in place. The pass is idempotent; running it against a current
// database is a no-op.
var upgradeColumns = map[string][]columnDef{
	"events": {
		{"featured_photo", "TEXT NOT NULL DEFAULT ''"},
		{"place_label", "TEXT NOT NULL DEFAULT ''"},
	},
	"items": {
		{"category", "TEXT NOT NULL DEFAULT ''"},
		{"exif", "TEXT NOT NULL DEFAULT '{}'"},
	},
	"canvas_items": {
		{"text_scale", "REAL NOT NULL DEFAULT 0"},
	},
	"file_index": {
		{"size", "INTEGER NOT NULL DEFAULT 0"},
		{"content_hash", "TEXT NOT NULL DEFAULT ''"},
	},
}

type columnDef struct {
	name string
	def  string
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range createStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %q: %w", stmt, err)
		}
	}

	return s.upgradeSchema(ctx)
}

func (s *Store) upgradeSchema(ctx context.Context) error {
	for table, cols := range upgradeColumns {
		existing, err := s.tableColumns(ctx, table)
		if err != nil {
			return err
		}

		for _, col := range cols {
			if existing[col.name] {
				continue
			}

			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, col.name, col.def)
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("upgrade %s.%s: %w", table, col.name, err)
			}
		}
	}

	return nil
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}

	defer func() { _ = rows.Close() }()

	cols := make(map[string]bool)

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal any
			pk         int
		)

		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info %s: %w", table, err)
		}

		cols[name] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table_info %s: %w", table, err)
	}

	return cols, nil
}
