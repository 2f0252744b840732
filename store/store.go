// Package store owns all durable state: product records, category statistics,
// scrape tasks, and the enrichment caches. Every other component works on
// in-memory views obtained from or destined for this package.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	identifier    TEXT NOT NULL,
	keyword       TEXT NOT NULL,
	source_kind   TEXT NOT NULL,
	source_value  TEXT NOT NULL,
	name          TEXT,
	brand         TEXT,
	category      TEXT,
	price         REAL,
	rating        REAL,
	review_count  INTEGER,
	sales_volume  INTEGER,
	page_rank     INTEGER,
	sponsored     INTEGER NOT NULL DEFAULT 0,
	url           TEXT,
	sales_3m      INTEGER,
	monthly_sales INTEGER,
	listing_date  TEXT,
	price_min     REAL,
	price_max     REAL,
	price_min_date TEXT,
	price_max_date TEXT,
	filter_status TEXT,
	created_at    TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (identifier, keyword)
);

CREATE TABLE IF NOT EXISTS category_stats (
	keyword       TEXT NOT NULL,
	category      TEXT NOT NULL,
	record_count  INTEGER NOT NULL,
	avg_price     REAL,
	avg_rating    REAL,
	total_reviews INTEGER,
	created_at    TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (keyword, category)
);

CREATE TABLE IF NOT EXISTS scrape_tasks (
	task_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	keyword       TEXT NOT NULL,
	parameters    TEXT,
	status        TEXT NOT NULL,
	last_stage    TEXT,
	error_message TEXT,
	created_at    TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analytics_cache (
	identifier    TEXT PRIMARY KEY,
	sales_3m      INTEGER,
	monthly_sales INTEGER,
	listing_date  TEXT,
	rating        REAL,
	review_count  INTEGER,
	category_path TEXT,
	raw_trends    TEXT,
	updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS price_cache (
	identifier     TEXT PRIMARY KEY,
	current_price  REAL,
	price_min      REAL,
	price_max      REAL,
	price_min_date TEXT,
	price_max_date TEXT,
	listing_date   TEXT,
	raw_data       TEXT,
	updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_records_keyword ON records(keyword);
CREATE INDEX IF NOT EXISTS idx_records_category ON records(category);
CREATE INDEX IF NOT EXISTS idx_tasks_keyword ON scrape_tasks(keyword);
`

// Store wraps the sqlite handle with typed accessors.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path with WAL and a
// generous busy timeout, then applies the schema. The schema DDL is
// idempotent, so re-opening an existing database is safe.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: mkdir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullStr(p *string) sql.NullString {
	if p == nil || *p == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
