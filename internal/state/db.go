// Package state persists per-concept pipeline records and run metadata in
// SQLite. Saves are transactional per concept: a save either fully replaces
// the prior record or fails leaving it intact.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_states (
	concept_id TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS run_metadata (
	id                INTEGER PRIMARY KEY CHECK (id = 1),
	active_concept_id TEXT,
	last_run_id       TEXT,
	last_run_at       DATETIME,
	next_run_at       DATETIME
);

CREATE TABLE IF NOT EXISTS usage_ledger (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	day           TEXT NOT NULL,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	ok            INTEGER NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_day_provider ON usage_ledger(day, provider);
`

// Open opens (creating if needed) the orchestrator database at path and
// applies the schema. The parent directory is created when missing.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database with the schema applied. Used by
// tests and dry runs.
func OpenMemory() (*sql.DB, error) {
	return Open(":memory:")
}
