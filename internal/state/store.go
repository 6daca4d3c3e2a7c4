package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mossland/agentic-orchestrator/internal/core/pipeline"
)

// ErrNotFound is returned by Load when no record exists for a concept.
// Callers must initialize state explicitly; a missing record is never
// silently treated as a fresh default.
var ErrNotFound = errors.New("pipeline state not found")

// Store is the persistence port for pipeline state and run metadata.
type Store interface {
	Load(ctx context.Context, conceptID string) (*pipeline.State, error)
	Save(ctx context.Context, st *pipeline.State) error
	Delete(ctx context.Context, conceptID string) error
	List(ctx context.Context) ([]*pipeline.State, error)

	LoadRunMeta(ctx context.Context) (*RunMeta, error)
	SaveRunMeta(ctx context.Context, meta *RunMeta) error
}

// RunMeta is the single durable record of scheduler bookkeeping: the active
// concept the legacy step commands operate on, plus last/next run times.
type RunMeta struct {
	ActiveConceptID string
	LastRunID       string
	LastRunAt       time.Time
	NextRunAt       time.Time
}

// SQLiteStore implements Store over a SQLite handle.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over an opened database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load retrieves a concept's pipeline state, or ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, conceptID string) (*pipeline.State, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM pipeline_states WHERE concept_id = ?", conceptID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("concept %s: %w", conceptID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline state: %w", err)
	}

	var st pipeline.State
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return nil, fmt.Errorf("corrupt pipeline state for %s: %w", conceptID, err)
	}
	return &st, nil
}

// Save atomically replaces the concept's record. The upsert runs in an
// implicit transaction, so a failed save leaves the prior record intact.
func (s *SQLiteStore) Save(ctx context.Context, st *pipeline.State) error {
	if st.ConceptID == "" {
		return fmt.Errorf("pipeline state must have a concept id")
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_states (concept_id, stage, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(concept_id) DO UPDATE SET
			stage = excluded.stage,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		st.ConceptID, string(st.Stage), string(payload), st.CreatedAt, st.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to save pipeline state: %w", err)
	}
	return nil
}

// Delete removes a concept's record. Deleting a missing record is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, conceptID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM pipeline_states WHERE concept_id = ?", conceptID); err != nil {
		return fmt.Errorf("failed to delete pipeline state: %w", err)
	}
	return nil
}

// List returns all persisted states ordered by creation time.
func (s *SQLiteStore) List(ctx context.Context) ([]*pipeline.State, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM pipeline_states ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline states: %w", err)
	}
	defer rows.Close()

	var states []*pipeline.State
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline state: %w", err)
		}
		var st pipeline.State
		if err := json.Unmarshal([]byte(payload), &st); err != nil {
			return nil, fmt.Errorf("corrupt pipeline state: %w", err)
		}
		states = append(states, &st)
	}
	return states, rows.Err()
}

// LoadRunMeta retrieves the run metadata record, or ErrNotFound before the
// first init.
func (s *SQLiteStore) LoadRunMeta(ctx context.Context) (*RunMeta, error) {
	var (
		active    sql.NullString
		runID     sql.NullString
		lastRunAt sql.NullTime
		nextRunAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT active_concept_id, last_run_id, last_run_at, next_run_at FROM run_metadata WHERE id = 1",
	).Scan(&active, &runID, &lastRunAt, &nextRunAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run metadata: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run metadata: %w", err)
	}

	meta := &RunMeta{
		ActiveConceptID: active.String,
		LastRunID:       runID.String,
	}
	if lastRunAt.Valid {
		meta.LastRunAt = lastRunAt.Time
	}
	if nextRunAt.Valid {
		meta.NextRunAt = nextRunAt.Time
	}
	return meta, nil
}

// SaveRunMeta atomically replaces the run metadata record.
func (s *SQLiteStore) SaveRunMeta(ctx context.Context, meta *RunMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_metadata (id, active_concept_id, last_run_id, last_run_at, next_run_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			active_concept_id = excluded.active_concept_id,
			last_run_id = excluded.last_run_id,
			last_run_at = excluded.last_run_at,
			next_run_at = excluded.next_run_at`,
		meta.ActiveConceptID, meta.LastRunID, meta.LastRunAt, meta.NextRunAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run metadata: %w", err)
	}
	return nil
}
