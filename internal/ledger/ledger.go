// Package ledger records every provider call, successful or failed, so usage
// can be audited per day, provider and model.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Ledger appends provider call records to the usage_ledger table and
// aggregates them into daily summaries.
type Ledger struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// New creates a ledger over an opened orchestrator database.
func New(db *sql.DB, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{db: db, log: log, now: time.Now}
}

// RecordCall appends one record. Ledger writes are best-effort: a failed
// write is logged and must never fail the provider call it accounts for.
func (l *Ledger) RecordCall(ctx context.Context, provider, model string, ok bool, inputTokens, outputTokens int) {
	now := l.now().UTC()
	okVal := 0
	if ok {
		okVal = 1
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO usage_ledger (day, provider, model, ok, input_tokens, output_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		now.Format("2006-01-02"), provider, model, okVal, inputTokens, outputTokens, now,
	)
	if err != nil {
		l.log.Warn("failed to record provider call",
			"provider", provider, "model", model, "error", err)
	}
}

// Usage is the aggregate for one provider/model on one day.
type Usage struct {
	Day          string `json:"day"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Calls        int    `json:"calls"`
	Failures     int    `json:"failures"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// DailySummary aggregates records for one day (YYYY-MM-DD), grouped by
// provider and model.
func (l *Ledger) DailySummary(ctx context.Context, day string) ([]Usage, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT day, provider, model,
			COUNT(*),
			SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END),
			SUM(input_tokens),
			SUM(output_tokens)
		FROM usage_ledger
		WHERE day = ?
		GROUP BY provider, model
		ORDER BY provider, model`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage ledger: %w", err)
	}
	defer rows.Close()

	var out []Usage
	for rows.Next() {
		var u Usage
		if err := rows.Scan(&u.Day, &u.Provider, &u.Model, &u.Calls, &u.Failures, &u.InputTokens, &u.OutputTokens); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Today is a convenience wrapper over DailySummary for the current UTC day.
func (l *Ledger) Today(ctx context.Context) ([]Usage, error) {
	return l.DailySummary(ctx, l.now().UTC().Format("2006-01-02"))
}
