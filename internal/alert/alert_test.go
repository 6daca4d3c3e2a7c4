package alert

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestQuotaExhaustedWritesRecord(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir, slog.Default())
	sink.now = func() time.Time {
		return time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	}

	sink.QuotaExhausted("gemini", "gemini-1.5-pro", "PLANNING_REVIEW", "idea-4-escrow",
		errors.New("quota exceeded for project"))

	records, err := sink.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}

	rec := records[0]
	if rec.Kind != "quota_exhausted" {
		t.Errorf("kind = %q", rec.Kind)
	}
	if rec.Provider != "gemini" || rec.Model != "gemini-1.5-pro" {
		t.Errorf("provider/model = %s/%s", rec.Provider, rec.Model)
	}
	if rec.Stage != "PLANNING_REVIEW" || rec.ConceptID != "idea-4-escrow" {
		t.Errorf("stage/concept = %s/%s", rec.Stage, rec.ConceptID)
	}
	if rec.Message != "quota exceeded for project" {
		t.Errorf("message = %q", rec.Message)
	}
}

func TestQuotaExhaustedDistinctFilesPerModel(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir, slog.Default())
	base := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	n := 0
	sink.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Nanosecond)
	}

	sink.QuotaExhausted("claude", "opus", "DEV", "idea-1", errors.New("quota"))
	sink.QuotaExhausted("claude", "sonnet", "DEV", "idea-1", errors.New("quota"))

	records, err := sink.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 (one file per model)", len(records))
	}
}

func TestListMissingDirectory(t *testing.T) {
	sink := NewFileSink(t.TempDir()+"/never-created", slog.Default())

	records, err := sink.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %d, want 0", len(records))
	}
}
