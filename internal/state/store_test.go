package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mossland/agentic-orchestrator/internal/core/pipeline"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db)
}

func TestLoadMissingReturnsErrNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(context.Background(), "idea-1-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	st := pipeline.NewState("idea-7-token-tip-jar", now)
	st.IncrementIteration(pipeline.StageIdeation)
	if err := st.TransitionTo(pipeline.StagePlanningDraft, now); err != nil {
		t.Fatal(err)
	}
	st.RecordArtifact("projects/idea-7-token-tip-jar/IDEATION/selected_idea.md", now)
	score := 8.5
	st.Quality.ReviewScore = &score

	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, "idea-7-token-tip-jar")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Stage != pipeline.StagePlanningDraft {
		t.Errorf("stage = %s, want %s", got.Stage, pipeline.StagePlanningDraft)
	}
	if got.Iterations[pipeline.StageIdeation] != 1 {
		t.Errorf("ideation iterations = %d, want 1", got.Iterations[pipeline.StageIdeation])
	}
	if got.Quality.ReviewScore == nil || *got.Quality.ReviewScore != 8.5 {
		t.Errorf("review score = %v, want 8.5", got.Quality.ReviewScore)
	}
	if len(got.History) != 1 {
		t.Errorf("history length = %d, want 1", len(got.History))
	}
}

func TestSaveUpsertsExistingRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st := pipeline.NewState("idea-2-dao-vote", time.Now().UTC())
	if err := store.Save(ctx, st); err != nil {
		t.Fatal(err)
	}

	if err := st.TransitionTo(pipeline.StagePlanningDraft, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, st); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load(ctx, "idea-2-dao-vote")
	if err != nil {
		t.Fatal(err)
	}
	if got.Stage != pipeline.StagePlanningDraft {
		t.Errorf("stage = %s, want %s after upsert", got.Stage, pipeline.StagePlanningDraft)
	}

	states, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 1 {
		t.Errorf("record count = %d, want 1 (upsert, not insert)", len(states))
	}
}

func TestSaveRejectsEmptyConceptID(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(context.Background(), &pipeline.State{}); err == nil {
		t.Fatal("Save with empty concept id should fail")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st := pipeline.NewState("idea-3-nft-badge", time.Now().UTC())
	if err := store.Save(ctx, st); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "idea-3-nft-badge"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ctx, "idea-3-nft-badge"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error after delete = %v, want ErrNotFound", err)
	}
	// Deleting a missing record is not an error.
	if err := store.Delete(ctx, "idea-3-nft-badge"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestRunMetaRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.LoadRunMeta(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error before first save = %v, want ErrNotFound", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	meta := &RunMeta{
		ActiveConceptID: "idea-9-multisig",
		LastRunID:       "run-abc123",
		LastRunAt:       now,
		NextRunAt:       now.Add(6 * time.Hour),
	}
	if err := store.SaveRunMeta(ctx, meta); err != nil {
		t.Fatalf("SaveRunMeta: %v", err)
	}

	got, err := store.LoadRunMeta(ctx)
	if err != nil {
		t.Fatalf("LoadRunMeta: %v", err)
	}
	if got.ActiveConceptID != meta.ActiveConceptID {
		t.Errorf("active concept = %q, want %q", got.ActiveConceptID, meta.ActiveConceptID)
	}
	if !got.LastRunAt.Equal(meta.LastRunAt) {
		t.Errorf("last run at = %v, want %v", got.LastRunAt, meta.LastRunAt)
	}

	// Saving again replaces the singleton row rather than adding one.
	meta.ActiveConceptID = ""
	if err := store.SaveRunMeta(ctx, meta); err != nil {
		t.Fatal(err)
	}
	got, err = store.LoadRunMeta(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ActiveConceptID != "" {
		t.Errorf("active concept = %q, want cleared", got.ActiveConceptID)
	}
}
