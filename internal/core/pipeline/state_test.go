package pipeline

import (
	"testing"
	"time"
)

var fixedTime = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

func TestTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Stage
		to      Stage
		wantErr bool
	}{
		{name: "forward transition", from: StageIdeation, to: StagePlanningDraft},
		{name: "skip ahead is still forward", from: StageIdeation, to: StageDev},
		{name: "review may reject", from: StagePlanningReview, to: StageRejected},
		{name: "review may not move back to draft", from: StagePlanningReview, to: StagePlanningDraft, wantErr: true},
		{name: "backward transition rejected", from: StageDev, to: StageIdeation, wantErr: true},
		{name: "rejection only from review", from: StageDev, to: StageRejected, wantErr: true},
		{name: "no transition out of done", from: StageDone, to: StageQA, wantErr: true},
		{name: "no transition out of rejected", from: StageRejected, to: StageDev, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState("concept-1", fixedTime)
			s.Stage = tt.from

			err := s.TransitionTo(tt.to, fixedTime)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("TransitionTo(%s -> %s) succeeded, want error", tt.from, tt.to)
				}
				if s.Stage != tt.from {
					t.Errorf("stage mutated on failed transition: %s", s.Stage)
				}
				return
			}
			if err != nil {
				t.Fatalf("TransitionTo(%s -> %s) error: %v", tt.from, tt.to, err)
			}
			if s.Stage != tt.to {
				t.Errorf("stage = %s, want %s", s.Stage, tt.to)
			}
			if len(s.History) != 1 {
				t.Fatalf("history length = %d, want 1", len(s.History))
			}
			if s.History[0].From != tt.from || s.History[0].To != tt.to {
				t.Errorf("history event = %s -> %s", s.History[0].From, s.History[0].To)
			}
		})
	}
}

func TestStageMonotonicAcrossRuns(t *testing.T) {
	s := NewState("concept-1", fixedTime)

	path := []Stage{StagePlanningDraft, StagePlanningReview, StageDev, StageQA, StageDone}
	prev := s.Stage.Index()
	for _, next := range path {
		if err := s.TransitionTo(next, fixedTime); err != nil {
			t.Fatalf("TransitionTo(%s): %v", next, err)
		}
		if s.Stage.Index() < prev {
			t.Fatalf("stage moved backward to %s", s.Stage)
		}
		prev = s.Stage.Index()
	}

	if !s.IsComplete() {
		t.Error("state should be complete after reaching DONE")
	}
}

func TestIterationLimit(t *testing.T) {
	s := NewState("concept-1", fixedTime)
	s.Stage = StagePlanningDraft
	max := s.Limits.Max(StagePlanningDraft)

	// Pre-load to max-1, matching a concept that has already failed twice.
	s.Iterations[StagePlanningDraft] = max - 1

	// One failing execution increments to max: still allowed to run.
	if n := s.IncrementIteration(StagePlanningDraft); n != max {
		t.Fatalf("iteration = %d, want %d", n, max)
	}
	if s.IterationExceeded(StagePlanningDraft) {
		t.Fatal("iteration at max should not be exceeded yet")
	}
	s.SetError("provider failed", fixedTime)
	if s.Stage != StagePlanningDraft {
		t.Errorf("stage changed on recoverable failure: %s", s.Stage)
	}

	// The next execution pushes past the limit: fatal for the concept.
	s.IncrementIteration(StagePlanningDraft)
	if !s.IterationExceeded(StagePlanningDraft) {
		t.Fatal("iteration past max should be exceeded")
	}
	if s.Stage != StagePlanningDraft {
		t.Errorf("stage = %s, want PLANNING_DRAFT unchanged", s.Stage)
	}
}

func TestPauseAndResume(t *testing.T) {
	s := NewState("concept-1", fixedTime)
	s.PauseForQuota("openai quota exhausted", fixedTime)

	if !s.IsPaused() {
		t.Fatal("state should be paused")
	}
	if s.CanContinue() {
		t.Error("paused state should not continue")
	}

	s.ClearPause(fixedTime)
	if s.IsPaused() {
		t.Error("pause should be cleared")
	}
	if !s.CanContinue() {
		t.Error("cleared state should continue")
	}
}

func TestRecordArtifact(t *testing.T) {
	s := NewState("concept-1", fixedTime)
	if err := s.TransitionTo(StagePlanningDraft, fixedTime); err != nil {
		t.Fatal(err)
	}

	s.RecordArtifact("planning/PRD.md", fixedTime)
	if got := s.History[len(s.History)-1].Artifact; got != "planning/PRD.md" {
		t.Errorf("artifact = %q", got)
	}

	// A second artifact in the same stage appends a same-stage event.
	s.RecordArtifact("planning/ARCHITECTURE.md", fixedTime)
	last := s.History[len(s.History)-1]
	if last.From != StagePlanningDraft || last.To != StagePlanningDraft {
		t.Errorf("same-stage event = %s -> %s", last.From, last.To)
	}
}

func TestResetForNewConcept(t *testing.T) {
	s := NewState("old", fixedTime)
	s.Stage = StageQA
	s.SetError("boom", fixedTime)

	s.ResetForNewConcept("new", fixedTime)
	if s.ConceptID != "new" || s.Stage != StageIdeation {
		t.Errorf("reset state = %s/%s", s.ConceptID, s.Stage)
	}
	if s.Errors.ErrorCount != 0 {
		t.Error("errors should be cleared on reset")
	}
}
