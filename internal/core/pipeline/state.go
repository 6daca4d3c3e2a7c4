package pipeline

import (
	"fmt"
	"time"
)

// TransitionEvent records one stage transition in a concept's history.
type TransitionEvent struct {
	From       Stage     `json:"from"`
	To         Stage     `json:"to"`
	Artifact   string    `json:"artifact,omitempty"` // reference to the artifact the stage produced
	OccurredAt time.Time `json:"occurred_at"`
}

// Quality holds the quality metrics accumulated across review and QA stages.
type Quality struct {
	ReviewScore     *float64 `json:"review_score,omitempty"`
	ReviewApprovals int      `json:"review_approvals"`
	RequiredScore   float64  `json:"required_score"`
	TestsPassed     *bool    `json:"tests_passed,omitempty"`
}

// Errors tracks failure bookkeeping for a concept.
type Errors struct {
	LastError    string `json:"last_error,omitempty"`
	ErrorCount   int    `json:"error_count"`
	PausedReason string `json:"paused_reason,omitempty"`
}

// Limits bounds how many times a stage may be re-entered before the concept
// is considered failed.
type Limits struct {
	PerStage map[Stage]int `json:"per_stage"`
}

// DefaultLimits returns the iteration limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{PerStage: map[Stage]int{
		StageIdeation:       2,
		StagePlanningDraft:  3,
		StagePlanningReview: 3,
		StageDev:            5,
		StageQA:             3,
	}}
}

// Max returns the iteration limit for a stage. Stages without an explicit
// limit get 1 (a single attempt).
func (l Limits) Max(s Stage) int {
	if l.PerStage == nil {
		return 1
	}
	if max, ok := l.PerStage[s]; ok {
		return max
	}
	return 1
}

// State is the persisted per-concept pipeline record. It is owned
// exclusively by the StateStore and mutated only by the stage handler
// currently responsible for Stage.
type State struct {
	ConceptID   string            `json:"concept_id"`
	Stage       Stage             `json:"stage"`
	Iterations  map[Stage]int     `json:"iterations"`
	Quality     Quality           `json:"quality"`
	Errors      Errors            `json:"errors"`
	History     []TransitionEvent `json:"history"`
	Limits      Limits            `json:"limits"`
	CreatedAt   time.Time         `json:"created_at"`
	LastUpdated time.Time         `json:"last_updated"`
}

// NewState returns the initial state for a freshly created concept.
func NewState(conceptID string, now time.Time) *State {
	return &State{
		ConceptID:   conceptID,
		Stage:       StageIdeation,
		Iterations:  map[Stage]int{},
		Quality:     Quality{RequiredScore: 7.0},
		Limits:      DefaultLimits(),
		CreatedAt:   now,
		LastUpdated: now,
	}
}

// TransitionTo advances the stage. Forward moves and the explicit terminal
// REJECTED are the only legal transitions; backward moves are rejected so
// stage remains monotonically non-decreasing. A stage that needs another
// attempt (plan revision, failed QA) stays where it is and re-enters on the
// next run instead of moving backward.
func (s *State) TransitionTo(next Stage, now time.Time) error {
	if s.Stage.Terminal() {
		return fmt.Errorf("cannot transition out of terminal stage %s", s.Stage)
	}
	allowed := false
	switch {
	case next == StageRejected && s.Stage == StagePlanningReview:
		allowed = true
	case next.Index() > s.Stage.Index():
		allowed = true
	}
	if !allowed {
		return fmt.Errorf("illegal transition %s -> %s", s.Stage, next)
	}

	s.History = append(s.History, TransitionEvent{
		From:       s.Stage,
		To:         next,
		OccurredAt: now,
	})
	s.Stage = next
	s.LastUpdated = now
	return nil
}

// RecordArtifact attaches an artifact reference to the most recent
// transition event, or appends a same-stage event when no transition
// happened yet this iteration.
func (s *State) RecordArtifact(ref string, now time.Time) {
	if n := len(s.History); n > 0 && s.History[n-1].Artifact == "" {
		s.History[n-1].Artifact = ref
		return
	}
	s.History = append(s.History, TransitionEvent{
		From:       s.Stage,
		To:         s.Stage,
		Artifact:   ref,
		OccurredAt: now,
	})
}

// IncrementIteration bumps the iteration counter for the given stage and
// returns the new count.
func (s *State) IncrementIteration(stage Stage) int {
	if s.Iterations == nil {
		s.Iterations = map[Stage]int{}
	}
	s.Iterations[stage]++
	return s.Iterations[stage]
}

// IterationExceeded reports whether the stage's iteration count has gone
// past its configured maximum. Exceeding the limit is fatal for the concept,
// never a silent retry.
func (s *State) IterationExceeded(stage Stage) bool {
	return s.Iterations[stage] > s.Limits.Max(stage)
}

// SetError records a failure without advancing the stage.
func (s *State) SetError(msg string, now time.Time) {
	s.Errors.LastError = msg
	s.Errors.ErrorCount++
	s.LastUpdated = now
}

// PauseForQuota pauses the concept until a human resolves a provider quota
// problem. The stage is left unchanged so the next run re-enters it.
func (s *State) PauseForQuota(reason string, now time.Time) {
	s.Errors.PausedReason = reason
	s.LastUpdated = now
}

// ClearPause removes the paused reason set by PauseForQuota.
func (s *State) ClearPause(now time.Time) {
	s.Errors.PausedReason = ""
	s.LastUpdated = now
}

// IsPaused reports whether the concept is waiting on human intervention.
func (s *State) IsPaused() bool { return s.Errors.PausedReason != "" }

// IsComplete reports whether the concept reached DONE.
func (s *State) IsComplete() bool { return s.Stage == StageDone }

// CanContinue reports whether another step can be executed.
func (s *State) CanContinue() bool {
	return !s.Stage.Terminal() && !s.IsPaused()
}

// ResetForNewConcept re-initializes the state in place, keeping the record
// but starting the pipeline over under the given concept id.
func (s *State) ResetForNewConcept(conceptID string, now time.Time) {
	*s = *NewState(conceptID, now)
}
