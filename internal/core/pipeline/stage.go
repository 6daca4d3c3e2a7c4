// Package pipeline contains the pure business logic for the stage state
// machine. This is part of the Functional Core - no I/O, only pure functions.
package pipeline

import "fmt"

// Stage represents one phase of the fixed pipeline a concept passes through.
type Stage string

const (
	StageIdeation       Stage = "IDEATION"
	StagePlanningDraft  Stage = "PLANNING_DRAFT"
	StagePlanningReview Stage = "PLANNING_REVIEW"
	StageDev            Stage = "DEV"
	StageQA             Stage = "QA"
	StageDone           Stage = "DONE"

	// StageRejected is the implicit terminal state reachable from
	// PLANNING_REVIEW when a concept is not worth pursuing.
	StageRejected Stage = "REJECTED"
)

// stageOrder defines the forward sequence of the pipeline.
var stageOrder = []Stage{
	StageIdeation,
	StagePlanningDraft,
	StagePlanningReview,
	StageDev,
	StageQA,
	StageDone,
}

// Stages returns the pipeline stages in execution order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// ParseStage converts a stored string into a Stage.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageIdeation, StagePlanningDraft, StagePlanningReview,
		StageDev, StageQA, StageDone, StageRejected:
		return Stage(s), nil
	}
	return "", fmt.Errorf("unknown stage: %q", s)
}

// Index returns the position of the stage in the forward sequence, or -1 for
// terminal-only stages (REJECTED).
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s in the forward sequence. The last
// stage (DONE) and REJECTED have no successor.
func (s Stage) Next() (Stage, bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[i+1], true
}

// Terminal reports whether the stage is a terminal state.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageRejected
}
