package app

import (
	"context"
	"time"

	"github.com/mossland/agentic-orchestrator/internal/core/pipeline"
)

// StageStatus is one row of the per-stage iteration table.
type StageStatus struct {
	Stage      string `json:"stage"`
	Iterations int    `json:"iterations"`
	Limit      int    `json:"limit"`
	Current    bool   `json:"current"`
}

// StatusReport is the full status of the active concept, shaped for both
// human rendering and --json output.
type StatusReport struct {
	ConceptID   string        `json:"concept_id"`
	Stage       string        `json:"stage"`
	Complete    bool          `json:"complete"`
	Rejected    bool          `json:"rejected"`
	Paused      bool          `json:"paused"`
	PausedFor   string        `json:"paused_for,omitempty"`
	Stages      []StageStatus `json:"stages"`
	ReviewScore *float64      `json:"review_score,omitempty"`
	Required    float64       `json:"required_score"`
	Approvals   int           `json:"review_approvals"`
	TestsPassed *bool         `json:"tests_passed,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	ErrorCount  int           `json:"error_count"`
	CreatedAt   time.Time     `json:"created_at"`
	LastUpdated time.Time     `json:"last_updated"`
	NextStep    string        `json:"next_step"`
}

// Status reports the active concept's position in the pipeline. It reads
// only, so a failed previous run still reports its last completed stage.
func (o *Orchestrator) Status(ctx context.Context) (*StatusReport, error) {
	st, err := o.active(ctx)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		ConceptID:   st.ConceptID,
		Stage:       string(st.Stage),
		Complete:    st.IsComplete(),
		Rejected:    st.Stage == pipeline.StageRejected,
		Paused:      st.IsPaused(),
		PausedFor:   st.Errors.PausedReason,
		ReviewScore: st.Quality.ReviewScore,
		Required:    st.Quality.RequiredScore,
		Approvals:   st.Quality.ReviewApprovals,
		TestsPassed: st.Quality.TestsPassed,
		LastError:   st.Errors.LastError,
		ErrorCount:  st.Errors.ErrorCount,
		CreatedAt:   st.CreatedAt,
		LastUpdated: st.LastUpdated,
		NextStep:    nextStepHint(st),
	}
	for _, s := range pipeline.Stages() {
		report.Stages = append(report.Stages, StageStatus{
			Stage:      string(s),
			Iterations: st.Iterations[s],
			Limit:      st.Limits.Max(s),
			Current:    s == st.Stage,
		})
	}
	return report, nil
}

func nextStepHint(st *pipeline.State) string {
	switch {
	case st.IsComplete():
		return "concept is done; run `ao init` to start the next one"
	case st.Stage == pipeline.StageRejected:
		return "concept was rejected; run `ao reset` or `ao init`"
	case st.IsPaused():
		return "run `ao resume` once the provider quota recovers"
	case st.IterationExceeded(st.Stage):
		return "iteration limit exceeded; intervene, then `ao reset --keep-project`"
	default:
		return "run `ao step` to execute the " + string(st.Stage) + " stage"
	}
}
