// Package stages implements the per-stage handlers of the concept pipeline
// and the runner that drives one stage execution against a concept's state.
package stages

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mossland/agentic-orchestrator/internal/core/pipeline"
	"github.com/mossland/agentic-orchestrator/internal/provider"
)

// Result is the outcome of one stage execution.
type Result struct {
	Success bool
	// Next is the stage to advance to on success; empty means the concept
	// stays in the current stage (recoverable failure, re-entered next run).
	Next pipeline.Stage
	// Artifact is the primary artifact reference recorded in history.
	Artifact  string
	Artifacts []string
	Message   string
	// Fatal marks an outcome requiring human intervention; the concept is
	// not retried on subsequent runs.
	Fatal bool
	// Paused marks a run suspended for quota recovery via resume.
	Paused bool
}

// Handler executes one pipeline stage. Handlers mutate only the quality and
// error fields of the state; stage transitions are applied by the Runner.
type Handler interface {
	Stage() pipeline.Stage
	Execute(ctx context.Context, st *pipeline.State) (*Result, error)
}

// Deps carries the shared dependencies handlers draw from.
type Deps struct {
	Providers *provider.Registry
	Workspace *Workspace
	Log       *slog.Logger
	Now       func() time.Time
	DryRun    bool
}

func (d *Deps) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Runner owns the handler set and the invariants every stage execution
// shares: iteration accounting, limit enforcement, and transitions.
type Runner struct {
	handlers map[pipeline.Stage]Handler
	log      *slog.Logger
	now      func() time.Time
}

// NewRunner builds a runner with the full handler set.
func NewRunner(deps *Deps) *Runner {
	handlers := []Handler{
		NewIdeationHandler(deps),
		NewPlanningDraftHandler(deps),
		NewPlanningReviewHandler(deps),
		NewDevHandler(deps),
		NewQAHandler(deps),
	}
	byStage := make(map[pipeline.Stage]Handler, len(handlers))
	for _, h := range handlers {
		byStage[h.Stage()] = h
	}
	return &Runner{handlers: byStage, log: deps.logger(), now: deps.now}
}

// Run executes the handler for the state's current stage and applies the
// resulting transition. The caller persists the state afterwards; Run
// mutates it regardless of outcome so iteration counts and errors survive
// failed executions.
func (r *Runner) Run(ctx context.Context, st *pipeline.State) (*Result, error) {
	if st.IsComplete() {
		// DONE is terminal and idempotent.
		return &Result{Success: true, Message: "concept is complete"}, nil
	}
	if st.Stage == pipeline.StageRejected {
		return &Result{Success: false, Fatal: true, Message: "concept was rejected"}, nil
	}
	if st.IsPaused() {
		return &Result{Success: false, Paused: true,
			Message: fmt.Sprintf("run is paused: %s", st.Errors.PausedReason)}, nil
	}

	h, ok := r.handlers[st.Stage]
	if !ok {
		return nil, fmt.Errorf("no handler for stage %s", st.Stage)
	}

	st.IncrementIteration(st.Stage)
	if st.IterationExceeded(st.Stage) {
		msg := fmt.Sprintf("stage %s exceeded iteration limit (%d > %d)",
			st.Stage, st.Iterations[st.Stage], st.Limits.Max(st.Stage))
		st.SetError(msg, r.now())
		r.log.Error("iteration limit exceeded",
			"concept", st.ConceptID, "stage", string(st.Stage),
			"iterations", st.Iterations[st.Stage])
		return &Result{Success: false, Fatal: true, Message: msg}, nil
	}

	r.log.Info("executing stage",
		"concept", st.ConceptID, "stage", string(st.Stage),
		"iteration", st.Iterations[st.Stage])

	res, err := h.Execute(ctx, st)
	if err != nil {
		st.SetError(err.Error(), r.now())
		return res, fmt.Errorf("stage %s failed: %w", st.Stage, err)
	}

	if res.Success && res.Next != "" && res.Next != st.Stage {
		if terr := st.TransitionTo(res.Next, r.now()); terr != nil {
			return res, fmt.Errorf("illegal transition out of %s: %w", st.Stage, terr)
		}
	}
	if res.Artifact != "" {
		st.RecordArtifact(res.Artifact, r.now())
	}
	return res, nil
}
