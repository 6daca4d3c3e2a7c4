// Package app wires the domain packages into the services the CLI drives.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mossland/agentic-orchestrator/internal/core/pipeline"
	"github.com/mossland/agentic-orchestrator/internal/gitutil"
	"github.com/mossland/agentic-orchestrator/internal/lock"
	"github.com/mossland/agentic-orchestrator/internal/stages"
	"github.com/mossland/agentic-orchestrator/internal/state"
)

// ErrNoActiveConcept is returned by concept-scoped operations before init.
var ErrNoActiveConcept = errors.New("no active concept: run init first")

// Orchestrator is the per-concept pipeline service behind init, step, loop,
// status, resume, reset and push.
type Orchestrator struct {
	store         state.Store
	runner        *stages.Runner
	guard         *lock.Guard
	git           *gitutil.Repo
	log           *slog.Logger
	now           func() time.Time
	dryRun        bool
	requiredScore float64
	stageLimits   map[string]int
}

// OrchestratorOptions configures the service. RequiredScore and StageLimits
// override the built-in defaults for newly initialized concepts.
type OrchestratorOptions struct {
	Store         state.Store
	Runner        *stages.Runner
	Guard         *lock.Guard
	Git           *gitutil.Repo
	Log           *slog.Logger
	DryRun        bool
	RequiredScore float64
	StageLimits   map[string]int
}

// NewOrchestrator creates the pipeline service.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:         opts.Store,
		runner:        opts.Runner,
		guard:         opts.Guard,
		git:           opts.Git,
		log:           log,
		now:           time.Now,
		dryRun:        opts.DryRun,
		requiredScore: opts.RequiredScore,
		stageLimits:   opts.StageLimits,
	}
}

// InitProject creates a fresh concept and makes it the active one.
func (o *Orchestrator) InitProject(ctx context.Context) (*pipeline.State, error) {
	now := o.now().UTC()
	conceptID := fmt.Sprintf("concept-%s", now.Format("20060102-150405"))

	st := pipeline.NewState(conceptID, now)
	if o.requiredScore > 0 {
		st.Quality.RequiredScore = o.requiredScore
	}
	for stage, limit := range o.stageLimits {
		st.Limits.PerStage[pipeline.Stage(stage)] = limit
	}
	if err := o.store.Save(ctx, st); err != nil {
		return nil, err
	}

	meta, err := o.store.LoadRunMeta(ctx)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			return nil, err
		}
		meta = &state.RunMeta{}
	}
	meta.ActiveConceptID = conceptID
	if err := o.store.SaveRunMeta(ctx, meta); err != nil {
		return nil, err
	}

	o.log.Info("initialized concept", "concept", conceptID)
	return st, nil
}

// active loads the active concept's state.
func (o *Orchestrator) active(ctx context.Context) (*pipeline.State, error) {
	meta, err := o.store.LoadRunMeta(ctx)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, ErrNoActiveConcept
		}
		return nil, err
	}
	if meta.ActiveConceptID == "" {
		return nil, ErrNoActiveConcept
	}
	st, err := o.store.Load(ctx, meta.ActiveConceptID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, fmt.Errorf("active concept %s has no state record: %w",
				meta.ActiveConceptID, err)
		}
		return nil, err
	}
	return st, nil
}

// Step executes one stage of the active concept under the concurrency
// guard. The mutated state is saved whatever the outcome, so iteration
// counts and errors from failed executions survive.
func (o *Orchestrator) Step(ctx context.Context) (*stages.Result, *pipeline.State, error) {
	if err := o.guard.Acquire(); err != nil {
		return nil, nil, err
	}
	defer o.guard.Release()
	return o.step(ctx)
}

func (o *Orchestrator) step(ctx context.Context) (*stages.Result, *pipeline.State, error) {
	st, err := o.active(ctx)
	if err != nil {
		return nil, nil, err
	}

	res, runErr := o.runner.Run(ctx, st)
	if saveErr := o.store.Save(ctx, st); saveErr != nil {
		if runErr != nil {
			return res, st, fmt.Errorf("%w (state save also failed: %v)", runErr, saveErr)
		}
		return res, st, saveErr
	}
	return res, st, runErr
}

// LoopOptions bounds a loop run.
type LoopOptions struct {
	MaxSteps int
	Delay    time.Duration
}

// LoopOutcome summarizes why a loop ended.
type LoopOutcome struct {
	Steps   int
	State   *pipeline.State
	Stopped string
}

// Loop repeats Step under explicit guardrails: it stops on completion,
// rejection, pause, fatal outcome, a failing step, or the step budget.
// The guard is held for the whole loop so the run stays a single logical
// invocation.
func (o *Orchestrator) Loop(ctx context.Context, opts LoopOptions) (*LoopOutcome, error) {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 10
	}
	if err := o.guard.Acquire(); err != nil {
		return nil, err
	}
	defer o.guard.Release()

	outcome := &LoopOutcome{}
	for outcome.Steps < opts.MaxSteps {
		if ctx.Err() != nil {
			outcome.Stopped = "canceled"
			return outcome, ctx.Err()
		}

		res, st, err := o.step(ctx)
		outcome.State = st
		outcome.Steps++
		if err != nil {
			outcome.Stopped = "step failed"
			return outcome, err
		}
		switch {
		case st.IsComplete():
			outcome.Stopped = "done"
			return outcome, nil
		case res.Fatal:
			outcome.Stopped = "fatal: " + res.Message
			return outcome, nil
		case res.Paused:
			outcome.Stopped = "paused: " + res.Message
			return outcome, nil
		case !res.Success:
			// Recoverable failure: stage unchanged, retry after the delay.
		}

		if opts.Delay > 0 && outcome.Steps < opts.MaxSteps {
			select {
			case <-ctx.Done():
				outcome.Stopped = "canceled"
				return outcome, ctx.Err()
			case <-time.After(opts.Delay):
			}
		}
	}
	outcome.Stopped = "step budget exhausted"
	return outcome, nil
}

// Resume lifts a quota pause so the paused stage re-enters on the next
// step. Resuming an unpaused concept is a no-op.
func (o *Orchestrator) Resume(ctx context.Context) (*pipeline.State, error) {
	st, err := o.active(ctx)
	if err != nil {
		return nil, err
	}
	if !st.IsPaused() {
		o.log.Info("concept is not paused", "concept", st.ConceptID)
		return st, nil
	}
	reason := st.Errors.PausedReason
	st.ClearPause(o.now().UTC())
	if err := o.store.Save(ctx, st); err != nil {
		return nil, err
	}
	o.log.Info("resumed concept", "concept", st.ConceptID, "was_paused_for", reason)
	return st, nil
}

// Reset starts the pipeline over. With keepConcept the same concept id is
// retained; otherwise a fresh concept is initialized.
func (o *Orchestrator) Reset(ctx context.Context, keepConcept bool) (*pipeline.State, error) {
	st, err := o.active(ctx)
	if err != nil {
		return nil, err
	}
	if !keepConcept {
		return o.InitProject(ctx)
	}
	st.ResetForNewConcept(st.ConceptID, o.now().UTC())
	if err := o.store.Save(ctx, st); err != nil {
		return nil, err
	}
	o.log.Info("reset concept", "concept", st.ConceptID)
	return st, nil
}

// Push commits pending artifact changes and pushes the repository. In
// dry-run mode it only reports what would happen.
func (o *Orchestrator) Push(ctx context.Context) error {
	if o.dryRun {
		o.log.Info("dry-run: would commit and push")
		return nil
	}
	st, err := o.active(ctx)
	if err != nil && !errors.Is(err, ErrNoActiveConcept) {
		return err
	}
	msg := "Update orchestrator artifacts"
	if st != nil {
		msg = fmt.Sprintf("Update artifacts for %s (%s)", st.ConceptID, st.Stage)
	}
	branch, err := o.git.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	if err := o.git.CommitAll(ctx, msg); err != nil {
		return err
	}
	if err := o.git.Push(ctx); err != nil {
		return err
	}
	o.log.Info("pushed artifacts", "branch", branch)
	return nil
}
