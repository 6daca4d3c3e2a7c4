package stages

import (
	"context"
	"fmt"
	"os"

	"github.com/mossland/agentic-orchestrator/internal/core/pipeline"
	"github.com/mossland/agentic-orchestrator/internal/provider"
)

// qaPassScore is the review score at or above which the implementation is
// accepted as done.
const qaPassScore = 7.0

// QAHandler validates the implementation against the acceptance criteria
// with an external review model. A failing verdict leaves the concept in QA
// so the next run re-enters it, up to the stage's iteration limit.
type QAHandler struct {
	deps *Deps
}

func NewQAHandler(deps *Deps) *QAHandler {
	return &QAHandler{deps: deps}
}

func (h *QAHandler) Stage() pipeline.Stage { return pipeline.StageQA }

func (h *QAHandler) Execute(ctx context.Context, st *pipeline.State) (*Result, error) {
	devLog, err := h.deps.Workspace.ReadArtifact(st.ConceptID, pipeline.StageDev, "dev_log.md")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no development log found; dev must run first")
		}
		return nil, err
	}
	acceptance, err := h.deps.Workspace.ReadArtifact(st.ConceptID, pipeline.StagePlanningDraft, docAcceptance)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("missing acceptance criteria; planning must run first")
		}
		return nil, err
	}

	// Validation should come from a different provider than the one that
	// implemented; rotate by QA iteration so retries also vary the reviewer.
	rotation := st.Iterations[pipeline.StageQA]
	adapter, err := h.deps.Providers.ForRole(1, rotation)
	if err != nil {
		return nil, err
	}

	resp, err := adapter.Invoke(ctx, provider.Request{
		Role:      "qa",
		Stage:     string(pipeline.StageQA),
		ConceptID: st.ConceptID,
		System:    qaSystem,
		Prompt:    qaPrompt(acceptance, devLog),
	})
	if err != nil {
		return nil, fmt.Errorf("qa review failed: %w", err)
	}

	score, scored := extractScore(resp.Content)
	passed := scored && score >= qaPassScore && extractApproval(resp.Content)
	st.Quality.TestsPassed = &passed

	ref, err := h.deps.Workspace.SaveArtifact(st.ConceptID, pipeline.StageQA,
		"qa_report.md", "QA Report", resp.Content,
		map[string]any{"score": score, "passed": passed, "provider": adapter.Name()})
	if err != nil {
		return nil, err
	}

	if !passed {
		return &Result{
			Success:   false,
			Artifact:  ref,
			Artifacts: []string{ref},
			Message:   fmt.Sprintf("qa failed with score %.1f; concept stays in QA", score),
		}, nil
	}

	return &Result{
		Success:   true,
		Next:      pipeline.StageDone,
		Artifact:  ref,
		Artifacts: []string{ref},
		Message:   fmt.Sprintf("qa passed with score %.1f", score),
	}, nil
}

const qaSystem = "You are a release gatekeeper. Verify the reported implementation against " +
	"the acceptance criteria. Be strict: unverifiable claims count as failures. End with a " +
	"line 'SCORE: <0-10>' and a line 'VERDICT: APPROVE' or 'VERDICT: REVISE'."

func qaPrompt(acceptance, devLog string) string {
	return fmt.Sprintf(`Acceptance criteria:

%s

Reported implementation:

%s

For each criterion state whether the implementation log demonstrates it is
met, partially met, or unaddressed. List the blocking gaps.`, acceptance, devLog)
}
