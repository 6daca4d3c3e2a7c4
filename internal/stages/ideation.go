package stages

import (
	"context"
	"fmt"

	"github.com/mossland/agentic-orchestrator/internal/core/pipeline"
	"github.com/mossland/agentic-orchestrator/internal/provider"
)

// IdeationHandler generates candidate service ideas, selects the most
// promising one and records it as the concept's founding artifact.
type IdeationHandler struct {
	deps *Deps
}

func NewIdeationHandler(deps *Deps) *IdeationHandler {
	return &IdeationHandler{deps: deps}
}

func (h *IdeationHandler) Stage() pipeline.Stage { return pipeline.StageIdeation }

func (h *IdeationHandler) Execute(ctx context.Context, st *pipeline.State) (*Result, error) {
	adapter, err := h.deps.Providers.Default()
	if err != nil {
		return nil, err
	}

	ideas, err := adapter.Invoke(ctx, provider.Request{
		Role:      "ideation",
		Stage:     string(pipeline.StageIdeation),
		ConceptID: st.ConceptID,
		System:    ideationSystem,
		Prompt:    ideationPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("idea generation failed: %w", err)
	}

	ideasRef, err := h.deps.Workspace.SaveArtifact(st.ConceptID, pipeline.StageIdeation,
		"ideas.md", "Project Ideas", ideas.Content, map[string]any{"ideas_count": 3})
	if err != nil {
		return nil, err
	}

	selected, err := adapter.Invoke(ctx, provider.Request{
		Role:      "ideation",
		Stage:     string(pipeline.StageIdeation),
		ConceptID: st.ConceptID,
		System:    "You are a project evaluator. Select the best idea and explain why.",
		Prompt:    selectionPrompt(ideas.Content),
	})
	if err != nil {
		return nil, fmt.Errorf("idea selection failed: %w", err)
	}

	selectedRef, err := h.deps.Workspace.SaveArtifact(st.ConceptID, pipeline.StageIdeation,
		"selected_idea.md", "Selected Project Idea", selected.Content,
		map[string]any{"status": "selected"})
	if err != nil {
		return nil, err
	}

	return &Result{
		Success:   true,
		Next:      pipeline.StagePlanningDraft,
		Artifact:  selectedRef,
		Artifacts: []string{ideasRef, selectedRef},
		Message:   "generated and selected a project idea",
	}, nil
}

const ideationSystem = "You are a Web3 product strategist for the Mossland ecosystem. " +
	"You propose small, buildable services with a clear token or community angle."

const ideationPrompt = `Generate 3 ideas for micro Web3 services in the Mossland ecosystem.

For each idea provide:
- A short, memorable name
- One-paragraph summary of the problem and the service
- The core user flow in 3-5 steps
- Why it fits Mossland (token utility, community, or metaverse tie-in)
- Rough build scope (what a 1-2 week MVP contains)

Keep every idea small enough that a single developer could ship the MVP.`

func selectionPrompt(ideas string) string {
	return fmt.Sprintf(`Here are candidate project ideas:

%s

Select the single best idea by feasibility and ecosystem fit. Respond with:
- The chosen idea's name as a heading
- A refined one-paragraph summary
- The top three risks
- The MVP scope, trimmed to the essentials`, ideas)
}
