package stages

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mossland/agentic-orchestrator/internal/core/pipeline"
	"github.com/mossland/agentic-orchestrator/internal/personas"
	"github.com/mossland/agentic-orchestrator/internal/provider"
)

// Planning documents produced by the draft stage and consumed by review,
// dev and QA.
const (
	docPRD          = "PRD.md"
	docArchitecture = "ARCHITECTURE.md"
	docTasks        = "TASKS.md"
	docAcceptance   = "ACCEPTANCE.md"
)

// rejectScore is the review average below which a concept is rejected
// outright instead of sent back for revision.
const rejectScore = 4.0

// PlanningDraftHandler turns the selected idea into the four planning
// documents.
type PlanningDraftHandler struct {
	deps *Deps
}

func NewPlanningDraftHandler(deps *Deps) *PlanningDraftHandler {
	return &PlanningDraftHandler{deps: deps}
}

func (h *PlanningDraftHandler) Stage() pipeline.Stage { return pipeline.StagePlanningDraft }

func (h *PlanningDraftHandler) Execute(ctx context.Context, st *pipeline.State) (*Result, error) {
	idea, err := h.deps.Workspace.ReadArtifact(st.ConceptID, pipeline.StageIdeation, "selected_idea.md")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no selected idea found; ideation must run first")
		}
		return nil, err
	}

	// Feedback exists when an earlier concept attempt left a review analysis
	// behind, e.g. after a reset that kept the workspace.
	feedback, _ := h.deps.Workspace.ReadArtifact(st.ConceptID, pipeline.StagePlanningReview, "analysis.md")

	refs, err := draftPlanningDocs(ctx, h.deps, st, idea, feedback)
	if err != nil {
		return nil, err
	}

	return &Result{
		Success:   true,
		Next:      pipeline.StagePlanningReview,
		Artifact:  refs[0],
		Artifacts: refs,
		Message:   "planning documents drafted",
	}, nil
}

// draftPlanningDocs generates the four planning documents from the selected
// idea, folding review feedback into the prompts when present. Shared by the
// draft stage and the review stage's revision pass.
func draftPlanningDocs(ctx context.Context, deps *Deps, st *pipeline.State, idea, feedback string) ([]string, error) {
	adapter, err := deps.Providers.Default()
	if err != nil {
		return nil, err
	}

	docs := []struct {
		file   string
		title  string
		prompt string
	}{
		{docPRD, "Product Requirements Document", prdPrompt(idea, feedback)},
		{docArchitecture, "Architecture", architecturePrompt(idea, feedback)},
		{docTasks, "Task Breakdown", tasksPrompt(idea)},
		{docAcceptance, "Acceptance Criteria", acceptancePrompt(idea)},
	}

	var refs []string
	for _, doc := range docs {
		resp, err := adapter.Invoke(ctx, provider.Request{
			Role:      "planning",
			Stage:     string(pipeline.StagePlanningDraft),
			ConceptID: st.ConceptID,
			System:    planningSystem,
			Prompt:    doc.prompt,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", doc.file, err)
		}
		ref, err := deps.Workspace.SaveArtifact(st.ConceptID, pipeline.StagePlanningDraft,
			doc.file, doc.title, resp.Content,
			map[string]any{"iteration": st.Iterations[st.Stage]})
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
		deps.logger().Info("generated planning document",
			"concept", st.ConceptID, "document", doc.file)
	}
	return refs, nil
}

// PlanningReviewHandler fans the plan out to the review board. Each role is
// bound to a provider by rotation so no provider always plays the same role;
// reviews run concurrently and are joined before scoring. A "needs revision"
// verdict keeps the concept in this stage: the next entry redrafts the plan
// from the saved analysis before the board reviews it again, so the stage
// never moves backward.
type PlanningReviewHandler struct {
	deps *Deps
}

func NewPlanningReviewHandler(deps *Deps) *PlanningReviewHandler {
	return &PlanningReviewHandler{deps: deps}
}

func (h *PlanningReviewHandler) Stage() pipeline.Stage { return pipeline.StagePlanningReview }

type review struct {
	role     personas.Role
	provider string
	content  string
	score    float64
	scored   bool
	approved bool
	err      error
}

func (h *PlanningReviewHandler) Execute(ctx context.Context, st *pipeline.State) (*Result, error) {
	if err := h.redraftIfRevising(ctx, st); err != nil {
		return nil, err
	}

	plan, err := h.loadPlan(st.ConceptID)
	if err != nil {
		return nil, err
	}

	board := personas.Board()
	// The iteration count rotates role-to-provider assignment between
	// revision rounds.
	rotation := st.Iterations[pipeline.StagePlanningReview] - 1
	if rotation < 0 {
		rotation = 0
	}

	reviews := make([]review, len(board))
	g, gctx := errgroup.WithContext(ctx)
	for i, role := range board {
		i, role := i, role
		adapter, err := h.deps.Providers.ForRole(i, rotation)
		if err != nil {
			return nil, err
		}
		reviews[i].role = role
		reviews[i].provider = adapter.Name()
		g.Go(func() error {
			resp, err := adapter.Invoke(gctx, provider.Request{
				Role:      role.Key,
				Stage:     string(pipeline.StagePlanningReview),
				ConceptID: st.ConceptID,
				System:    role.System,
				Prompt:    reviewPrompt(role, plan),
			})
			if err != nil {
				reviews[i].err = err
				// Reviews are independent; one failed reviewer must not
				// cancel the rest.
				return nil
			}
			reviews[i].content = resp.Content
			reviews[i].score, reviews[i].scored = extractScore(resp.Content)
			reviews[i].approved = extractApproval(resp.Content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var completed []review
	allQuota := true
	for _, rv := range reviews {
		if rv.err == nil {
			completed = append(completed, rv)
			allQuota = false
		} else if !provider.IsQuotaExhausted(rv.err) {
			allQuota = false
		}
	}

	if len(completed) == 0 {
		if allQuota {
			reason := "review quota exhausted on all providers"
			st.PauseForQuota(reason, h.deps.now())
			return &Result{Success: false, Paused: true, Message: reason}, nil
		}
		return nil, fmt.Errorf("all %d reviews failed: %v", len(board), reviews[0].err)
	}

	var refs []string
	for _, rv := range completed {
		ref, err := h.deps.Workspace.SaveArtifact(st.ConceptID, pipeline.StagePlanningReview,
			fmt.Sprintf("review_%s.md", rv.role.Key),
			fmt.Sprintf("%s Review", rv.role.Name), rv.content,
			map[string]any{"provider": rv.provider, "score": rv.score})
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	avg, approvals := analyze(completed)
	st.Quality.ReviewScore = &avg
	st.Quality.ReviewApprovals = approvals

	analysisRef, err := h.deps.Workspace.SaveArtifact(st.ConceptID, pipeline.StagePlanningReview,
		"analysis.md", "Review Analysis", analysisReport(completed, avg, st.Quality.RequiredScore),
		map[string]any{"average_score": avg, "approvals": approvals})
	if err != nil {
		return nil, err
	}
	refs = append(refs, analysisRef)

	res := &Result{Artifact: analysisRef, Artifacts: refs}
	switch {
	case avg >= st.Quality.RequiredScore:
		res.Success = true
		res.Next = pipeline.StageDev
		res.Message = fmt.Sprintf("plan approved with average score %.1f", avg)
	case avg < rejectScore:
		res.Success = true
		res.Next = pipeline.StageRejected
		res.Message = fmt.Sprintf("plan rejected with average score %.1f", avg)
	default:
		// Recoverable: the stage is unchanged and the next entry redrafts
		// from the analysis saved above.
		res.Success = false
		res.Message = fmt.Sprintf("plan needs revision: average score %.1f below required %.1f",
			avg, st.Quality.RequiredScore)
	}
	return res, nil
}

// redraftIfRevising regenerates the planning documents on a review re-entry
// that follows a revise verdict. The analysis artifact from the previous
// round carries the board's feedback; without one (first entry, or re-entry
// after a pause or provider failure) the existing documents stand.
func (h *PlanningReviewHandler) redraftIfRevising(ctx context.Context, st *pipeline.State) error {
	if st.Iterations[pipeline.StagePlanningReview] <= 1 {
		return nil
	}
	feedback, err := h.deps.Workspace.ReadArtifact(st.ConceptID, pipeline.StagePlanningReview, "analysis.md")
	if err != nil || strings.TrimSpace(feedback) == "" {
		return nil
	}
	idea, err := h.deps.Workspace.ReadArtifact(st.ConceptID, pipeline.StageIdeation, "selected_idea.md")
	if err != nil {
		return err
	}
	h.deps.logger().Info("redrafting plan from review feedback",
		"concept", st.ConceptID, "review_iteration", st.Iterations[pipeline.StagePlanningReview])
	_, err = draftPlanningDocs(ctx, h.deps, st, idea, feedback)
	return err
}

func (h *PlanningReviewHandler) loadPlan(conceptID string) (string, error) {
	var b strings.Builder
	for _, file := range []string{docPRD, docArchitecture, docTasks, docAcceptance} {
		content, err := h.deps.Workspace.ReadArtifact(conceptID, pipeline.StagePlanningDraft, file)
		if err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("missing planning document %s; draft must run first", file)
			}
			return "", err
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", file, content)
	}
	return b.String(), nil
}

func analyze(reviews []review) (avg float64, approvals int) {
	var sum float64
	var scored int
	for _, rv := range reviews {
		if rv.scored {
			sum += rv.score
			scored++
		}
		if rv.approved {
			approvals++
		}
	}
	if scored == 0 {
		return 0, approvals
	}
	return sum / float64(scored), approvals
}

func analysisReport(reviews []review, avg, required float64) string {
	var b strings.Builder
	b.WriteString("| Reviewer | Provider | Score | Verdict |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, rv := range reviews {
		verdict := "REVISE"
		if rv.approved {
			verdict = "APPROVE"
		}
		score := "-"
		if rv.scored {
			score = fmt.Sprintf("%.1f", rv.score)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", rv.role.Name, rv.provider, score, verdict)
	}
	fmt.Fprintf(&b, "\nAverage score: %.1f (required %.1f)\n", avg, required)
	if avg >= required {
		b.WriteString("\nResult: PASS\n")
	} else {
		b.WriteString("\nResult: FAIL\n")
	}
	return b.String()
}

const planningSystem = "You are a senior technical planner. You write precise, " +
	"implementation-ready documents for small Web3 services. Be concrete; avoid filler."

func prdPrompt(idea, feedback string) string {
	p := fmt.Sprintf(`Write a Product Requirements Document for this service:

%s

Cover: problem statement, target users, core features (MVP only), explicit
non-goals, and success metrics.`, idea)
	return withFeedback(p, feedback)
}

func architecturePrompt(idea, feedback string) string {
	p := fmt.Sprintf(`Write an architecture document for this service:

%s

Cover: component diagram (described in text), data model, external
integrations, failure handling, and deployment shape. Favor the simplest
design that can ship.`, idea)
	return withFeedback(p, feedback)
}

func tasksPrompt(idea string) string {
	return fmt.Sprintf(`Write a task breakdown for building the MVP of this service:

%s

Produce a numbered list. Each task gets an id like TASK-1, a one-line goal,
and its dependencies. Order tasks so each is buildable when reached.`, idea)
}

func acceptancePrompt(idea string) string {
	return fmt.Sprintf(`Write acceptance criteria for the MVP of this service:

%s

For each core feature list observable, testable criteria in Given/When/Then
form. Include the failure cases that must be handled gracefully.`, idea)
}

func withFeedback(prompt, feedback string) string {
	if strings.TrimSpace(feedback) == "" {
		return prompt
	}
	return prompt + fmt.Sprintf(`

A previous review round raised these points; address them in this revision:

%s`, feedback)
}

func reviewPrompt(role personas.Role, plan string) string {
	return fmt.Sprintf(`Review the following project plan from the perspective of %s.

%s

Be specific: name the sections you judge and quote the parts you challenge.`,
		role.Focus, plan)
}
