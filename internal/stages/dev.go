package stages

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/mossland/agentic-orchestrator/internal/core/pipeline"
	"github.com/mossland/agentic-orchestrator/internal/provider"
)

// DevHandler walks the task breakdown and drives the coding agent through
// it, keeping a development log so an interrupted run resumes at the first
// unfinished task.
type DevHandler struct {
	deps *Deps
}

func NewDevHandler(deps *Deps) *DevHandler {
	return &DevHandler{deps: deps}
}

func (h *DevHandler) Stage() pipeline.Stage { return pipeline.StageDev }

var taskLineRe = regexp.MustCompile(`(?m)^\s*(?:[-*]|\d+\.)\s*\**(TASK-\d+)\**[:.]?\s*(.+)$`)

type task struct {
	ID    string
	Title string
}

func (h *DevHandler) Execute(ctx context.Context, st *pipeline.State) (*Result, error) {
	tasksDoc, err := h.deps.Workspace.ReadArtifact(st.ConceptID, pipeline.StagePlanningDraft, docTasks)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("missing task breakdown; planning must run first")
		}
		return nil, err
	}
	arch, err := h.deps.Workspace.ReadArtifact(st.ConceptID, pipeline.StagePlanningDraft, docArchitecture)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("missing architecture document; planning must run first")
		}
		return nil, err
	}

	tasks := parseTasks(tasksDoc)
	if len(tasks) == 0 {
		return nil, fmt.Errorf("task breakdown contains no TASK-n entries")
	}

	done := h.completedTasks(st.ConceptID)

	// Implementation goes to the claude backend when configured: it runs
	// with working-tree access, which the other backends do not have.
	adapter, err := h.deps.Providers.ByName("claude")
	if err != nil {
		adapter, err = h.deps.Providers.Default()
		if err != nil {
			return nil, err
		}
	}

	var logEntries []string
	implemented := 0
	for _, t := range tasks {
		if done[t.ID] {
			continue
		}
		resp, err := adapter.Invoke(ctx, provider.Request{
			Role:      "dev",
			Stage:     string(pipeline.StageDev),
			ConceptID: st.ConceptID,
			System:    devSystem,
			Prompt:    implementPrompt(t, arch),
		})
		if err != nil {
			// Persist progress so completed tasks are not redone next run.
			if len(logEntries) > 0 {
				h.saveLog(st, done, logEntries)
			}
			return nil, fmt.Errorf("task %s failed: %w", t.ID, err)
		}
		done[t.ID] = true
		implemented++
		logEntries = append(logEntries,
			fmt.Sprintf("## %s: %s\n\n%s", t.ID, t.Title, resp.Content))
		h.deps.logger().Info("task implemented",
			"concept", st.ConceptID, "task", t.ID, "model", resp.Model)
	}

	ref, err := h.saveLog(st, done, logEntries)
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("implemented %d of %d tasks", implemented, len(tasks))
	if implemented == 0 {
		msg = "all tasks already implemented"
	}
	return &Result{
		Success:   true,
		Next:      pipeline.StageQA,
		Artifact:  ref,
		Artifacts: []string{ref},
		Message:   msg,
	}, nil
}

// completedTasks reads the task ids recorded in a prior development log.
func (h *DevHandler) completedTasks(conceptID string) map[string]bool {
	done := map[string]bool{}
	log, err := h.deps.Workspace.ReadArtifact(conceptID, pipeline.StageDev, "dev_log.md")
	if err != nil {
		return done
	}
	for _, m := range regexp.MustCompile(`(?m)^## (TASK-\d+)`).FindAllStringSubmatch(log, -1) {
		done[m[1]] = true
	}
	return done
}

func (h *DevHandler) saveLog(st *pipeline.State, done map[string]bool, entries []string) (string, error) {
	prior, _ := h.deps.Workspace.ReadArtifact(st.ConceptID, pipeline.StageDev, "dev_log.md")
	content := strings.TrimSpace(prior + "\n\n" + strings.Join(entries, "\n\n"))
	return h.deps.Workspace.SaveArtifact(st.ConceptID, pipeline.StageDev,
		"dev_log.md", "Development Log", content,
		map[string]any{"completed_tasks": len(done)})
}

func parseTasks(doc string) []task {
	var tasks []task
	seen := map[string]bool{}
	for _, m := range taskLineRe.FindAllStringSubmatch(doc, -1) {
		id := m[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		tasks = append(tasks, task{ID: id, Title: strings.TrimSpace(m[2])})
	}
	return tasks
}

const devSystem = "You are an implementation agent working inside the project's repository. " +
	"Implement exactly the task given, consistent with the architecture document. " +
	"Report what you changed and anything left undone."

func implementPrompt(t task, architecture string) string {
	return fmt.Sprintf(`Implement this task:

%s: %s

Architecture reference:

%s

Describe the files created or changed and any follow-up the next task needs
to know about.`, t.ID, t.Title, architecture)
}
