package backlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mossland/agentic-orchestrator/internal/provider"
	"github.com/mossland/agentic-orchestrator/internal/ticket"
)

// proposeIdeas asks the default provider for structured idea proposals. In
// dry-run mode placeholder proposals are produced without any provider call
// so the decision logic downstream still runs.
func (o *Orchestrator) proposeIdeas(ctx context.Context, count int) ([]Proposal, error) {
	if o.dryRun {
		proposals := make([]Proposal, count)
		for i := range proposals {
			proposals[i] = Proposal{
				Title:   fmt.Sprintf("Dry-run idea %d", i+1),
				Summary: "Placeholder proposal produced in dry-run mode.",
			}
		}
		return proposals, nil
	}

	adapter, err := o.providers.Default()
	if err != nil {
		return nil, err
	}
	resp, err := adapter.Invoke(ctx, provider.Request{
		Role:   "ideation",
		Stage:  "BACKLOG",
		System: ideaSystem,
		Prompt: ideaPrompt(count),
	})
	if err != nil {
		return nil, fmt.Errorf("idea generation failed: %w", err)
	}

	proposals, err := parseProposals(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("provider returned unparseable ideas: %w", err)
	}
	if len(proposals) > count {
		proposals = proposals[:count]
	}
	return proposals, nil
}

// parseProposals decodes the JSON array of proposals, tolerating a markdown
// code fence around it.
func parseProposals(content string) ([]Proposal, error) {
	s := strings.TrimSpace(content)
	if start := strings.Index(s, "["); start >= 0 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = s[start : end+1]
		}
	}
	var proposals []Proposal
	if err := json.Unmarshal([]byte(s), &proposals); err != nil {
		return nil, err
	}
	var out []Proposal
	for _, p := range proposals {
		if strings.TrimSpace(p.Title) == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable proposals in response")
	}
	return out, nil
}

// generatePlan produces the combined plan document for a promoted idea.
func (o *Orchestrator) generatePlan(ctx context.Context, t *ticket.Ticket) (string, error) {
	adapter, err := o.providers.Default()
	if err != nil {
		return "", err
	}
	resp, err := adapter.Invoke(ctx, provider.Request{
		Role:   "planning",
		Stage:  "BACKLOG",
		System: planSystem,
		Prompt: planPrompt(t.Title, t.Body),
	})
	if err != nil {
		return "", fmt.Errorf("plan generation failed: %w", err)
	}
	return resp.Content, nil
}

const ideaSystem = "You are a Web3 product strategist for the Mossland ecosystem. " +
	"You propose small, buildable services with a clear token or community angle."

func ideaPrompt(count int) string {
	return fmt.Sprintf(`Propose %d ideas for micro Web3 services in the Mossland ecosystem.

Respond with a JSON array only, no prose, in this shape:

[{"title": "Short memorable name", "summary": "One paragraph: the problem, the service, and why it fits Mossland."}]

Every idea must be small enough for a single developer to ship an MVP in
one or two weeks.`, count)
}

const planSystem = "You are a senior technical planner. You write precise, " +
	"implementation-ready documents for small Web3 services. Be concrete; avoid filler."

func planPrompt(title, body string) string {
	return fmt.Sprintf(`Write a complete plan for this promoted idea.

Title: %s

%s

Produce three sections in one markdown document:
1. PRD — problem, users, MVP features, non-goals
2. Architecture — components, data model, integrations, failure handling
3. Tasks — numbered TASK-n breakdown with dependencies`, title, body)
}
