// Package backlog implements the ticket-driven workflow: generating idea
// tickets and consuming human promotion labels exactly once.
package backlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mossland/agentic-orchestrator/internal/core/concept"
	"github.com/mossland/agentic-orchestrator/internal/core/pipeline"
	"github.com/mossland/agentic-orchestrator/internal/lock"
	"github.com/mossland/agentic-orchestrator/internal/provider"
	"github.com/mossland/agentic-orchestrator/internal/scaffold"
	"github.com/mossland/agentic-orchestrator/internal/stages"
	"github.com/mossland/agentic-orchestrator/internal/state"
	"github.com/mossland/agentic-orchestrator/internal/ticket"
)

// Orchestrator drives the backlog workflow against the ticket store.
type Orchestrator struct {
	tickets   ticket.Client
	providers *provider.Registry
	workspace *stages.Workspace
	scaffolds *scaffold.Generator
	store     state.Store
	guard     *lock.Guard
	log       *slog.Logger
	now       func() time.Time
	newRunID  func() string
	dryRun    bool
}

// Options configures an Orchestrator.
type Options struct {
	Tickets   ticket.Client
	Providers *provider.Registry
	Workspace *stages.Workspace
	Scaffolds *scaffold.Generator
	Store     state.Store
	Guard     *lock.Guard
	Log       *slog.Logger
	DryRun    bool
}

// New creates a backlog orchestrator.
func New(opts Options) *Orchestrator {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		tickets:   opts.Tickets,
		providers: opts.Providers,
		workspace: opts.Workspace,
		scaffolds: opts.Scaffolds,
		store:     opts.Store,
		guard:     opts.Guard,
		log:       log,
		now:       time.Now,
		newRunID:  uuid.NewString,
		dryRun:    opts.DryRun,
	}
}

// Proposal is one generated idea, with its ticket once created.
type Proposal struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Ticket  int    `json:"ticket,omitempty"`
}

// Generate produces up to count new concept ideas and creates a backlog
// ticket for each. In dry-run mode the proposals are returned but no ticket
// is created.
func (o *Orchestrator) Generate(ctx context.Context, count int) ([]Proposal, error) {
	if count <= 0 {
		return nil, nil
	}

	proposals, err := o.proposeIdeas(ctx, count)
	if err != nil {
		return nil, err
	}

	if o.dryRun {
		for _, p := range proposals {
			o.log.Info("dry-run: would create idea ticket", "title", p.Title)
		}
		return proposals, nil
	}

	for i := range proposals {
		t, err := o.tickets.Create(ctx, proposals[i].Title, ideaBody(proposals[i]),
			[]string{concept.LabelTypeIdea, concept.LabelStatusBacklog, concept.LabelGenerated})
		if err != nil {
			return proposals, fmt.Errorf("failed to create idea ticket: %w", err)
		}
		proposals[i].Ticket = t.Number
		o.log.Info("created idea ticket", "ticket", t.Number, "title", t.Title)
	}
	return proposals, nil
}

func ideaBody(p Proposal) string {
	return fmt.Sprintf("%s\n\n---\nsource: %s\n", p.Summary, concept.SourceTrend)
}

// Report summarizes one promotion-processing pass.
type Report struct {
	PlannedTickets []int `json:"planned_tickets"`
	DevTickets     []int `json:"dev_tickets"`
	SkippedTickets []int `json:"skipped_tickets"`
	ResumedTickets []int `json:"resumed_tickets"`
	WouldProcess   []int `json:"would_process,omitempty"`
	ProcessedTotal int   `json:"processed_total"`
}

// ProcessPromotions consumes promotion labels from the ticket store. A
// ticket is eligible when it carries a promote label without the matching
// processed label; that conjunction makes reprocessing impossible. Each
// ticket's processing ends with its label swap, so a crash beforehand leaves
// the promote label in place and the work is resumed on the next pass.
// maxPromotions <= 0 means unlimited.
func (o *Orchestrator) ProcessPromotions(ctx context.Context, maxPromotions int) (*Report, error) {
	report := &Report{}
	budget := maxPromotions

	toPlan, err := o.eligible(ctx, concept.LabelPromoteToPlan, concept.LabelProcessedToPlan)
	if err != nil {
		return nil, err
	}
	for _, t := range toPlan {
		if budget == 0 && maxPromotions > 0 {
			report.SkippedTickets = append(report.SkippedTickets, t.Number)
			continue
		}
		if o.dryRun {
			o.log.Info("dry-run: would promote to plan", "ticket", t.Number)
			report.WouldProcess = append(report.WouldProcess, t.Number)
			budget--
			continue
		}
		if err := o.promoteToPlan(ctx, t, report); err != nil {
			return report, fmt.Errorf("promotion of #%d to plan failed: %w", t.Number, err)
		}
		report.PlannedTickets = append(report.PlannedTickets, t.Number)
		report.ProcessedTotal++
		budget--
	}

	toDev, err := o.eligible(ctx, concept.LabelPromoteToDev, concept.LabelProcessedToDev)
	if err != nil {
		return nil, err
	}
	for _, t := range toDev {
		if budget == 0 && maxPromotions > 0 {
			report.SkippedTickets = append(report.SkippedTickets, t.Number)
			continue
		}
		if o.dryRun {
			o.log.Info("dry-run: would promote to dev", "ticket", t.Number)
			report.WouldProcess = append(report.WouldProcess, t.Number)
			budget--
			continue
		}
		if err := o.promoteToDev(ctx, t, report); err != nil {
			return report, fmt.Errorf("promotion of #%d to dev failed: %w", t.Number, err)
		}
		report.DevTickets = append(report.DevTickets, t.Number)
		report.ProcessedTotal++
		budget--
	}

	return report, nil
}

// eligible returns open tickets carrying the promote label but not the
// processed label. Done tickets are never eligible; a promote label left on
// one is stale human labeling, not pending work.
func (o *Orchestrator) eligible(ctx context.Context, promoteLabel, processedLabel string) ([]*ticket.Ticket, error) {
	found, err := o.tickets.Search(ctx, []string{promoteLabel})
	if err != nil {
		return nil, fmt.Errorf("failed to search for %s tickets: %w", promoteLabel, err)
	}
	var out []*ticket.Ticket
	for _, t := range found {
		if t.HasAnyLabel(processedLabel, concept.LabelStatusDone) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// conceptOf reconstructs the domain view of a ticket from its labels and
// body. The ticket store stays the source of truth; the view lets the
// concept rules (status mapping, terminality) apply uniformly.
func conceptOf(t *ticket.Ticket) concept.Concept {
	status := concept.StatusBacklog
	switch {
	case t.HasLabel(concept.LabelStatusDone):
		status = concept.StatusDone
	case t.HasLabel(concept.LabelStatusInDev):
		status = concept.StatusInDev
	case t.HasLabel(concept.LabelStatusPlanned):
		status = concept.StatusPlanned
	}
	source := concept.SourceManual
	if t.HasLabel(concept.LabelGenerated) {
		source = concept.SourceTrend
	}
	return concept.Concept{
		ID:           concept.SlugID(t.Number, t.Title),
		Title:        t.Title,
		Summary:      firstParagraph(t.Body),
		Status:       status,
		Source:       source,
		TicketNumber: t.Number,
	}
}

// removeStatusLabels strips the status labels the ticket carried before the
// promotion, keeping the newly applied one. Labels could have changed
// between search and promotion, so this works from the ticket's own label
// set rather than an assumed prior status.
func (o *Orchestrator) removeStatusLabels(ctx context.Context, t *ticket.Ticket, keep string) error {
	for _, l := range t.Labels {
		if concept.IsStatusLabel(l) && l != keep {
			if err := o.tickets.RemoveLabel(ctx, t.Number, l); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) promoteToPlan(ctx context.Context, t *ticket.Ticket, report *Report) error {
	c := conceptOf(t)
	if c.Terminal() {
		return fmt.Errorf("concept %s is %s and cannot be promoted", c.ID, c.Status)
	}
	conceptID := c.ID

	// A plan artifact without the processed label means a prior attempt died
	// between artifact creation and the label swap. Reuse the artifact
	// instead of generating again.
	var plan string
	if o.workspace.HasArtifact(conceptID, pipeline.StagePlanningDraft, "PLAN.md") {
		o.log.Warn("resuming incomplete promotion", "ticket", t.Number, "concept", conceptID)
		report.ResumedTickets = append(report.ResumedTickets, t.Number)
		existing, err := o.workspace.ReadArtifact(conceptID, pipeline.StagePlanningDraft, "PLAN.md")
		if err != nil {
			return err
		}
		plan = existing
	} else {
		generated, err := o.generatePlan(ctx, t)
		if err != nil {
			return err
		}
		if _, err := o.workspace.SaveArtifact(conceptID, pipeline.StagePlanningDraft,
			"PLAN.md", "Plan: "+t.Title, generated,
			map[string]any{"source_ticket": t.Number}); err != nil {
			return err
		}
		plan = generated
	}

	planTicket, err := o.findPlanTicket(ctx, conceptID)
	if err != nil {
		return err
	}
	if planTicket == nil {
		planTicket, err = o.tickets.Create(ctx, "Plan: "+t.Title,
			planBody(conceptID, t, plan),
			[]string{concept.LabelTypePlan, concept.LabelStatusPlanned, concept.LabelGenerated})
		if err != nil {
			return fmt.Errorf("failed to create plan ticket: %w", err)
		}
		o.log.Info("created plan ticket", "ticket", planTicket.Number, "source", t.Number)
	}

	// The label swap is last: it is what marks the promotion handled.
	newStatus := concept.StatusLabel(concept.StatusPlanned)
	if err := o.tickets.AddLabels(ctx, t.Number,
		[]string{concept.LabelProcessedToPlan, newStatus}); err != nil {
		return err
	}
	if err := o.tickets.RemoveLabel(ctx, t.Number, concept.LabelPromoteToPlan); err != nil {
		return err
	}
	if err := o.removeStatusLabels(ctx, t, newStatus); err != nil {
		return err
	}
	return o.tickets.Comment(ctx, t.Number,
		fmt.Sprintf("Promoted to plan: #%d (concept `%s`).", planTicket.Number, conceptID))
}

func (o *Orchestrator) promoteToDev(ctx context.Context, t *ticket.Ticket, report *Report) error {
	c := conceptOf(t)
	if c.Terminal() {
		return fmt.Errorf("concept %s is %s and cannot be promoted", c.ID, c.Status)
	}

	if o.scaffolds.Exists(c.ID) {
		o.log.Warn("resuming incomplete promotion", "ticket", t.Number, "concept", c.ID)
		report.ResumedTickets = append(report.ResumedTickets, t.Number)
	}
	dir, err := o.scaffolds.Create(scaffold.Project{
		ConceptID: c.ID,
		Title:     c.Title,
		Summary:   c.Summary,
		TicketURL: t.URL,
	})
	if err != nil {
		return fmt.Errorf("failed to create scaffold: %w", err)
	}

	newStatus := concept.StatusLabel(concept.StatusInDev)
	if err := o.tickets.AddLabels(ctx, t.Number,
		[]string{concept.LabelProcessedToDev, newStatus}); err != nil {
		return err
	}
	if err := o.tickets.RemoveLabel(ctx, t.Number, concept.LabelPromoteToDev); err != nil {
		return err
	}
	if err := o.removeStatusLabels(ctx, t, newStatus); err != nil {
		return err
	}
	return o.tickets.Comment(ctx, t.Number,
		fmt.Sprintf("Development scaffold created at `%s`.", dir))
}

// findPlanTicket locates an already-created plan ticket for the concept, the
// other half of crash recovery for promote:to-plan.
func (o *Orchestrator) findPlanTicket(ctx context.Context, conceptID string) (*ticket.Ticket, error) {
	plans, err := o.tickets.Search(ctx, []string{concept.LabelTypePlan})
	if err != nil {
		return nil, err
	}
	marker := conceptMarker(conceptID)
	for _, t := range plans {
		if strings.Contains(t.Body, marker) {
			return t, nil
		}
	}
	return nil, nil
}

func conceptMarker(conceptID string) string {
	return fmt.Sprintf("concept-id: %s", conceptID)
}

func planBody(conceptID string, source *ticket.Ticket, plan string) string {
	return fmt.Sprintf("%s\n\n---\n%s\nsource-ticket: #%d\n",
		plan, conceptMarker(conceptID), source.Number)
}

func firstParagraph(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "\n\n"); i > 0 {
		return s[:i]
	}
	return s
}

// RunOptions configures one scheduled backlog run.
type RunOptions struct {
	Ideas         int
	NoIdeas       bool
	MaxPromotions int
}

// RunResult is the combined outcome of one scheduled run.
type RunResult struct {
	RunID     string     `json:"run_id"`
	Proposals []Proposal `json:"proposals,omitempty"`
	Report    *Report    `json:"report"`
}

// Run executes one scheduled backlog pass under the concurrency guard:
// generate ideas, then process promotions. A held lock means another run is
// active and this one is skipped with lock.ErrBusy.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if err := o.guard.Acquire(); err != nil {
		return nil, err
	}
	defer o.guard.Release()

	result := &RunResult{RunID: o.newRunID()}

	if !opts.NoIdeas {
		proposals, err := o.Generate(ctx, opts.Ideas)
		result.Proposals = proposals
		if err != nil {
			return result, err
		}
	}

	report, err := o.ProcessPromotions(ctx, opts.MaxPromotions)
	result.Report = report
	if err != nil {
		return result, err
	}

	if o.store != nil && !o.dryRun {
		meta, lerr := o.store.LoadRunMeta(ctx)
		if lerr != nil {
			meta = &state.RunMeta{}
		}
		meta.LastRunID = result.RunID
		meta.LastRunAt = o.now().UTC()
		meta.NextRunAt = meta.LastRunAt.Add(6 * time.Hour)
		if serr := o.store.SaveRunMeta(ctx, meta); serr != nil {
			o.log.Warn("failed to record run metadata", "error", serr)
		}
	}
	return result, nil
}

// StatusCounts summarizes the open backlog by workflow position.
type StatusCounts struct {
	Backlog          int `json:"backlog"`
	Planned          int `json:"planned"`
	InDev            int `json:"in_dev"`
	PendingPlanPromo int `json:"pending_promote_to_plan"`
	PendingDevPromo  int `json:"pending_promote_to_dev"`
}

// Status reports open ticket counts per status label and pending promotions.
func (o *Orchestrator) Status(ctx context.Context) (*StatusCounts, error) {
	counts := &StatusCounts{}
	for _, q := range []struct {
		label string
		dst   *int
	}{
		{concept.LabelStatusBacklog, &counts.Backlog},
		{concept.LabelStatusPlanned, &counts.Planned},
		{concept.LabelStatusInDev, &counts.InDev},
	} {
		found, err := o.tickets.Search(ctx, []string{q.label})
		if err != nil {
			return nil, err
		}
		*q.dst = len(found)
	}

	pendingPlan, err := o.eligible(ctx, concept.LabelPromoteToPlan, concept.LabelProcessedToPlan)
	if err != nil {
		return nil, err
	}
	counts.PendingPlanPromo = len(pendingPlan)

	pendingDev, err := o.eligible(ctx, concept.LabelPromoteToDev, concept.LabelProcessedToDev)
	if err != nil {
		return nil, err
	}
	counts.PendingDevPromo = len(pendingDev)
	return counts, nil
}

// Setup ensures the full label taxonomy exists in the ticket store.
func (o *Orchestrator) Setup(ctx context.Context) error {
	var specs []ticket.LabelSpec
	for _, l := range concept.AllLabels() {
		specs = append(specs, ticket.LabelSpec{
			Name: l.Name, Color: l.Color, Description: l.Description,
		})
	}
	if o.dryRun {
		o.log.Info("dry-run: would ensure labels", "count", len(specs))
		return nil
	}
	if err := o.tickets.EnsureLabels(ctx, specs); err != nil {
		return fmt.Errorf("failed to set up labels: %w", err)
	}
	return nil
}
