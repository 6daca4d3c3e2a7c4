package concept

// Ticket label taxonomy. These labels are the wire protocol of the backlog
// workflow: humans apply promote:* labels, the orchestrator consumes them
// and replaces each with the matching processed:* label so a promotion is
// handled at most once.
const (
	LabelTypeIdea = "type:idea"
	LabelTypePlan = "type:plan"

	LabelStatusBacklog = "status:backlog"
	LabelStatusPlanned = "status:planned"
	LabelStatusInDev   = "status:in-dev"
	LabelStatusDone    = "status:done"

	LabelPromoteToPlan = "promote:to-plan"
	LabelPromoteToDev  = "promote:to-dev"

	LabelProcessedToPlan = "processed:promoted-to-plan"
	LabelProcessedToDev  = "processed:promoted-to-dev"

	LabelGenerated = "generated-by:orchestrator"
)

// LabelSpec describes a label for ticket-store setup.
type LabelSpec struct {
	Name        string
	Color       string
	Description string
}

// AllLabels returns the full taxonomy the ticket store must carry, in a
// stable order suitable for `backlog setup`.
func AllLabels() []LabelSpec {
	return []LabelSpec{
		{LabelTypeIdea, "0e8a16", "A generated or submitted service idea"},
		{LabelTypePlan, "1d76db", "A detailed plan derived from an idea"},
		{LabelStatusBacklog, "c2e0c6", "Waiting in the backlog"},
		{LabelStatusPlanned, "bfd4f2", "Plan created, awaiting development"},
		{LabelStatusInDev, "f9d0c4", "Development scaffold created"},
		{LabelStatusDone, "5319e7", "Completed"},
		{LabelPromoteToPlan, "fbca04", "Human approval: create a plan for this idea"},
		{LabelPromoteToDev, "d93f0b", "Human approval: start development on this plan"},
		{LabelProcessedToPlan, "ededed", "Promotion to plan already handled"},
		{LabelProcessedToDev, "ededed", "Promotion to dev already handled"},
		{LabelGenerated, "ffffff", "Created by the orchestrator"},
	}
}

// StatusLabel maps a concept status to its ticket label.
func StatusLabel(s Status) string {
	switch s {
	case StatusPlanned:
		return LabelStatusPlanned
	case StatusInDev:
		return LabelStatusInDev
	case StatusDone:
		return LabelStatusDone
	default:
		return LabelStatusBacklog
	}
}

// statusLabels is the closed set of mutually exclusive status labels.
var statusLabels = []string{
	LabelStatusBacklog, LabelStatusPlanned, LabelStatusInDev, LabelStatusDone,
}

// IsStatusLabel reports whether the label belongs to the status group.
func IsStatusLabel(label string) bool {
	for _, l := range statusLabels {
		if l == label {
			return true
		}
	}
	return false
}
