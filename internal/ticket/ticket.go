// Package ticket abstracts the external ticket store holding the project
// backlog. Tickets carry the concept metadata and the labels that drive
// promotion; the store is the source of truth for backlog workflow state.
package ticket

import "context"

// Ticket is one backlog item in the external store.
type Ticket struct {
	Number int
	Title  string
	Body   string
	Labels []string
	URL    string
	State  string
}

// HasLabel reports whether the ticket carries the given label.
func (t *Ticket) HasLabel(name string) bool {
	for _, l := range t.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// HasAnyLabel reports whether the ticket carries at least one of the names.
func (t *Ticket) HasAnyLabel(names ...string) bool {
	for _, n := range names {
		if t.HasLabel(n) {
			return true
		}
	}
	return false
}

// LabelSpec describes a label the store must know about before it can be
// attached to tickets.
type LabelSpec struct {
	Name        string
	Color       string
	Description string
}

// Client is the port to the ticket store. Implementations must make label
// mutations observable to a subsequent Search so promotion stays idempotent.
type Client interface {
	Create(ctx context.Context, title, body string, labels []string) (*Ticket, error)
	Get(ctx context.Context, number int) (*Ticket, error)
	// Search returns open tickets carrying every one of the given labels.
	Search(ctx context.Context, labels []string) ([]*Ticket, error)
	AddLabels(ctx context.Context, number int, labels []string) error
	RemoveLabel(ctx context.Context, number int, label string) error
	Comment(ctx context.Context, number int, body string) error
	// EnsureLabels creates any missing label definitions; existing ones are
	// left untouched.
	EnsureLabels(ctx context.Context, specs []LabelSpec) error
}
