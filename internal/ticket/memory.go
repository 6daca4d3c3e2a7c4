package ticket

import (
	"context"
	"fmt"
	"sync"
)

// MemoryClient is an in-process ticket store. It backs local runs without a
// configured remote store and the test suites of packages built on Client.
type MemoryClient struct {
	mu      sync.Mutex
	next    int
	tickets map[int]*Ticket
	defined map[string]LabelSpec

	// Comments records comment bodies by ticket number.
	Comments map[int][]string
}

// NewMemoryClient creates an empty in-memory store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		next:     1,
		tickets:  map[int]*Ticket{},
		defined:  map[string]LabelSpec{},
		Comments: map[int][]string{},
	}
}

func (m *MemoryClient) Create(_ context.Context, title, body string, labels []string) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &Ticket{
		Number: m.next,
		Title:  title,
		Body:   body,
		Labels: append([]string(nil), labels...),
		State:  "open",
		URL:    fmt.Sprintf("memory://tickets/%d", m.next),
	}
	m.tickets[m.next] = t
	m.next++
	return copyTicket(t), nil
}

func (m *MemoryClient) Get(_ context.Context, number int) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[number]
	if !ok {
		return nil, fmt.Errorf("ticket #%d not found", number)
	}
	return copyTicket(t), nil
}

func (m *MemoryClient) Search(_ context.Context, labels []string) ([]*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Ticket
	for n := 1; n < m.next; n++ {
		t, ok := m.tickets[n]
		if !ok || t.State != "open" {
			continue
		}
		match := true
		for _, l := range labels {
			if !t.HasLabel(l) {
				match = false
				break
			}
		}
		if match {
			out = append(out, copyTicket(t))
		}
	}
	return out, nil
}

func (m *MemoryClient) AddLabels(_ context.Context, number int, labels []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[number]
	if !ok {
		return fmt.Errorf("ticket #%d not found", number)
	}
	for _, l := range labels {
		if !t.HasLabel(l) {
			t.Labels = append(t.Labels, l)
		}
	}
	return nil
}

func (m *MemoryClient) RemoveLabel(_ context.Context, number int, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[number]
	if !ok {
		return fmt.Errorf("ticket #%d not found", number)
	}
	out := t.Labels[:0]
	for _, l := range t.Labels {
		if l != label {
			out = append(out, l)
		}
	}
	t.Labels = out
	return nil
}

func (m *MemoryClient) Comment(_ context.Context, number int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[number]; !ok {
		return fmt.Errorf("ticket #%d not found", number)
	}
	m.Comments[number] = append(m.Comments[number], body)
	return nil
}

func (m *MemoryClient) EnsureLabels(_ context.Context, specs []LabelSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, spec := range specs {
		if _, ok := m.defined[spec.Name]; !ok {
			m.defined[spec.Name] = spec
		}
	}
	return nil
}

// DefinedLabels returns the names of labels registered via EnsureLabels.
func (m *MemoryClient) DefinedLabels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.defined {
		names = append(names, name)
	}
	return names
}

func copyTicket(t *Ticket) *Ticket {
	cp := *t
	cp.Labels = append([]string(nil), t.Labels...)
	return &cp
}
