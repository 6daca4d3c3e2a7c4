// Package concept contains the pure business logic for concept records and
// the ticket label taxonomy that drives the backlog workflow.
package concept

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the backlog lifecycle of a concept.
type Status string

const (
	StatusBacklog  Status = "backlog"
	StatusPlanned  Status = "planned"
	StatusInDev    Status = "in-development"
	StatusDone     Status = "done"
	StatusRejected Status = "rejected"
)

// Source records how a concept entered the backlog.
type Source string

const (
	SourceTrend  Source = "generated-from-trend"
	SourceManual Source = "manually-submitted"
)

// Concept is a candidate micro-service idea. Status transitions happen only
// through explicit promotion events consumed by the backlog orchestrator;
// done and rejected are terminal.
type Concept struct {
	ID           string
	Title        string
	Summary      string
	Status       Status
	Source       Source
	CreatedAt    time.Time
	TicketNumber int // external ticket reference, 0 when not yet created
}

// Terminal reports whether the concept can no longer change status.
func (c *Concept) Terminal() bool {
	return c.Status == StatusDone || c.Status == StatusRejected
}

// SlugID derives a filesystem-safe concept identifier from a title, prefixed
// with the ticket number when one exists. Used to key scaffold directories
// and state records.
func SlugID(ticketNumber int, title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	lastDash := true
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	s := strings.Trim(b.String(), "-")
	if len(s) > 40 {
		s = strings.Trim(s[:40], "-")
	}
	if s == "" {
		s = "concept"
	}
	if ticketNumber > 0 {
		return fmt.Sprintf("idea-%d-%s", ticketNumber, s)
	}
	return s
}
