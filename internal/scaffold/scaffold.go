// Package scaffold generates the initial project structure for a concept
// entering development.
package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

// Project is the template input for one scaffold.
type Project struct {
	ConceptID string
	Title     string
	Summary   string
	TicketURL string
	CreatedAt time.Time
}

// Generator renders project scaffolds under a base directory.
type Generator struct {
	base string
	now  func() time.Time
}

// New creates a generator writing under base.
func New(base string) *Generator {
	return &Generator{base: base, now: time.Now}
}

// Dir returns the scaffold directory for a concept id.
func (g *Generator) Dir(conceptID string) string {
	return filepath.Join(g.base, conceptID)
}

// Exists reports whether a scaffold was already created for the concept.
func (g *Generator) Exists(conceptID string) bool {
	_, err := os.Stat(filepath.Join(g.Dir(conceptID), "README.md"))
	return err == nil
}

// Create renders the scaffold for a project. Creating an existing scaffold
// is a no-op returning the same path, so promotion processing can be
// retried after a partial failure.
func (g *Generator) Create(p Project) (string, error) {
	dir := g.Dir(p.ConceptID)
	if g.Exists(p.ConceptID) {
		return dir, nil
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = g.now().UTC()
	}

	for _, sub := range []string{"", "src", "docs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("failed to create scaffold directory: %w", err)
		}
	}

	files := map[string]*template.Template{
		"README.md":      readmeTmpl,
		".gitignore":     gitignoreTmpl,
		"docs/STATUS.md": statusTmpl,
	}
	for name, tmpl := range files {
		var b strings.Builder
		if err := tmpl.Execute(&b, p); err != nil {
			return "", fmt.Errorf("failed to render %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return dir, nil
}

var readmeTmpl = template.Must(template.New("readme").Parse(`# {{.Title}}

{{.Summary}}

Concept: {{.ConceptID}}
{{- if .TicketURL}}
Ticket: {{.TicketURL}}
{{- end}}

## Layout

- ` + "`src/`" + ` — implementation
- ` + "`docs/`" + ` — plan and status notes
`))

var gitignoreTmpl = template.Must(template.New("gitignore").Parse(`node_modules/
dist/
.env
*.log
`))

var statusTmpl = template.Must(template.New("status").Parse(`# Status

- {{.CreatedAt.Format "2006-01-02"}}: scaffold created for {{.ConceptID}}
`))
