package stages

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mossland/agentic-orchestrator/internal/core/pipeline"
)

// Workspace manages stage artifacts on disk. Artifacts live under
// projects/<concept-id>/<STAGE>/ as markdown files with YAML frontmatter.
type Workspace struct {
	root string
	now  func() time.Time
}

// NewWorkspace creates a workspace rooted at dir.
func NewWorkspace(dir string) *Workspace {
	return &Workspace{root: dir, now: time.Now}
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

// StageDir returns the artifact directory for one concept stage.
func (w *Workspace) StageDir(conceptID string, stage pipeline.Stage) string {
	return filepath.Join(w.root, "projects", conceptID, string(stage))
}

// ProjectDir returns the directory holding everything for one concept.
func (w *Workspace) ProjectDir(conceptID string) string {
	return filepath.Join(w.root, "projects", conceptID)
}

// ArtifactMeta is the frontmatter attached to every saved artifact.
type ArtifactMeta struct {
	Stage       string         `yaml:"stage"`
	ConceptID   string         `yaml:"concept_id"`
	GeneratedAt time.Time      `yaml:"generated_at"`
	Title       string         `yaml:"title,omitempty"`
	Extra       map[string]any `yaml:"extra,omitempty"`
}

// SaveArtifact writes a markdown artifact with frontmatter and returns its
// path relative to the workspace root, the reference recorded in history.
func (w *Workspace) SaveArtifact(conceptID string, stage pipeline.Stage, filename, title, content string, extra map[string]any) (string, error) {
	dir := w.StageDir(conceptID, stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create stage directory: %w", err)
	}

	meta := ArtifactMeta{
		Stage:       string(stage),
		ConceptID:   conceptID,
		GeneratedAt: w.now().UTC(),
		Title:       title,
		Extra:       extra,
	}
	front, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal artifact metadata: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(front)
	b.WriteString("---\n\n")
	if title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	b.WriteString(strings.TrimSpace(content))
	b.WriteString("\n")

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path, nil
	}
	return rel, nil
}

// ReadArtifact reads an artifact's body with frontmatter stripped. A missing
// artifact returns os.ErrNotExist for the caller to decide on.
func (w *Workspace) ReadArtifact(conceptID string, stage pipeline.Stage, filename string) (string, error) {
	path := filepath.Join(w.StageDir(conceptID, stage), filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return stripFrontmatter(string(data)), nil
}

// HasArtifact reports whether the artifact exists.
func (w *Workspace) HasArtifact(conceptID string, stage pipeline.Stage, filename string) bool {
	_, err := os.Stat(filepath.Join(w.StageDir(conceptID, stage), filename))
	return err == nil
}

func stripFrontmatter(s string) string {
	if !strings.HasPrefix(s, "---\n") {
		return s
	}
	rest := s[len("---\n"):]
	idx := strings.Index(rest, "\n---\n")
	if idx < 0 {
		return s
	}
	return strings.TrimLeft(rest[idx+len("\n---\n"):], "\n")
}
