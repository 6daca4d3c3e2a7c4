// Package gitutil shells out to git for the small set of repository
// operations the orchestrator performs.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Repo runs git commands in a working directory.
type Repo struct {
	dir string
	run func(ctx context.Context, args ...string) (string, error)
}

// New creates a helper for the repository at dir.
func New(dir string) *Repo {
	r := &Repo{dir: dir}
	r.run = r.exec
	return r
}

func (r *Repo) exec(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s",
			strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

// HasChanges reports whether the working tree has uncommitted changes.
func (r *Repo) HasChanges(ctx context.Context) (bool, error) {
	out, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// CommitAll stages everything and commits. A clean tree is a no-op.
func (r *Repo) CommitAll(ctx context.Context, message string) error {
	dirty, err := r.HasChanges(ctx)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	if _, err := r.run(ctx, "add", "-A"); err != nil {
		return err
	}
	if _, err := r.run(ctx, "commit", "-m", message); err != nil {
		return err
	}
	return nil
}

// Push pushes the current branch to its upstream.
func (r *Repo) Push(ctx context.Context) error {
	if _, err := r.run(ctx, "push"); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	return nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
