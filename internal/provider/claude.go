package provider

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ClaudeBackend invokes the local claude CLI in print mode. The CLI has
// access to the working tree, which is what the development stage needs; API
// access is deliberately not duplicated here since the CLI multiplexes both.
type ClaudeBackend struct {
	primary   string
	fallbacks []string
	workDir   string

	// run is swapped out in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewClaudeBackend creates the claude CLI backend.
func NewClaudeBackend(primary string, fallbacks []string, workDir string) *ClaudeBackend {
	if primary == "" {
		primary = "opus"
	}
	if fallbacks == nil {
		fallbacks = []string{"sonnet"}
	}
	return &ClaudeBackend{
		primary:   primary,
		fallbacks: fallbacks,
		workDir:   workDir,
		run:       runCommand,
	}
}

func (c *ClaudeBackend) Name() string             { return "claude" }
func (c *ClaudeBackend) PrimaryModel() string     { return c.primary }
func (c *ClaudeBackend) FallbackModels() []string { return c.fallbacks }

// Available reports whether the claude CLI is on PATH.
func (c *ClaudeBackend) Available() bool {
	_, err := exec.LookPath("claude")
	return err == nil
}

// Complete runs one prompt through the CLI and classifies failures from its
// output text, mirroring how the CLI surfaces rate-limit and billing errors.
func (c *ClaudeBackend) Complete(ctx context.Context, model string, req Request) (*Response, error) {
	prompt := req.Prompt
	if req.System != "" {
		prompt = "System: " + req.System + "\n\n" + prompt
	}

	out, err := c.run(ctx, "claude",
		"--model", model,
		"--print",
		"--output-format", "text",
		"-p", prompt,
	)
	if err != nil {
		return nil, c.classify(string(out), model, err)
	}

	return &Response{
		Content: strings.TrimSpace(string(out)),
		Model:   model,
	}, nil
}

func (c *ClaudeBackend) classify(output, model string, err error) error {
	base := BaseError{
		Provider: c.Name(),
		Model:    model,
		Message:  fmt.Sprintf("%v: %s", err, truncate(output, 200)),
	}
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "rate limit"):
		return &RateLimitError{BaseError: base}
	case strings.Contains(lower, "quota") || strings.Contains(lower, "billing"):
		return &QuotaExhaustedError{BaseError: base}
	case strings.Contains(lower, "overloaded") || strings.Contains(lower, "internal server"):
		return &TransientError{BaseError: base}
	default:
		return &base
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
