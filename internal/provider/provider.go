package provider

import (
	"context"
	"time"
)

// Request is one prompt sent to a backend. Role names the evaluation or
// generation role making the call; Stage and ConceptID travel along for
// alert context only.
type Request struct {
	Role      string
	System    string
	Prompt    string
	MaxTokens int
	Stage     string
	ConceptID string
}

// Response is the raw outcome of a single model call.
type Response struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Backend is a single concrete LLM provider. Implementations perform one
// call against one model and classify failures into the error taxonomy in
// errors.go; all retry and fallback policy lives in the Adapter.
type Backend interface {
	// Name identifies the provider (claude, openai, gemini).
	Name() string

	// PrimaryModel returns the model tried first.
	PrimaryModel() string

	// FallbackModels returns the ordered fallback chain tried after the
	// primary model fails permanently.
	FallbackModels() []string

	// Available reports whether the backend is usable (credentials or CLI
	// present). Unavailable backends are skipped by the registry.
	Available() bool

	// Complete performs one call against the given model.
	Complete(ctx context.Context, model string, req Request) (*Response, error)
}

// CallResult is the outcome of one adapter invocation: which provider and
// model ultimately answered, the content, and token accounting. Consumed
// immediately by the calling stage handler; only the usage ledger persists
// an aggregate.
type CallResult struct {
	Provider     string
	Model        string
	Content      string
	InputTokens  int
	OutputTokens int
	Attempts     int
	Duration     time.Duration
}

// UsageRecorder receives one record per successful or failed model call for
// the cost/usage ledger.
type UsageRecorder interface {
	RecordCall(ctx context.Context, provider, model string, ok bool, inputTokens, outputTokens int)
}

// AlertSink receives structured quota-exhaustion alerts. Implemented by the
// alert package; a nil sink drops alerts.
type AlertSink interface {
	QuotaExhausted(provider, model, stage, conceptID string, err error)
}
