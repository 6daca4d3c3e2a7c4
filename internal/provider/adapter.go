package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Adapter wraps a Backend with the uniform retry/backoff/fallback policy.
//
// The central rule: rate limits and 5xx-class failures are retried with
// exponential backoff on the same model; quota exhaustion is never retried -
// it emits an alert and falls through to the next model in the chain. Only
// when every model is exhausted does Invoke fail permanently.
type Adapter struct {
	backend    Backend
	maxRetries int
	backoff    Backoff
	usage      UsageRecorder
	alerts     AlertSink
	log        *slog.Logger
	dryRun     bool

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithMaxRetries sets the per-model retry ceiling for transient failures.
func WithMaxRetries(n int) Option { return func(a *Adapter) { a.maxRetries = n } }

// WithBackoff overrides the backoff schedule.
func WithBackoff(b Backoff) Option { return func(a *Adapter) { a.backoff = b } }

// WithUsageRecorder wires the cost/usage ledger.
func WithUsageRecorder(u UsageRecorder) Option { return func(a *Adapter) { a.usage = u } }

// WithAlertSink wires the quota alert side channel.
func WithAlertSink(s AlertSink) Option { return func(a *Adapter) { a.alerts = s } }

// WithDryRun suppresses real backend calls; Invoke returns a stub result.
func WithDryRun(dry bool) Option { return func(a *Adapter) { a.dryRun = dry } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(a *Adapter) { a.log = l } }

// NewAdapter creates an adapter around one backend.
func NewAdapter(b Backend, opts ...Option) *Adapter {
	a := &Adapter{
		backend:    b,
		maxRetries: 3,
		backoff:    DefaultBackoff(),
		log:        slog.Default(),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the underlying backend name.
func (a *Adapter) Name() string { return a.backend.Name() }

// Available reports whether the underlying backend is usable.
func (a *Adapter) Available() bool { return a.backend.Available() }

// Invoke performs one logical LLM call under the full policy. It walks the
// model chain (primary then fallbacks); within a model it retries transient
// failures with backoff up to the configured maximum.
func (a *Adapter) Invoke(ctx context.Context, req Request) (*CallResult, error) {
	if a.dryRun {
		return &CallResult{
			Provider: a.backend.Name(),
			Model:    a.backend.PrimaryModel(),
			Content:  fmt.Sprintf("[dry-run] %s response for role %s", a.backend.Name(), req.Role),
		}, nil
	}

	start := time.Now()
	models := append([]string{a.backend.PrimaryModel()}, a.backend.FallbackModels()...)
	attempts := 0
	var lastErr error

	for _, model := range models {
		resp, n, err := a.invokeModel(ctx, model, req)
		attempts += n
		if err == nil {
			return &CallResult{
				Provider:     a.backend.Name(),
				Model:        resp.Model,
				Content:      resp.Content,
				InputTokens:  resp.InputTokens,
				OutputTokens: resp.OutputTokens,
				Attempts:     attempts,
				Duration:     time.Since(start),
			}, nil
		}
		lastErr = err

		if IsQuotaExhausted(err) {
			a.log.Warn("quota exhausted, falling back",
				"provider", a.backend.Name(), "model", model, "role", req.Role)
			if a.alerts != nil {
				a.alerts.QuotaExhausted(a.backend.Name(), model, req.Stage, req.ConceptID, err)
			}
			continue // next model, no retry
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.log.Warn("model failed, trying next in chain",
			"provider", a.backend.Name(), "model", model, "error", err)
	}

	return nil, fmt.Errorf("%s: all models exhausted after %d attempts: %w",
		a.backend.Name(), attempts, lastErr)
}

// invokeModel runs the retry loop for a single model. Returns the response,
// the number of attempts made, and the final error.
func (a *Adapter) invokeModel(ctx context.Context, model string, req Request) (*Response, int, error) {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		resp, err := a.backend.Complete(ctx, model, req)
		a.recordUsage(ctx, model, err == nil, resp)
		if err == nil {
			return resp, attempt + 1, nil
		}
		lastErr = err

		if IsQuotaExhausted(err) || !IsRetryable(err) {
			return nil, attempt + 1, err
		}
		if attempt == a.maxRetries {
			break
		}

		delay := a.backoff.Delay(attempt)
		if hint := RetryAfterHint(err); hint > delay {
			delay = hint
		}
		a.log.Info("retrying after backoff",
			"provider", a.backend.Name(), "model", model,
			"attempt", attempt+1, "max_retries", a.maxRetries, "delay", delay)
		if err := a.sleep(ctx, delay); err != nil {
			return nil, attempt + 1, err
		}
	}
	return nil, a.maxRetries + 1, lastErr
}

func (a *Adapter) recordUsage(ctx context.Context, model string, ok bool, resp *Response) {
	if a.usage == nil {
		return
	}
	in, out := 0, 0
	if resp != nil {
		in, out = resp.InputTokens, resp.OutputTokens
	}
	a.usage.RecordCall(ctx, a.backend.Name(), model, ok, in, out)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
