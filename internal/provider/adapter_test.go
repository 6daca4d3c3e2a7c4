package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend scripts per-model error sequences for adapter policy tests.
type fakeBackend struct {
	name      string
	primary   string
	fallbacks []string

	mu    sync.Mutex
	calls []string           // "model" per Complete call
	fail  map[string][]error // errors returned in order; nil entry = success
}

func newFakeBackend(models ...string) *fakeBackend {
	return &fakeBackend{
		name:      "fake",
		primary:   models[0],
		fallbacks: models[1:],
		fail:      map[string][]error{},
	}
}

func (f *fakeBackend) Name() string             { return f.name }
func (f *fakeBackend) PrimaryModel() string     { return f.primary }
func (f *fakeBackend) FallbackModels() []string { return f.fallbacks }
func (f *fakeBackend) Available() bool          { return true }

func (f *fakeBackend) Complete(_ context.Context, model string, _ Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, model)
	queue := f.fail[model]
	if len(queue) > 0 {
		err := queue[0]
		f.fail[model] = queue[1:]
		if err != nil {
			return nil, err
		}
	}
	return &Response{Content: "ok", Model: model, InputTokens: 10, OutputTokens: 20}, nil
}

func (f *fakeBackend) callCount(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.calls {
		if m == model {
			n++
		}
	}
	return n
}

type fakeAlerts struct {
	mu     sync.Mutex
	alerts []string
}

func (f *fakeAlerts) QuotaExhausted(provider, model, stage, conceptID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, provider+"/"+model)
}

type fakeUsage struct {
	mu      sync.Mutex
	records []bool
}

func (f *fakeUsage) RecordCall(_ context.Context, provider, model string, ok bool, in, out int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, ok)
}

func noSleep(a *Adapter) { a.sleep = func(context.Context, time.Duration) error { return nil } }

func rateLimit(model string) error {
	return &RateLimitError{BaseError: BaseError{Provider: "fake", Model: model, Message: "rate limited"}}
}

func quota(model string) error {
	return &QuotaExhaustedError{BaseError: BaseError{Provider: "fake", Model: model, Message: "quota exhausted"}}
}

func transient(model string) error {
	return &TransientError{BaseError: BaseError{Provider: "fake", Model: model, Message: "HTTP 503"}}
}

func TestInvokeRetriesRateLimitWithBackoff(t *testing.T) {
	b := newFakeBackend("m1")
	b.fail["m1"] = []error{rateLimit("m1"), rateLimit("m1"), nil}

	a := NewAdapter(b, WithMaxRetries(3))
	noSleep(a)

	res, err := a.Invoke(context.Background(), Request{Role: "ideation", Prompt: "go"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
	if res.Content != "ok" {
		t.Errorf("content = %q", res.Content)
	}
}

func TestInvokeQuotaFallsBackWithoutRetry(t *testing.T) {
	b := newFakeBackend("m1", "m2")
	b.fail["m1"] = []error{quota("m1")}

	alerts := &fakeAlerts{}
	a := NewAdapter(b, WithMaxRetries(3), WithAlertSink(alerts))
	noSleep(a)

	res, err := a.Invoke(context.Background(), Request{Role: "review", Stage: "PLANNING_REVIEW"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Model != "m2" {
		t.Errorf("model = %q, want fallback m2", res.Model)
	}
	if got := b.callCount("m1"); got != 1 {
		t.Errorf("m1 called %d times, want exactly 1 (no retry on quota)", got)
	}
	if len(alerts.alerts) != 1 {
		t.Errorf("alerts = %d, want 1", len(alerts.alerts))
	}
}

func TestInvokeQuotaOnAllModels(t *testing.T) {
	// Quota on every call: fall back through all configured models exactly
	// once each, emit one alert per model, zero retries.
	b := newFakeBackend("m1", "m2", "m3")
	b.fail["m1"] = []error{quota("m1")}
	b.fail["m2"] = []error{quota("m2")}
	b.fail["m3"] = []error{quota("m3")}

	alerts := &fakeAlerts{}
	a := NewAdapter(b, WithMaxRetries(5), WithAlertSink(alerts))
	noSleep(a)

	_, err := a.Invoke(context.Background(), Request{Role: "review"})
	if err == nil {
		t.Fatal("Invoke should fail when every model is quota-exhausted")
	}
	if !IsQuotaExhausted(err) {
		t.Errorf("final error should unwrap to quota exhaustion, got %v", err)
	}
	for _, m := range []string{"m1", "m2", "m3"} {
		if got := b.callCount(m); got != 1 {
			t.Errorf("%s called %d times, want exactly 1", m, got)
		}
	}
	if len(alerts.alerts) != 3 {
		t.Errorf("alerts = %d, want 3", len(alerts.alerts))
	}
}

func TestInvokeTransientExhaustsRetriesThenFallsBack(t *testing.T) {
	b := newFakeBackend("m1", "m2")
	b.fail["m1"] = []error{transient("m1"), transient("m1"), transient("m1")}

	a := NewAdapter(b, WithMaxRetries(2))
	noSleep(a)

	res, err := a.Invoke(context.Background(), Request{Role: "qa"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	// maxRetries=2 means 3 attempts on m1, then m2 answers.
	if got := b.callCount("m1"); got != 3 {
		t.Errorf("m1 called %d times, want 3", got)
	}
	if res.Model != "m2" {
		t.Errorf("model = %q, want m2", res.Model)
	}
}

func TestInvokeRecordsUsage(t *testing.T) {
	b := newFakeBackend("m1")
	b.fail["m1"] = []error{transient("m1"), nil}

	usage := &fakeUsage{}
	a := NewAdapter(b, WithMaxRetries(2), WithUsageRecorder(usage))
	noSleep(a)

	if _, err := a.Invoke(context.Background(), Request{Role: "dev"}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(usage.records) != 2 {
		t.Fatalf("usage records = %d, want 2 (one per call, failed and successful)", len(usage.records))
	}
	if usage.records[0] || !usage.records[1] {
		t.Errorf("usage records = %v, want [false true]", usage.records)
	}
}

func TestInvokeDryRun(t *testing.T) {
	b := newFakeBackend("m1")
	a := NewAdapter(b, WithDryRun(true))

	res, err := a.Invoke(context.Background(), Request{Role: "ideation"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := b.callCount("m1"); got != 0 {
		t.Errorf("backend called %d times in dry-run, want 0", got)
	}
	if res.Provider != "fake" {
		t.Errorf("provider = %q", res.Provider)
	}
}

func TestInvokeHonorsRetryAfterHint(t *testing.T) {
	b := newFakeBackend("m1")
	b.fail["m1"] = []error{
		&RateLimitError{BaseError: BaseError{Provider: "fake", Model: "m1"}, RetryAfter: 45 * time.Second},
		nil,
	}

	var slept []time.Duration
	a := NewAdapter(b, WithMaxRetries(1), WithBackoff(Backoff{Base: time.Second, Max: time.Minute}))
	a.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	if _, err := a.Invoke(context.Background(), Request{}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(slept) != 1 || slept[0] != 45*time.Second {
		t.Errorf("slept = %v, want [45s]", slept)
	}
}

func TestInvokeContextCancellation(t *testing.T) {
	b := newFakeBackend("m1")
	b.fail["m1"] = []error{rateLimit("m1"), rateLimit("m1")}

	ctx, cancel := context.WithCancel(context.Background())
	a := NewAdapter(b, WithMaxRetries(3))
	a.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := a.Invoke(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Max: 30 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 16 * time.Second},
		{4, 30 * time.Second}, // capped
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRegistryRotation(t *testing.T) {
	a1 := NewAdapter(newFakeBackend("m"))
	a2 := NewAdapter(&fakeBackend{name: "fake2", primary: "m", fail: map[string][]error{}})
	a3 := NewAdapter(&fakeBackend{name: "fake3", primary: "m", fail: map[string][]error{}})
	r := NewRegistry(a1, a2, a3)

	// Under rotation 0, role 0 gets the first provider; under rotation 1 it
	// shifts by one.
	got0, err := r.ForRole(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	got1, err := r.ForRole(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got0.Name() == got1.Name() {
		t.Errorf("rotation did not change assignment: %s", got0.Name())
	}

	// Every role resolves to some provider for any rotation.
	for rot := 0; rot < 5; rot++ {
		for role := 0; role < 4; role++ {
			if _, err := r.ForRole(role, rot); err != nil {
				t.Fatalf("ForRole(%d,%d): %v", role, rot, err)
			}
		}
	}
}
