package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiBackend calls Google Gemini through the genai SDK.
type GeminiBackend struct {
	apiKey    string
	primary   string
	fallbacks []string

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiBackend creates the Gemini backend. The SDK client is opened
// lazily on first call so construction never needs network access.
func NewGeminiBackend(apiKey, primary string, fallbacks []string) *GeminiBackend {
	if primary == "" {
		primary = "gemini-1.5-pro"
	}
	if fallbacks == nil {
		fallbacks = []string{"gemini-1.5-flash"}
	}
	return &GeminiBackend{apiKey: apiKey, primary: primary, fallbacks: fallbacks}
}

func (g *GeminiBackend) Name() string             { return "gemini" }
func (g *GeminiBackend) PrimaryModel() string     { return g.primary }
func (g *GeminiBackend) FallbackModels() []string { return g.fallbacks }
func (g *GeminiBackend) Available() bool          { return g.apiKey != "" }

func (g *GeminiBackend) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

// Close releases the SDK client.
func (g *GeminiBackend) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		err := g.client.Close()
		g.client = nil
		return err
	}
	return nil
}

// Complete performs one generation call.
func (g *GeminiBackend) Complete(ctx context.Context, model string, req Request) (*Response, error) {
	if g.apiKey == "" {
		return nil, &AuthError{BaseError: BaseError{Provider: g.Name(), Model: model, Message: "GEMINI_API_KEY not set"}}
	}

	client, err := g.getClient(ctx)
	if err != nil {
		return nil, &TransientError{BaseError: BaseError{Provider: g.Name(), Model: model, Message: err.Error()}}
	}

	m := client.GenerativeModel(model)
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, g.classify(err, model)
	}

	content, err := extractGeminiText(resp)
	if err != nil {
		return nil, &BaseError{Provider: g.Name(), Model: model, Message: err.Error()}
	}

	out := &Response{Content: content, Model: model}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// classify maps SDK errors onto the taxonomy from their message text; the
// SDK does not expose typed rate-limit errors.
func (g *GeminiBackend) classify(err error, model string) error {
	base := BaseError{Provider: g.Name(), Model: model, Message: err.Error()}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "quota") || strings.Contains(lower, "billing"):
		return &QuotaExhaustedError{BaseError: base}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "resource_exhausted"):
		return &RateLimitError{BaseError: base}
	case strings.Contains(lower, "500") || strings.Contains(lower, "503") || strings.Contains(lower, "unavailable") || strings.Contains(lower, "internal"):
		return &TransientError{BaseError: base}
	case strings.Contains(lower, "api key") || strings.Contains(lower, "permission"):
		return &AuthError{BaseError: base}
	default:
		return &base
	}
}

func extractGeminiText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	var parts []string
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.TrimSpace(strings.Join(parts, "")), nil
}
