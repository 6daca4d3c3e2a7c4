package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const openaiEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIBackend calls the OpenAI chat completions REST API directly.
type OpenAIBackend struct {
	apiKey    string
	primary   string
	fallbacks []string
	client    *http.Client
	endpoint  string
}

// NewOpenAIBackend creates the OpenAI backend.
func NewOpenAIBackend(apiKey, primary string, fallbacks []string) *OpenAIBackend {
	if primary == "" {
		primary = "gpt-4o"
	}
	if fallbacks == nil {
		fallbacks = []string{"gpt-4o-mini"}
	}
	return &OpenAIBackend{
		apiKey:    apiKey,
		primary:   primary,
		fallbacks: fallbacks,
		client:    &http.Client{Timeout: 120 * time.Second},
		endpoint:  openaiEndpoint,
	}
}

func (o *OpenAIBackend) Name() string             { return "openai" }
func (o *OpenAIBackend) PrimaryModel() string     { return o.primary }
func (o *OpenAIBackend) FallbackModels() []string { return o.fallbacks }
func (o *OpenAIBackend) Available() bool          { return o.apiKey != "" }

type openaiRequest struct {
	Model     string          `json:"model"`
	Messages  []openaiMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete performs one chat completion call.
func (o *OpenAIBackend) Complete(ctx context.Context, model string, req Request) (*Response, error) {
	if o.apiKey == "" {
		return nil, &AuthError{BaseError: BaseError{Provider: o.Name(), Model: model, Message: "OPENAI_API_KEY not set"}}
	}

	var messages []openaiMessage
	if req.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(openaiRequest{Model: model, Messages: messages, MaxTokens: req.MaxTokens})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, &TransientError{BaseError: BaseError{Provider: o.Name(), Model: model, Message: err.Error()}}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransientError{BaseError: BaseError{Provider: o.Name(), Model: model, Message: err.Error()}}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, o.classifyHTTP(httpResp, data, model)
	}

	var parsed openaiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, &BaseError{Provider: o.Name(), Model: model, Message: "no choices in response"}
	}

	return &Response{
		Content:      strings.TrimSpace(parsed.Choices[0].Message.Content),
		Model:        model,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// classifyHTTP maps an HTTP failure onto the error taxonomy. 429 with an
// insufficient_quota code is quota exhaustion; any other 429 is a rate
// limit; 5xx is transient.
func (o *OpenAIBackend) classifyHTTP(resp *http.Response, data []byte, model string) error {
	var parsed openaiResponse
	_ = json.Unmarshal(data, &parsed)

	msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
	code := ""
	if parsed.Error != nil {
		msg = parsed.Error.Message
		code = parsed.Error.Code
	}
	base := BaseError{Provider: o.Name(), Model: model, Message: msg}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests && code == "insufficient_quota":
		return &QuotaExhaustedError{BaseError: base}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{BaseError: base, RetryAfter: retryAfterHeader(resp)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{BaseError: base}
	case resp.StatusCode >= 500:
		return &TransientError{BaseError: base}
	default:
		return &base
	}
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
