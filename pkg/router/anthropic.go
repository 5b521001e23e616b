package router

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	defaultAnthropicBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion          = "2023-06-01"
	anthropicDefaultMaxTokens = 1024
)

var errNoChoices = errors.New("response contained no choices")

// AnthropicProvider adapts the Anthropic messages API.
type AnthropicProvider struct {
	*httpAdapter
}

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewAnthropicProvider creates an Anthropic adapter.
func NewAnthropicProvider(config AnthropicConfig) *AnthropicProvider {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicProvider{
		httpAdapter: newHTTPAdapter("anthropic", baseURL, config.APIKey, config.Timeout),
	}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// SupportsModel implements Provider. Anthropic models are matched by
// the "claude-" family prefix.
func (p *AnthropicProvider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// SupportedModels implements Provider.
func (p *AnthropicProvider) SupportedModels() []string {
	return []string{"claude-sonnet-4-20250514", "claude-3-5-haiku-20241022", "claude-3-opus-20240229"}
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
}

func (r *anthropicRequest) modelID() string { return r.Model }

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate implements Provider. System messages are lifted into the
// API's dedicated system field; max_tokens is mandatory upstream, so
// a default is applied when the request leaves it unset.
func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if !p.SupportsModel(req.Model) {
		return nil, &ModelNotFoundError{Provider: p.Name(), Model: req.Model}
	}

	var system string
	messages := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		messages = append(messages, m)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	wire := &anthropicRequest{
		Model:       req.Model,
		System:      system,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	}

	var out anthropicResponse
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
	if err := p.postJSON(ctx, "/messages", wire, &out, headers); err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	finishReason := out.StopReason
	if finishReason == "end_turn" {
		finishReason = "stop"
	}

	return &Response{
		ID:           out.ID,
		Model:        out.Model,
		Provider:     p.Name(),
		Content:      content.String(),
		FinishReason: finishReason,
		Created:      time.Now().Unix(),
		Usage: Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		},
	}, nil
}
