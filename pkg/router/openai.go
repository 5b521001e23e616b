package router

import (
	"context"
	"strings"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider adapts the OpenAI chat completions API.
type OpenAIProvider struct {
	*httpAdapter
}

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewOpenAIProvider creates an OpenAI adapter.
func NewOpenAIProvider(config OpenAIConfig) *OpenAIProvider {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		httpAdapter: newHTTPAdapter("openai", baseURL, config.APIKey, config.Timeout),
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// SupportsModel implements Provider. OpenAI models are matched by the
// "gpt-" family prefix.
func (p *OpenAIProvider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "gpt-")
}

// SupportedModels implements Provider.
func (p *OpenAIProvider) SupportedModels() []string {
	return []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"}
}

type openaiRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

func (r *openaiRequest) modelID() string { return r.Model }

type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate implements Provider.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if !p.SupportsModel(req.Model) {
		return nil, &ModelNotFoundError{Provider: p.Name(), Model: req.Model}
	}

	wire := &openaiRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var out openaiResponse
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	if err := p.postJSON(ctx, "/chat/completions", wire, &out, headers); err != nil {
		return nil, err
	}

	if len(out.Choices) == 0 {
		return nil, &ParseError{Provider: p.Name(), Cause: errNoChoices}
	}

	return &Response{
		ID:           out.ID,
		Model:        out.Model,
		Provider:     p.Name(),
		Content:      out.Choices[0].Message.Content,
		FinishReason: out.Choices[0].FinishReason,
		Created:      out.Created,
		Usage: Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}, nil
}
