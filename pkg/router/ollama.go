package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaProvider adapts a local Ollama daemon. The installed model
// list is refreshed from the daemon's tag endpoint; if the daemon is
// unreachable the adapter stays optimistic and lets the chat call
// report the real failure.
type OllamaProvider struct {
	*httpAdapter

	mu     sync.RWMutex
	models map[string]bool
}

// OllamaConfig configures the Ollama adapter.
type OllamaConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewOllamaProvider creates an Ollama adapter.
func NewOllamaProvider(config OllamaConfig) *OllamaProvider {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaProvider{
		httpAdapter: newHTTPAdapter("ollama", baseURL, "", config.Timeout),
	}
}

// Name implements Provider.
func (p *OllamaProvider) Name() string { return "ollama" }

// SupportsModel implements Provider. Before the first successful tag
// refresh the adapter claims any model not served by a cloud vendor.
func (p *OllamaProvider) SupportsModel(model string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.models == nil {
		return true
	}
	return p.models[model]
}

// SupportedModels implements Provider.
func (p *OllamaProvider) SupportedModels() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.models))
	for name := range p.models {
		names = append(names, name)
	}
	return names
}

// RefreshModels fetches the daemon's installed model list. Failures
// leave the previous list in place.
func (p *OllamaProvider) RefreshModels(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return &ParseError{Provider: p.Name(), Cause: err}
	}

	models := make(map[string]bool, len(tags.Models))
	for _, m := range tags.Models {
		models[m.Name] = true
	}

	p.mu.Lock()
	p.models = models
	p.mu.Unlock()
	return nil
}

type ollamaRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature,omitempty"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

func (r *ollamaRequest) modelID() string { return r.Model }

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool       `json:"done"`
	PromptEvalCount int        `json:"prompt_eval_count"`
	EvalCount       int        `json:"eval_count"`
	CreatedAt       ollamaTime `json:"created_at"`
}

// ollamaTime tolerates Ollama's RFC3339Nano timestamps without failing the
// whole decode on format drift.
type ollamaTime struct{ time.Time }

func (t *ollamaTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t.Time = parsed
	return nil
}

// Generate implements Provider.
func (p *OllamaProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	wire := &ollamaRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
	}
	wire.Options.Temperature = req.Temperature
	wire.Options.NumPredict = req.MaxTokens

	var out ollamaResponse
	if err := p.postJSON(ctx, "/api/chat", wire, &out, nil); err != nil {
		return nil, err
	}

	created := out.CreatedAt.Unix()
	if out.CreatedAt.IsZero() {
		created = time.Now().Unix()
	}

	return &Response{
		ID:           "ollama-" + out.Model,
		Model:        out.Model,
		Provider:     p.Name(),
		Content:      out.Message.Content,
		FinishReason: "stop",
		Created:      created,
		Usage: Usage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		},
	}, nil
}
