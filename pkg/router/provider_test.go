package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func openaiOK(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"model":   "gpt-4o",
			"created": 1700000000,
			"choices": []map[string]any{
				{
					"message":       map[string]any{"role": "assistant", "content": "hi there"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{
				"prompt_tokens":     12,
				"completion_tokens": 3,
				"total_tokens":      15,
			},
		})
	}
}

func TestOpenAIProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(openaiOK(t))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	resp, err := p.Generate(context.Background(), testRequest("gpt-4o"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if resp.Content != "hi there" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Provider != "openai" || resp.Model != "gpt-4o" {
		t.Errorf("Provider/Model = %s/%s", resp.Provider, resp.Model)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
}

func TestOpenAIProvider_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		check  func(t *testing.T, err error)
	}{
		{"unauthorized", http.StatusUnauthorized, nil, func(t *testing.T, err error) {
			var e *AuthError
			if !errors.As(err, &e) {
				t.Errorf("Expected AuthError, got %v", err)
			}
		}},
		{"rate limited", http.StatusTooManyRequests, map[string]string{"Retry-After": "30"}, func(t *testing.T, err error) {
			var e *RateLimitError
			if !errors.As(err, &e) {
				t.Fatalf("Expected RateLimitError, got %v", err)
			}
			if e.RetryAfter != 30*time.Second {
				t.Errorf("RetryAfter = %v, want 30s", e.RetryAfter)
			}
		}},
		{"not found", http.StatusNotFound, nil, func(t *testing.T, err error) {
			var e *ModelNotFoundError
			if !errors.As(err, &e) {
				t.Fatalf("Expected ModelNotFoundError, got %v", err)
			}
			if e.Model != "gpt-4o" {
				t.Errorf("Model = %s, want gpt-4o", e.Model)
			}
		}},
		{"server error", http.StatusInternalServerError, nil, func(t *testing.T, err error) {
			var e *ProviderError
			if !errors.As(err, &e) {
				t.Fatalf("Expected ProviderError, got %v", err)
			}
			if e.StatusCode != http.StatusInternalServerError {
				t.Errorf("StatusCode = %d", e.StatusCode)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
			_, err := p.Generate(context.Background(), testRequest("gpt-4o"))
			tt.check(t, err)
		})
	}
}

func TestOpenAIProvider_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Generate(context.Background(), testRequest("gpt-4o"))
	var e *ParseError
	if !errors.As(err, &e) {
		t.Fatalf("Expected ParseError, got %v", err)
	}
	if e.RawResponse != "not json" {
		t.Errorf("RawResponse = %q", e.RawResponse)
	}
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "x", "choices": []any{}})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Generate(context.Background(), testRequest("gpt-4o"))
	var e *ParseError
	if !errors.As(err, &e) {
		t.Errorf("Expected ParseError for empty choices, got %v", err)
	}
}

func TestOpenAIProvider_WrongModelFamily(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k"})
	_, err := p.Generate(context.Background(), testRequest("claude-sonnet"))
	var e *ModelNotFoundError
	if !errors.As(err, &e) {
		t.Errorf("Expected ModelNotFoundError, got %v", err)
	}
}

func TestAnthropicProvider_Generate(t *testing.T) {
	var gotWire anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if key := r.Header.Get("x-api-key"); key != "test-key" {
			t.Errorf("x-api-key = %q", key)
		}
		if v := r.Header.Get("anthropic-version"); v != "2023-06-01" {
			t.Errorf("anthropic-version = %q", v)
		}
		json.NewDecoder(r.Body).Decode(&gotWire)
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "msg-1",
			"model": "claude-sonnet-4-20250514",
			"content": []map[string]any{
				{"type": "text", "text": "hello "},
				{"type": "text", "text": "world"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: srv.URL})
	req := &Request{
		Model: "claude-sonnet-4-20250514",
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "hi"},
		},
	}
	resp, err := p.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// System messages lift into the dedicated field.
	if gotWire.System != "be brief" {
		t.Errorf("System = %q, want 'be brief'", gotWire.System)
	}
	if len(gotWire.Messages) != 1 || gotWire.Messages[0].Role != RoleUser {
		t.Errorf("Messages = %+v", gotWire.Messages)
	}
	// max_tokens is mandatory upstream; the default applies.
	if gotWire.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want 1024", gotWire.MaxTokens)
	}

	if resp.Content != "hello world" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop (normalized from end_turn)", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestOllamaProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]any{{"name": "llama3:latest"}},
			})
		case "/api/chat":
			json.NewEncoder(w).Encode(map[string]any{
				"model":      "llama3:latest",
				"created_at": "2026-01-15T10:00:00Z",
				"message":    map[string]any{"role": "assistant", "content": "local says hi"},
				"done":       true,
			})
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL})
	if err := p.RefreshModels(context.Background()); err != nil {
		t.Fatalf("RefreshModels failed: %v", err)
	}
	if !p.SupportsModel("llama3:latest") {
		t.Error("Expected refreshed model to be supported")
	}
	if p.SupportsModel("other-model") {
		t.Error("Unknown model supported after refresh")
	}

	resp, err := p.Generate(context.Background(), testRequest("llama3:latest"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Content != "local says hi" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Provider != "ollama" {
		t.Errorf("Provider = %s", resp.Provider)
	}
}

func TestOllamaProvider_OptimisticBeforeRefresh(t *testing.T) {
	p := NewOllamaProvider(OllamaConfig{})
	if !p.SupportsModel("anything") {
		t.Error("Adapter should stay optimistic until the model list is known")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := parseRetryAfter("10"); d != 10*time.Second {
		t.Errorf("parseRetryAfter(10) = %v", d)
	}
	if d := parseRetryAfter(""); d != 0 {
		t.Errorf("parseRetryAfter(empty) = %v", d)
	}
}
