package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/aegis/pkg/audit"
)

// scriptedProvider returns canned results in sequence, then repeats
// the last entry.
type scriptedProvider struct {
	name   string
	prefix string

	mu     sync.Mutex
	script []scriptStep
	calls  int
	models []string
}

type scriptStep struct {
	resp *Response
	err  error
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, p.prefix)
}

func (p *scriptedProvider) SupportedModels() []string { return []string{p.prefix + "*"} }

func (p *scriptedProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.models = append(p.models, req.Model)
	idx := p.calls
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	step := p.script[idx]
	p.calls++
	if step.err != nil {
		return nil, step.err
	}
	resp := *step.resp
	return &resp, nil
}

// recordingSink captures audit events in order.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Log(_ context.Context, _, eventType string, _ map[string]any) {
	s.mu.Lock()
	s.events = append(s.events, eventType)
	s.mu.Unlock()
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func ok(model, provider string) *Response {
	return &Response{ID: "resp-1", Model: model, Provider: provider, Content: "hello"}
}

func testRequest(model string) *Request {
	return &Request{
		Model:    model,
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}
}

func fastConfig() Config {
	return Config{
		DefaultModel:  "gpt-4o",
		FallbackModel: "claude-sonnet",
		MaxRetries:    2,
		Timeout:       time.Second,
		RetryBackoff:  time.Millisecond,
	}
}

func newRouter(t *testing.T, cfg Config, providers []Provider, sink audit.Sink) *Router {
	t.Helper()
	r, err := NewRouter(cfg, providers, sink)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	return r
}

func TestNewRouter_NoProviders(t *testing.T) {
	_, err := NewRouter(fastConfig(), nil, nil)
	var npErr *NoProvidersError
	if !errors.As(err, &npErr) {
		t.Fatalf("Expected NoProvidersError for empty provider list, got %v", err)
	}
}

func TestRouter_Validate(t *testing.T) {
	tests := []struct {
		name  string
		req   *Request
		field string
	}{
		{"no messages", &Request{}, "messages"},
		{"bad role", &Request{Messages: []Message{{Role: "robot", Content: "x"}}}, "messages[0].role"},
		{"temperature too high", &Request{
			Messages:    []Message{{Role: RoleUser, Content: "x"}},
			Temperature: 2.5,
		}, "temperature"},
		{"negative max tokens", &Request{
			Messages:  []Message{{Role: RoleUser, Content: "x"}},
			MaxTokens: -1,
		}, "max_tokens"},
	}

	provider := &scriptedProvider{
		name: "openai", prefix: "gpt-",
		script: []scriptStep{{resp: ok("gpt-4o", "openai")}},
	}
	r := newRouter(t, fastConfig(), []Provider{provider}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Route(context.Background(), "r1", "t1", tt.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %s, want %s", verr.Field, tt.field)
			}
		})
	}
}

func TestRouter_Success(t *testing.T) {
	provider := &scriptedProvider{
		name: "openai", prefix: "gpt-",
		script: []scriptStep{{resp: ok("gpt-4o", "openai")}},
	}
	r := newRouter(t, fastConfig(), []Provider{provider}, nil)

	resp, err := r.Route(context.Background(), "r1", "t1", testRequest("gpt-4o"))
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if resp.Metadata["used_fallback"] != "false" {
		t.Errorf("used_fallback = %s, want false", resp.Metadata["used_fallback"])
	}
	if resp.Metadata["router_attempt"] != "1" {
		t.Errorf("router_attempt = %s, want 1", resp.Metadata["router_attempt"])
	}
	// The budget, not the attempts spent: MaxRetries 2 means 3 total.
	if resp.Metadata["router_total_attempts"] != "3" {
		t.Errorf("router_total_attempts = %s, want 3", resp.Metadata["router_total_attempts"])
	}
}

func TestRouter_DefaultModel(t *testing.T) {
	provider := &scriptedProvider{
		name: "openai", prefix: "gpt-",
		script: []scriptStep{{resp: ok("gpt-4o", "openai")}},
	}
	r := newRouter(t, fastConfig(), []Provider{provider}, nil)

	_, err := r.Route(context.Background(), "r1", "t1", testRequest(""))
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if provider.models[0] != "gpt-4o" {
		t.Errorf("Provider saw model %s, want default gpt-4o", provider.models[0])
	}
}

func TestRouter_RetryThenSuccess(t *testing.T) {
	provider := &scriptedProvider{
		name: "openai", prefix: "gpt-",
		script: []scriptStep{
			{err: &RateLimitError{Provider: "openai"}},
			{err: &ProviderError{Provider: "openai", StatusCode: 503}},
			{resp: ok("gpt-4o", "openai")},
		},
	}
	r := newRouter(t, fastConfig(), []Provider{provider}, nil)

	resp, err := r.Route(context.Background(), "r1", "t1", testRequest("gpt-4o"))
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if provider.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", provider.calls)
	}
	if resp.Metadata["router_attempt"] != "3" {
		t.Errorf("router_attempt = %s, want 3", resp.Metadata["router_attempt"])
	}
	if resp.Metadata["router_total_attempts"] != "3" {
		t.Errorf("router_total_attempts = %s, want 3", resp.Metadata["router_total_attempts"])
	}
	if resp.Metadata["used_fallback"] != "false" {
		t.Error("Retry on the same model must not count as fallback")
	}
}

func TestRouter_TerminalErrorNoRetry(t *testing.T) {
	provider := &scriptedProvider{
		name: "openai", prefix: "gpt-",
		script: []scriptStep{{err: &AuthError{Provider: "openai", Message: "bad key"}}},
	}
	r := newRouter(t, fastConfig(), []Provider{provider}, nil)

	_, err := r.Route(context.Background(), "r1", "t1", testRequest("gpt-4o"))
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthError, got %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("Terminal error must not be retried, got %d attempts", provider.calls)
	}
}

func TestRouter_FallbackSuccess(t *testing.T) {
	primary := &scriptedProvider{
		name: "openai", prefix: "gpt-",
		script: []scriptStep{{err: &RateLimitError{Provider: "openai"}}},
	}
	fallback := &scriptedProvider{
		name: "anthropic", prefix: "claude-",
		script: []scriptStep{{resp: ok("claude-sonnet", "anthropic")}},
	}
	sink := &recordingSink{}
	r := newRouter(t, fastConfig(), []Provider{primary, fallback}, sink)

	resp, err := r.Route(context.Background(), "r1", "t1", testRequest("gpt-4o"))
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if resp.Metadata["used_fallback"] != "true" {
		t.Errorf("used_fallback = %s, want true", resp.Metadata["used_fallback"])
	}
	if primary.calls != 3 {
		t.Errorf("Primary should exhaust its budget first, got %d attempts", primary.calls)
	}

	events := sink.types()
	var sawFallback, sawSuccess bool
	for _, e := range events {
		if e == "model_fallback_triggered" {
			sawFallback = true
		}
		if e == "routing_success" {
			if !sawFallback {
				t.Error("routing_success emitted before model_fallback_triggered")
			}
			sawSuccess = true
		}
	}
	if !sawFallback || !sawSuccess {
		t.Errorf("Missing audit events, got %v", events)
	}
}

func TestRouter_FallbackAlsoFails(t *testing.T) {
	primary := &scriptedProvider{
		name: "openai", prefix: "gpt-",
		script: []scriptStep{{err: &RateLimitError{Provider: "openai"}}},
	}
	fallback := &scriptedProvider{
		name: "anthropic", prefix: "claude-",
		script: []scriptStep{{err: &ProviderError{Provider: "anthropic", StatusCode: 500, Message: "down"}}},
	}
	sink := &recordingSink{}
	r := newRouter(t, fastConfig(), []Provider{primary, fallback}, sink)

	_, err := r.Route(context.Background(), "r1", "t1", testRequest("gpt-4o"))
	if err == nil {
		t.Fatal("Expected combined failure")
	}

	var provErr *ProviderError
	if !errors.As(err, &provErr) || provErr.Provider != "router" {
		t.Fatalf("Expected router ProviderError, got %v", err)
	}
	if !strings.Contains(provErr.Message, "Primary error:") ||
		!strings.Contains(provErr.Message, "Fallback error:") {
		t.Errorf("Combined message missing parts: %q", provErr.Message)
	}

	events := sink.types()
	if events[len(events)-1] != "routing_failed" {
		t.Errorf("Last event = %s, want routing_failed", events[len(events)-1])
	}
}

func TestRouter_NoFallbackOnTerminalError(t *testing.T) {
	primary := &scriptedProvider{
		name: "openai", prefix: "gpt-",
		script: []scriptStep{{err: &ModelNotFoundError{Provider: "openai", Model: "gpt-4o"}}},
	}
	fallback := &scriptedProvider{
		name: "anthropic", prefix: "claude-",
		script: []scriptStep{{resp: ok("claude-sonnet", "anthropic")}},
	}
	r := newRouter(t, fastConfig(), []Provider{primary, fallback}, nil)

	_, err := r.Route(context.Background(), "r1", "t1", testRequest("gpt-4o"))
	var nfErr *ModelNotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("Expected ModelNotFoundError, got %v", err)
	}
	if fallback.calls != 0 {
		t.Error("Terminal errors must not trigger fallback")
	}
}

func TestRouter_NoProviderForModel(t *testing.T) {
	provider := &scriptedProvider{
		name: "openai", prefix: "gpt-",
		script: []scriptStep{{resp: ok("gpt-4o", "openai")}},
	}
	cfg := fastConfig()
	cfg.FallbackModel = ""
	r := newRouter(t, cfg, []Provider{provider}, nil)

	_, err := r.Route(context.Background(), "r1", "t1", testRequest("mistral-7b"))
	var npErr *NoProvidersError
	if !errors.As(err, &npErr) {
		t.Fatalf("Expected NoProvidersError, got %v", err)
	}
	if npErr.Model != "mistral-7b" {
		t.Errorf("Model = %s, want mistral-7b", npErr.Model)
	}
}

func TestRouter_FirstClaimingProviderWins(t *testing.T) {
	first := &scriptedProvider{
		name: "first", prefix: "gpt-",
		script: []scriptStep{{resp: ok("gpt-4o", "first")}},
	}
	second := &scriptedProvider{
		name: "second", prefix: "gpt-",
		script: []scriptStep{{resp: ok("gpt-4o", "second")}},
	}
	r := newRouter(t, fastConfig(), []Provider{first, second}, nil)

	resp, err := r.Route(context.Background(), "r1", "t1", testRequest("gpt-4o"))
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if resp.Provider != "first" || second.calls != 0 {
		t.Errorf("Expected first provider to serve, got %s (second calls: %d)",
			resp.Provider, second.calls)
	}
}

func TestRouter_ContextCancelledDuringBackoff(t *testing.T) {
	provider := &scriptedProvider{
		name: "openai", prefix: "gpt-",
		script: []scriptStep{{err: &RateLimitError{Provider: "openai"}}},
	}
	cfg := fastConfig()
	cfg.FallbackModel = ""
	cfg.RetryBackoff = time.Minute
	r := newRouter(t, cfg, []Provider{provider}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.Route(ctx, "r1", "t1", testRequest("gpt-4o"))
	var toErr *TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("Expected TimeoutError on cancelled backoff, got %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("Expected 1 attempt before cancellation, got %d", provider.calls)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&RateLimitError{Provider: "p"}, true},
		{&TimeoutError{Provider: "p"}, true},
		{&ProviderError{Provider: "p", StatusCode: 500}, true},
		{&AuthError{Provider: "p"}, false},
		{&ModelNotFoundError{Provider: "p", Model: "m"}, false},
		{&ValidationError{Field: "f"}, false},
		{errors.New("plain"), true},
	}

	for _, tt := range tests {
		if got := retryable(tt.err); got != tt.want {
			t.Errorf("retryable(%T) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

var _ audit.Sink = (*recordingSink)(nil)
