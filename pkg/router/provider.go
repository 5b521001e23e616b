package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider is the adapter interface for an upstream model vendor.
//
// Adapters are a pure translation layer: one request in, one response
// or typed error out. Retry and fallback live in the Router, so
// Generate must make exactly one upstream attempt.
type Provider interface {
	// Name returns the adapter's identifier (e.g. "openai").
	Name() string

	// SupportsModel reports whether this adapter can serve the model.
	SupportsModel(model string) bool

	// SupportedModels lists the models this adapter advertises.
	SupportedModels() []string

	// Generate sends one completion request upstream and normalizes
	// the result. Failures are returned as the typed errors in this
	// package so the router can classify them.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// httpAdapter is the shared HTTP plumbing embedded by the concrete
// adapters: a pooled client plus status-code to typed-error mapping.
type httpAdapter struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	timeout time.Duration
}

func newHTTPAdapter(name, baseURL, apiKey string, timeout time.Duration) *httpAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &httpAdapter{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Transport: transport, Timeout: timeout},
		timeout: timeout,
	}
}

// postJSON performs a single POST, decoding a 2xx body into out and
// mapping everything else to this package's error taxonomy.
func (a *httpAdapter) postJSON(ctx context.Context, path string, in, out any, headers map[string]string) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return &TimeoutError{Provider: a.name, Timeout: a.timeout}
		}
		return &ProviderError{Provider: a.name, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ParseError{Provider: a.name, Cause: fmt.Errorf("failed to read response: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.Unmarshal(raw, out); err != nil {
			return &ParseError{Provider: a.name, RawResponse: string(raw), Cause: err}
		}
		return nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Provider: a.name, Message: string(raw)}

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Provider:   a.name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    string(raw),
		}

	case resp.StatusCode == http.StatusNotFound:
		return &ModelNotFoundError{Provider: a.name, Model: modelFrom(in)}

	default:
		return &ProviderError{Provider: a.name, StatusCode: resp.StatusCode, Message: string(raw)}
	}
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// modelFrom pulls the model field back out of a marshalled request
// body for error reporting.
func modelFrom(in any) string {
	type modeled interface{ modelID() string }
	if m, ok := in.(modeled); ok {
		return m.modelID()
	}
	return ""
}

// parseRetryAfter parses the Retry-After header value. It supports
// both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}
