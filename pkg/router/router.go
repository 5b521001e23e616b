package router

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"mercator-hq/aegis/pkg/audit"
	"mercator-hq/aegis/pkg/telemetry/metrics"
)

// Config configures the router's model selection and retry budget.
type Config struct {
	// DefaultModel serves requests that do not name a model.
	DefaultModel string

	// FallbackModel is tried after the primary model's retry budget
	// is exhausted. Empty disables fallback.
	FallbackModel string

	// MaxRetries is the number of retries after the first attempt,
	// so a model gets MaxRetries+1 attempts total. Default: 2.
	MaxRetries int

	// Timeout bounds each individual provider attempt. Default: 30s.
	Timeout time.Duration

	// RetryBackoff is the base delay between attempts, doubled each
	// retry. Default: 500ms.
	RetryBackoff time.Duration
}

// ApplyDefaults fills unset fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
}

// Router dispatches generation requests to the first provider that
// claims the model, retrying transient failures and falling back to a
// secondary model when the primary is exhausted.
type Router struct {
	config    Config
	providers []Provider
	sink      audit.Sink
	logger    *slog.Logger
}

// NewRouter creates a router over the given providers. Provider order
// is significant: the first adapter claiming a model wins. A router
// with no providers cannot serve anything, so construction fails.
func NewRouter(config Config, providers []Provider, sink audit.Sink) (*Router, error) {
	if len(providers) == 0 {
		return nil, &NoProvidersError{}
	}
	config.ApplyDefaults()
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Router{
		config:    config,
		providers: providers,
		sink:      sink,
		logger:    slog.Default().With("component", "router"),
	}, nil
}

// Providers returns the registered providers in routing order.
func (r *Router) Providers() []Provider {
	return r.providers
}

// Route sends the request to a provider serving its model. An empty
// model field routes to the configured default model.
//
// Transient errors (rate limit, timeout, 5xx) consume retry budget;
// authentication and unknown-model errors fail the model immediately.
// When the primary model fails, the fallback model goes through the
// same attempt loop once before the request fails for good.
func (r *Router) Route(ctx context.Context, requestID, traceID string, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = r.config.DefaultModel
	}

	resp, primaryErr := r.tryModel(ctx, requestID, model, req)
	if primaryErr == nil {
		resp.Metadata["used_fallback"] = "false"
		r.logSuccess(ctx, requestID, traceID, resp)
		return resp, nil
	}

	fallback := r.config.FallbackModel
	if fallback == "" || fallback == model || !retryable(primaryErr) {
		r.logFailure(ctx, requestID, traceID, model, primaryErr)
		return nil, primaryErr
	}

	metrics.RouterFallbacks.Inc()
	r.logger.Warn("primary model failed, trying fallback",
		"request_id", requestID,
		"primary_model", model,
		"fallback_model", fallback,
		"error", primaryErr,
	)
	r.sink.Log(ctx, requestID, "model_fallback_triggered", map[string]any{
		"trace_id":       traceID,
		"primary_model":  model,
		"fallback_model": fallback,
		"primary_error":  primaryErr.Error(),
	})

	resp, fallbackErr := r.tryModel(ctx, requestID, fallback, req)
	if fallbackErr != nil {
		r.logFailure(ctx, requestID, traceID, fallback, fallbackErr)
		return nil, &ProviderError{
			Provider: "router",
			Message:  fmt.Sprintf("Primary error: %v, Fallback error: %v", primaryErr, fallbackErr),
			Cause:    fallbackErr,
		}
	}

	resp.Metadata["used_fallback"] = "true"
	r.logSuccess(ctx, requestID, traceID, resp)
	return resp, nil
}

// tryModel runs the attempt loop for one model.
func (r *Router) tryModel(ctx context.Context, requestID, model string, req *Request) (*Response, error) {
	provider := r.providerFor(model)
	if provider == nil {
		return nil, &NoProvidersError{Model: model}
	}

	attempt := *req
	attempt.Model = model

	attempts := r.config.MaxRetries + 1
	var lastErr error

	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := r.config.RetryBackoff << (i - 1)
			select {
			case <-ctx.Done():
				return nil, &TimeoutError{Provider: provider.Name(), Timeout: r.config.Timeout}
			case <-time.After(backoff):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		resp, err := provider.Generate(attemptCtx, &attempt)
		cancel()

		if err == nil {
			metrics.RouterAttempts.WithLabelValues(provider.Name(), "success").Inc()
			if resp.Metadata == nil {
				resp.Metadata = map[string]string{}
			}
			resp.Metadata["router_attempt"] = strconv.Itoa(i + 1)
			resp.Metadata["router_total_attempts"] = strconv.Itoa(attempts)
			return resp, nil
		}

		metrics.RouterAttempts.WithLabelValues(provider.Name(), "error").Inc()
		lastErr = err

		if !retryable(err) {
			r.logger.Warn("provider returned terminal error",
				"request_id", requestID,
				"provider", provider.Name(),
				"model", model,
				"error", err,
			)
			return nil, err
		}

		r.logger.Warn("provider attempt failed",
			"request_id", requestID,
			"provider", provider.Name(),
			"model", model,
			"attempt", i+1,
			"max_attempts", attempts,
			"error", err,
		)
	}

	return nil, lastErr
}

// providerFor returns the first provider claiming the model.
func (r *Router) providerFor(model string) Provider {
	for _, p := range r.providers {
		if p.SupportsModel(model) {
			return p
		}
	}
	return nil
}

func (r *Router) logSuccess(ctx context.Context, requestID, traceID string, resp *Response) {
	r.sink.Log(ctx, requestID, "routing_success", map[string]any{
		"trace_id":      traceID,
		"provider":      resp.Provider,
		"model":         resp.Model,
		"attempts":      resp.Metadata["router_total_attempts"],
		"used_fallback": resp.Metadata["used_fallback"],
		"total_tokens":  resp.Usage.TotalTokens,
	})
}

func (r *Router) logFailure(ctx context.Context, requestID, traceID, model string, err error) {
	r.logger.Error("routing failed",
		"request_id", requestID,
		"model", model,
		"error", err,
	)
	r.sink.Log(ctx, requestID, "routing_failed", map[string]any{
		"trace_id": traceID,
		"model":    model,
		"error":    err.Error(),
	})
}
