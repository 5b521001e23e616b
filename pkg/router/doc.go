// Package router selects an upstream model provider for each request
// and shepherds the call through retries and fallback.
//
// Providers implement a small adapter interface; the router owns the
// retry budget and the fallback-model decision, so adapters stay a
// thin translation layer over each vendor API. OpenAI, Anthropic, and
// a local Ollama daemon are supported out of the box.
//
// Transient failures (rate limits, timeouts, 5xx) are retried up to
// the configured budget; authentication and unknown-model errors fail
// immediately. When the primary model's budget is exhausted, the
// router tries the configured fallback model once through the same
// machinery before giving up.
package router
