// Aegis is an AI governance gateway.
//
// It fronts LLM providers with a dual-checkpoint policy pipeline:
// every prompt is evaluated before it reaches a model, and every
// model response is evaluated before it reaches the caller. Policies
// can allow, redact, escalate to human review, or block. Every
// decision lands in an append-only audit trail.
//
// Usage:
//
//	# Start the gateway with default configuration
//	aegis run
//
//	# Start with a custom configuration file
//	aegis run --config /path/to/config.yaml
//
//	# Show version information
//	aegis version
package main

func main() {
	Execute()
}
