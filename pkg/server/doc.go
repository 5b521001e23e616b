// Package server provides the gateway's HTTP surface: a thin adapter
// that maps requests onto the orchestrator and the review service and
// maps their typed errors onto status codes.
package server
