// Package builtin ships the policy modules bundled with the gateway:
// a configurable static policy, PII redaction, and an MNPI check.
//
// The heuristics here are plug-ins like any other module; the engine
// knows nothing about them beyond the policy.Module contract.
package builtin
