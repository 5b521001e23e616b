package builtin

import (
	"fmt"

	"mercator-hq/aegis/pkg/policy"
)

// StaticPolicy returns a fixed outcome for every evaluation. It is
// the simplest possible module: useful as a template, as a kill
// switch ("block everything"), and throughout the test suites.
type StaticPolicy struct {
	name      string
	outcome   policy.Outcome
	reason    string
	maxPrompt int
}

// NewStaticPolicy creates a policy that always answers with outcome.
func NewStaticPolicy(name string, outcome policy.Outcome, reason string) *StaticPolicy {
	return &StaticPolicy{
		name:    name,
		outcome: outcome,
		reason:  reason,
	}
}

// Name implements policy.Module.
func (p *StaticPolicy) Name() string { return p.name }

// Configure implements policy.Module. Recognized options:
//
//	outcome: "ALLOW" | "REDACT" | "ESCALATE" | "BLOCK"
//	reason: explanation attached to every result
//	max_prompt_length: block prompts longer than this many bytes
func (p *StaticPolicy) Configure(options map[string]any) error {
	if v, ok := options["outcome"].(string); ok {
		switch policy.Outcome(v) {
		case policy.OutcomeAllow, policy.OutcomeRedact, policy.OutcomeEscalate, policy.OutcomeBlock:
			p.outcome = policy.Outcome(v)
		default:
			return fmt.Errorf("unknown outcome %q", v)
		}
	}
	if v, ok := options["reason"].(string); ok {
		p.reason = v
	}
	if v, ok := options["max_prompt_length"].(int); ok {
		p.maxPrompt = v
	}
	return nil
}

// Evaluate implements policy.Module.
func (p *StaticPolicy) Evaluate(pctx *policy.Context) (*policy.Result, error) {
	if p.maxPrompt > 0 && len(pctx.Prompt) > p.maxPrompt {
		return &policy.Result{
			Outcome:         policy.OutcomeBlock,
			Reason:          "Prompt exceeds maximum length",
			PolicyName:      p.name,
			ConfidenceScore: 1.0,
		}, nil
	}

	reason := p.reason
	if reason == "" {
		reason = "No issues detected"
	}
	return &policy.Result{
		Outcome:         p.outcome,
		Reason:          reason,
		PolicyName:      p.name,
		ConfidenceScore: 1.0,
	}, nil
}
