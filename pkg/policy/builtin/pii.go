package builtin

import (
	"fmt"
	"regexp"
	"strings"

	"mercator-hq/aegis/pkg/policy"
)

// PII pattern classes. SSN candidates are kept only when they carry a
// separator, otherwise any nine-digit run would match.
var (
	emailPattern      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	ssnPattern        = regexp.MustCompile(`\b\d{3}[-.\s]\d{2}[-.\s]\d{4}\b`)
	phonePattern      = regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	creditCardPattern = regexp.MustCompile(`\b\d{4}[-.\s]?\d{4}[-.\s]?\d{4}[-.\s]?\d{4}\b`)
)

// PIIPolicy redacts personally identifiable information from the text
// under evaluation. Matches are replaced with opaque tokens and the
// token-to-original mapping travels on the result, so a reviewer with
// access to the audit trail can reverse the redaction.
type PIIPolicy struct {
	name        string
	emails      bool
	phones      bool
	ssns        bool
	creditCards bool
}

// NewPIIPolicy creates a PII redaction policy with every class of
// detection enabled.
func NewPIIPolicy(name string) *PIIPolicy {
	return &PIIPolicy{
		name:        name,
		emails:      true,
		phones:      true,
		ssns:        true,
		creditCards: true,
	}
}

// Name implements policy.Module.
func (p *PIIPolicy) Name() string { return p.name }

// Configure implements policy.Module. Each class can be switched off
// individually: redact_emails, redact_phones, redact_ssn,
// redact_credit_cards (all booleans, default true).
func (p *PIIPolicy) Configure(options map[string]any) error {
	var err error
	if p.emails, err = boolOption(options, "redact_emails", p.emails); err != nil {
		return err
	}
	if p.phones, err = boolOption(options, "redact_phones", p.phones); err != nil {
		return err
	}
	if p.ssns, err = boolOption(options, "redact_ssn", p.ssns); err != nil {
		return err
	}
	if p.creditCards, err = boolOption(options, "redact_credit_cards", p.creditCards); err != nil {
		return err
	}
	return nil
}

func boolOption(options map[string]any, key string, fallback bool) (bool, error) {
	v, ok := options[key]
	if !ok {
		return fallback, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("option %q must be a boolean, got %T", key, v)
	}
	return b, nil
}

// Evaluate implements policy.Module. Token numbering starts at 1 for
// each evaluation, keeping results independent of call history.
func (p *PIIPolicy) Evaluate(pctx *policy.Context) (*policy.Result, error) {
	text := pctx.Prompt
	if pctx.Checkpoint == policy.CheckpointOutput {
		text = pctx.Response
	}

	red := &redactor{text: text, tokens: map[string]string{}}
	if p.ssns {
		red.apply(ssnPattern, "SSN")
	}
	if p.creditCards {
		red.apply(creditCardPattern, "CREDIT_CARD")
	}
	if p.emails {
		red.apply(emailPattern, "EMAIL")
	}
	if p.phones {
		red.apply(phonePattern, "PHONE")
	}

	if len(red.tokens) == 0 {
		return &policy.Result{
			Outcome:         policy.OutcomeAllow,
			Reason:          "No PII detected",
			PolicyName:      p.name,
			ConfidenceScore: 1.0,
		}, nil
	}

	return &policy.Result{
		Outcome:         policy.OutcomeRedact,
		Reason:          fmt.Sprintf("Redacted %d PII item(s): %s", len(red.tokens), strings.Join(red.kinds(), ", ")),
		PolicyName:      p.name,
		ConfidenceScore: 0.95,
		ModifiedContent: red.text,
		RedactionTokens: red.tokens,
	}, nil
}

// redactor accumulates replacements across pattern classes, numbering
// tokens in the order matches are found.
type redactor struct {
	text    string
	tokens  map[string]string
	counter int
	seen    []string
}

func (r *redactor) apply(pattern *regexp.Regexp, kind string) {
	matched := false
	r.text = pattern.ReplaceAllStringFunc(r.text, func(match string) string {
		r.counter++
		token := fmt.Sprintf("[REDACTED:%s:ref_%04d]", kind, r.counter)
		r.tokens[token] = match
		matched = true
		return token
	})
	if matched {
		r.seen = append(r.seen, kind)
	}
}

func (r *redactor) kinds() []string { return r.seen }
