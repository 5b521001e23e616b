package builtin

import (
	"strings"
	"testing"

	"mercator-hq/aegis/pkg/policy"
)

func TestPIIPolicy_NoPII(t *testing.T) {
	p := NewPIIPolicy("pii")

	result, err := p.Evaluate(&policy.Context{
		Prompt:     "Summarize the quarterly report for me",
		Checkpoint: policy.CheckpointInput,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.Outcome != policy.OutcomeAllow {
		t.Errorf("Outcome = %s, want ALLOW", result.Outcome)
	}
	if result.Reason != "No PII detected" {
		t.Errorf("Reason = %q", result.Reason)
	}
	if result.ModifiedContent != "" {
		t.Errorf("ModifiedContent should be empty, got %q", result.ModifiedContent)
	}
}

func TestPIIPolicy_RedactsEmail(t *testing.T) {
	p := NewPIIPolicy("pii")

	result, err := p.Evaluate(&policy.Context{
		Prompt:     "Contact alice@example.com about the account",
		Checkpoint: policy.CheckpointInput,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.Outcome != policy.OutcomeRedact {
		t.Fatalf("Outcome = %s, want REDACT", result.Outcome)
	}
	if strings.Contains(result.ModifiedContent, "alice@example.com") {
		t.Errorf("Email survived redaction: %q", result.ModifiedContent)
	}
	if !strings.Contains(result.ModifiedContent, "[REDACTED:EMAIL:ref_0001]") {
		t.Errorf("Expected email token, got %q", result.ModifiedContent)
	}
	if result.ConfidenceScore != 0.95 {
		t.Errorf("ConfidenceScore = %v, want 0.95", result.ConfidenceScore)
	}
}

func TestPIIPolicy_RedactionReversible(t *testing.T) {
	p := NewPIIPolicy("pii")
	original := "SSN 123-45-6789 and card 4111-1111-1111-1111 on file"

	result, err := p.Evaluate(&policy.Context{
		Prompt:     original,
		Checkpoint: policy.CheckpointInput,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Outcome != policy.OutcomeRedact {
		t.Fatalf("Outcome = %s, want REDACT", result.Outcome)
	}

	// Substituting every token back must reproduce the original.
	restored := result.ModifiedContent
	for token, value := range result.RedactionTokens {
		restored = strings.ReplaceAll(restored, token, value)
	}
	if restored != original {
		t.Errorf("Redaction not reversible:\n got %q\nwant %q", restored, original)
	}
}

func TestPIIPolicy_TokenNumberingResets(t *testing.T) {
	p := NewPIIPolicy("pii")
	pctx := &policy.Context{
		Prompt:     "mail bob@example.com",
		Checkpoint: policy.CheckpointInput,
	}

	first, _ := p.Evaluate(pctx)
	second, _ := p.Evaluate(pctx)

	// Numbering restarts per evaluation; identical inputs yield
	// identical outputs.
	if first.ModifiedContent != second.ModifiedContent {
		t.Errorf("Evaluations differ: %q vs %q", first.ModifiedContent, second.ModifiedContent)
	}
}

func TestPIIPolicy_ClassToggles(t *testing.T) {
	p := NewPIIPolicy("pii")
	err := p.Configure(map[string]any{
		"redact_emails": false,
		"redact_phones": false,
	})
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	result, err := p.Evaluate(&policy.Context{
		Prompt:     "alice@example.com or 555-867-5309, SSN 123-45-6789",
		Checkpoint: policy.CheckpointInput,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.Outcome != policy.OutcomeRedact {
		t.Fatalf("Outcome = %s, want REDACT", result.Outcome)
	}
	if !strings.Contains(result.ModifiedContent, "alice@example.com") {
		t.Error("Disabled email class was still redacted")
	}
	if strings.Contains(result.ModifiedContent, "123-45-6789") {
		t.Error("SSN survived redaction")
	}
}

func TestPIIPolicy_ConfigureRejectsNonBool(t *testing.T) {
	p := NewPIIPolicy("pii")
	if err := p.Configure(map[string]any{"redact_emails": "yes"}); err == nil {
		t.Error("Expected error for non-boolean option")
	}
}

func TestPIIPolicy_SSNRequiresSeparator(t *testing.T) {
	p := NewPIIPolicy("pii")
	p.Configure(map[string]any{
		"redact_phones":       false,
		"redact_credit_cards": false,
		"redact_emails":       false,
	})

	result, err := p.Evaluate(&policy.Context{
		Prompt:     "order number 123456789 is fine",
		Checkpoint: policy.CheckpointInput,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Outcome != policy.OutcomeAllow {
		t.Errorf("Bare nine-digit run should not match SSN, got %s: %q",
			result.Outcome, result.ModifiedContent)
	}
}

func TestPIIPolicy_OutputCheckpointUsesResponse(t *testing.T) {
	p := NewPIIPolicy("pii")

	result, err := p.Evaluate(&policy.Context{
		Prompt:     "clean prompt",
		Response:   "the customer's email is carol@example.com",
		Checkpoint: policy.CheckpointOutput,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Outcome != policy.OutcomeRedact {
		t.Errorf("Outcome = %s, want REDACT on response text", result.Outcome)
	}
	if strings.Contains(result.ModifiedContent, "carol@example.com") {
		t.Errorf("Response email survived: %q", result.ModifiedContent)
	}
}
