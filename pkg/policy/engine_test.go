package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fakeModule evaluates to a fixed result or error.
type fakeModule struct {
	name      string
	outcome   Outcome
	reason    string
	err       error
	configErr error

	mu        sync.Mutex
	options   map[string]any
	seenPrior [][]Outcome
}

func (m *fakeModule) Name() string { return m.name }

func (m *fakeModule) Configure(options map[string]any) error {
	m.mu.Lock()
	m.options = options
	m.mu.Unlock()
	return m.configErr
}

func (m *fakeModule) Evaluate(pctx *Context) (*Result, error) {
	m.mu.Lock()
	prior := make([]Outcome, len(pctx.PriorOutcomes))
	copy(prior, pctx.PriorOutcomes)
	m.seenPrior = append(m.seenPrior, prior)
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	return &Result{Outcome: m.outcome, Reason: m.reason, PolicyName: m.name}, nil
}

// writeChain writes a policy document enabling the named policies in
// order and returns its path.
func writeChain(t *testing.T, names ...string) string {
	t.Helper()
	var b strings.Builder
	if len(names) == 0 {
		b.WriteString("policies: []\n")
	} else {
		b.WriteString("policies:\n")
	}
	for _, name := range names {
		fmt.Fprintf(&b, "  - name: %s\n    enabled: true\n", name)
	}
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestEngine(t *testing.T, modules ...*fakeModule) *Engine {
	t.Helper()
	registry := NewRegistry()
	names := make([]string, len(modules))
	for i, m := range modules {
		if err := registry.Register(m.name, m); err != nil {
			t.Fatal(err)
		}
		names[i] = m.name
	}
	engine, err := NewEngine(registry, writeChain(t, names...), nil)
	if err != nil {
		t.Fatal(err)
	}
	return engine
}

func TestEngine_EvaluateAllAllow(t *testing.T) {
	engine := newTestEngine(t,
		&fakeModule{name: "a", outcome: OutcomeAllow, reason: "fine"},
		&fakeModule{name: "b", outcome: OutcomeAllow, reason: "also fine"},
	)

	result := engine.Evaluate(context.Background(), &Context{
		Prompt: "hello", UserID: "u1", RequestID: "r1", Checkpoint: CheckpointInput,
	})

	if result.FinalOutcome != OutcomeAllow {
		t.Errorf("FinalOutcome = %s, want ALLOW", result.FinalOutcome)
	}
	if len(result.AllResults) != 2 {
		t.Errorf("Expected 2 results, got %d", len(result.AllResults))
	}
	if len(result.EvaluatedPolicies) != 2 || result.EvaluatedPolicies[0] != "a" {
		t.Errorf("EvaluatedPolicies = %v", result.EvaluatedPolicies)
	}
}

func TestEngine_EvaluatePrecedence(t *testing.T) {
	engine := newTestEngine(t,
		&fakeModule{name: "allows", outcome: OutcomeAllow},
		&fakeModule{name: "redacts", outcome: OutcomeRedact, reason: "redacted"},
		&fakeModule{name: "blocks", outcome: OutcomeBlock, reason: "stop"},
	)

	result := engine.Evaluate(context.Background(), &Context{
		Prompt: "x", UserID: "u1", RequestID: "r1", Checkpoint: CheckpointInput,
	})

	if result.FinalOutcome != OutcomeBlock {
		t.Errorf("FinalOutcome = %s, want BLOCK", result.FinalOutcome)
	}
	if result.FinalResult.PolicyName != "blocks" {
		t.Errorf("FinalResult.PolicyName = %s, want blocks", result.FinalResult.PolicyName)
	}
	// Evaluation never short-circuits: every policy still runs.
	if len(result.AllResults) != 3 {
		t.Errorf("Expected all 3 policies evaluated, got %d", len(result.AllResults))
	}
}

func TestEngine_EvaluateTieBreak(t *testing.T) {
	engine := newTestEngine(t,
		&fakeModule{name: "first_block", outcome: OutcomeBlock, reason: "first"},
		&fakeModule{name: "second_block", outcome: OutcomeBlock, reason: "second"},
	)

	result := engine.Evaluate(context.Background(), &Context{
		Prompt: "x", UserID: "u1", RequestID: "r1", Checkpoint: CheckpointInput,
	})

	if result.FinalResult.PolicyName != "first_block" {
		t.Errorf("Tie must break to the first result, got %s", result.FinalResult.PolicyName)
	}
}

func TestEngine_EvaluateFailClosed(t *testing.T) {
	engine := newTestEngine(t,
		&fakeModule{name: "broken", err: errors.New("regex exploded")},
		&fakeModule{name: "fine", outcome: OutcomeAllow},
	)

	result := engine.Evaluate(context.Background(), &Context{
		Prompt: "x", UserID: "u1", RequestID: "r1", Checkpoint: CheckpointInput,
	})

	if result.FinalOutcome != OutcomeBlock {
		t.Errorf("A failing policy must fail closed, got %s", result.FinalOutcome)
	}
	synthetic := result.AllResults[0]
	wantReason := "Policy 'broken' evaluation failed: regex exploded"
	if synthetic.Reason != wantReason {
		t.Errorf("Synthetic reason = %q, want %q", synthetic.Reason, wantReason)
	}
	if synthetic.ConfidenceScore != 1.0 {
		t.Errorf("Synthetic confidence = %v, want 1.0", synthetic.ConfidenceScore)
	}
	// The failure must not stop the chain.
	if len(result.AllResults) != 2 {
		t.Errorf("Expected 2 results after failure, got %d", len(result.AllResults))
	}
}

func TestEngine_EvaluateEmptyChain(t *testing.T) {
	engine := newTestEngine(t)

	result := engine.Evaluate(context.Background(), &Context{
		Prompt: "x", UserID: "u1", RequestID: "r1", Checkpoint: CheckpointInput,
	})

	if result.FinalOutcome != OutcomeAllow {
		t.Errorf("Empty chain must ALLOW, got %s", result.FinalOutcome)
	}
	if result.FinalResult.PolicyName != "system" {
		t.Errorf("FinalResult.PolicyName = %s, want system", result.FinalResult.PolicyName)
	}
	if result.FinalResult.Reason != "No active policies to evaluate" {
		t.Errorf("Unexpected reason: %q", result.FinalResult.Reason)
	}
}

func TestEngine_EvaluatePriorOutcomes(t *testing.T) {
	first := &fakeModule{name: "first", outcome: OutcomeRedact}
	second := &fakeModule{name: "second", outcome: OutcomeAllow}
	engine := newTestEngine(t, first, second)

	engine.Evaluate(context.Background(), &Context{
		Prompt: "x", UserID: "u1", RequestID: "r1", Checkpoint: CheckpointInput,
	})

	if len(first.seenPrior[0]) != 0 {
		t.Errorf("First policy saw prior outcomes: %v", first.seenPrior[0])
	}
	if len(second.seenPrior[0]) != 1 || second.seenPrior[0][0] != OutcomeRedact {
		t.Errorf("Second policy saw %v, want [REDACT]", second.seenPrior[0])
	}
}

func TestEngine_DisabledPolicySkipped(t *testing.T) {
	registry := NewRegistry()
	registry.Register("on", &fakeModule{name: "on", outcome: OutcomeAllow})
	registry.Register("off", &fakeModule{name: "off", outcome: OutcomeBlock})

	doc := "policies:\n" +
		"  - name: on\n    enabled: true\n" +
		"  - name: off\n    enabled: false\n"
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	engine, err := NewEngine(registry, path, nil)
	if err != nil {
		t.Fatal(err)
	}

	result := engine.Evaluate(context.Background(), &Context{
		Prompt: "x", UserID: "u1", RequestID: "r1", Checkpoint: CheckpointInput,
	})

	// A disabled BLOCK policy must be indistinguishable from an
	// absent one.
	if result.FinalOutcome != OutcomeAllow {
		t.Errorf("FinalOutcome = %s, want ALLOW", result.FinalOutcome)
	}
	if len(result.EvaluatedPolicies) != 1 || result.EvaluatedPolicies[0] != "on" {
		t.Errorf("EvaluatedPolicies = %v, want [on]", result.EvaluatedPolicies)
	}
}

func TestEngine_UnknownPolicySkipped(t *testing.T) {
	registry := NewRegistry()
	registry.Register("known", &fakeModule{name: "known", outcome: OutcomeAllow})

	path := writeChain(t, "known", "ghost")
	engine, err := NewEngine(registry, path, nil)
	if err != nil {
		t.Fatalf("Unknown config entries must not fail construction: %v", err)
	}

	active := engine.ActivePolicies()
	if len(active) != 1 || active[0] != "known" {
		t.Errorf("ActivePolicies = %v, want [known]", active)
	}
}

func TestEngine_ConfigureError(t *testing.T) {
	registry := NewRegistry()
	registry.Register("picky", &fakeModule{name: "picky", configErr: errors.New("bad options")})

	_, err := NewEngine(registry, writeChain(t, "picky"), nil)
	var confErr *ConfigureError
	if !errors.As(err, &confErr) {
		t.Fatalf("Expected ConfigureError, got %v", err)
	}
	if confErr.PolicyName != "picky" {
		t.Errorf("PolicyName = %s, want picky", confErr.PolicyName)
	}
}

func TestEngine_Reload(t *testing.T) {
	registry := NewRegistry()
	registry.Register("a", &fakeModule{name: "a", outcome: OutcomeAllow})
	registry.Register("b", &fakeModule{name: "b", outcome: OutcomeAllow})

	path := writeChain(t, "a")
	engine, err := NewEngine(registry, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := engine.ActivePolicies(); len(got) != 1 {
		t.Fatalf("ActivePolicies = %v", got)
	}

	doc := "policies:\n  - name: a\n    enabled: true\n  - name: b\n    enabled: true\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := engine.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	active := engine.ActivePolicies()
	if len(active) != 2 || active[1] != "b" {
		t.Errorf("ActivePolicies after reload = %v, want [a b]", active)
	}
}

func TestEngine_ReloadKeepsOldChainOnError(t *testing.T) {
	registry := NewRegistry()
	registry.Register("a", &fakeModule{name: "a", outcome: OutcomeAllow})

	path := writeChain(t, "a")
	engine, err := NewEngine(registry, path, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("policies: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := engine.Reload(); err == nil {
		t.Fatal("Expected reload error for malformed document")
	}

	// The previous chain must keep serving.
	if got := engine.ActivePolicies(); len(got) != 1 || got[0] != "a" {
		t.Errorf("ActivePolicies = %v, want [a]", got)
	}
}
