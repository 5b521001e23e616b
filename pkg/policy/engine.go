package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/aegis/pkg/audit"
	"mercator-hq/aegis/pkg/telemetry/metrics"
)

// activePolicy is one enabled entry of the evaluation chain.
type activePolicy struct {
	name   string
	module Module
}

// Engine runs the ordered enabled policy set against a context and
// resolves the outcomes under the precedence lattice.
//
// The active chain is rebuilt atomically on (re)configuration: readers
// take a read lock, never across I/O, so evaluation and hot reload do
// not contend beyond the swap itself.
type Engine struct {
	registry   *Registry
	sink       audit.Sink
	logger     *slog.Logger
	configPath string

	mu      sync.RWMutex
	active  []activePolicy
	missing []string
}

// NewEngine creates an engine over the registry and loads the chain
// from the configuration document at configPath. A nil sink disables
// audit emission. Config entries naming unregistered policies are
// skipped with a warning; they do not fail construction.
func NewEngine(registry *Registry, configPath string, sink audit.Sink) (*Engine, error) {
	if sink == nil {
		sink = audit.NopSink{}
	}
	e := &Engine{
		registry: registry,
		sink:     sink,
		logger:   slog.Default().With("component", "policy.engine"),
	}
	if configPath != "" {
		if err := e.LoadConfiguration(configPath); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// LoadConfiguration (re)builds the active chain from the document at
// path. Each enabled entry is looked up in the registry and configured
// with its option bag; the new chain replaces the old one atomically.
func (e *Engine) LoadConfiguration(path string) error {
	configs, err := LoadModuleConfigs(path)
	if err != nil {
		return err
	}

	var (
		active  []activePolicy
		missing []string
	)
	for _, cfg := range configs {
		module, ok := e.registry.Get(cfg.Name)
		if !ok {
			missing = append(missing, cfg.Name)
			continue
		}
		if !cfg.Enabled {
			continue
		}
		if err := module.Configure(cfg.Options); err != nil {
			return &ConfigureError{PolicyName: cfg.Name, Cause: err}
		}
		active = append(active, activePolicy{name: cfg.Name, module: module})
	}

	if len(missing) > 0 {
		e.logger.Warn("configured policies not in registry",
			"missing_policies", missing,
			"config_path", path,
		)
	}

	e.mu.Lock()
	e.active = active
	e.missing = missing
	e.configPath = path
	e.mu.Unlock()

	e.logger.Info("policy chain loaded",
		"active_policies", len(active),
		"config_path", path,
	)
	return nil
}

// Reload re-reads the last loaded configuration document.
func (e *Engine) Reload() error {
	e.mu.RLock()
	path := e.configPath
	e.mu.RUnlock()

	if path == "" {
		return fmt.Errorf("no configuration loaded")
	}
	return e.LoadConfiguration(path)
}

// ActivePolicies returns the names of the enabled chain, in
// evaluation order.
func (e *Engine) ActivePolicies() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, len(e.active))
	for i, p := range e.active {
		names[i] = p.name
	}
	return names
}

// Evaluate runs the active chain against pctx and resolves the final
// outcome. A module failure becomes a synthetic BLOCK result (fail
// closed) and the chain continues, so one crashing policy can neither
// allow traffic nor hide the remaining verdicts.
func (e *Engine) Evaluate(ctx context.Context, pctx *Context) *EvaluationResult {
	start := time.Now()

	e.mu.RLock()
	chain := e.active
	e.mu.RUnlock()

	e.sink.Log(ctx, pctx.RequestID, "policy_evaluation_start", map[string]any{
		"checkpoint": string(pctx.Checkpoint),
		"trace_id":   pctx.TraceID(),
	})

	var (
		allResults []*Result
		evaluated  []string
	)
	for _, p := range chain {
		result, err := p.module.Evaluate(pctx)
		if err != nil {
			evalErr := &EvaluationError{PolicyName: p.name, Cause: err}
			e.logger.Error("policy evaluation failed",
				"policy_name", p.name,
				"request_id", pctx.RequestID,
				"checkpoint", string(pctx.Checkpoint),
				"error", err,
			)
			result = &Result{
				Outcome:         OutcomeBlock,
				Reason:          fmt.Sprintf("Policy '%s' evaluation failed: %v", p.name, err),
				PolicyName:      p.name,
				ConfidenceScore: 1.0,
			}
			e.sink.Log(ctx, pctx.RequestID, "policy_evaluation_failed", map[string]any{
				"policy_name": p.name,
				"checkpoint":  string(pctx.Checkpoint),
				"error":       evalErr.Error(),
				"trace_id":    pctx.TraceID(),
			})
		}

		allResults = append(allResults, result)
		evaluated = append(evaluated, p.name)

		// The next policy observes this outcome.
		pctx.PriorOutcomes = append(pctx.PriorOutcomes, result.Outcome)

		metrics.PolicyOutcomes.WithLabelValues(p.name, string(result.Outcome)).Inc()
		e.sink.Log(ctx, pctx.RequestID, "policy_evaluated", map[string]any{
			"policy_name": p.name,
			"outcome":     string(result.Outcome),
			"checkpoint":  string(pctx.Checkpoint),
			"trace_id":    pctx.TraceID(),
		})
	}

	var (
		finalOutcome Outcome
		finalResult  *Result
	)
	if len(allResults) == 0 {
		finalOutcome = OutcomeAllow
		finalResult = &Result{
			Outcome:         OutcomeAllow,
			Reason:          "No active policies to evaluate",
			PolicyName:      "system",
			ConfidenceScore: 1.0,
		}
	} else {
		outcomes := make([]Outcome, len(allResults))
		for i, r := range allResults {
			outcomes[i] = r.Outcome
		}
		finalOutcome = ResolvePrecedence(outcomes)

		// Stable tie-break: the first result carrying the final outcome.
		finalResult = allResults[0]
		for _, r := range allResults {
			if r.Outcome == finalOutcome {
				finalResult = r
				break
			}
		}
	}

	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	e.sink.Log(ctx, pctx.RequestID, "policy_evaluation_complete", map[string]any{
		"checkpoint":         string(pctx.Checkpoint),
		"final_outcome":      string(finalOutcome),
		"policies_evaluated": evaluated,
		"evaluation_time_ms": elapsed,
		"trace_id":           pctx.TraceID(),
	})

	return &EvaluationResult{
		FinalOutcome:      finalOutcome,
		FinalResult:       finalResult,
		AllResults:        allResults,
		EvaluatedPolicies: evaluated,
		EvaluationTimeMs:  elapsed,
	}
}
