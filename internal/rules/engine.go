package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/solatis/rulekeeper/internal/types"
)

// Observer receives evaluation events. Implemented by the metrics collector.
type Observer interface {
	RuleEvaluated(rule *types.Rule, triggered bool, elapsed time.Duration)
	ActionDispatched(rule *types.Rule, result *ActionResult)
}

// Outcome reports a triggered rule and its action results.
type Outcome struct {
	RuleID   types.RuleID
	RuleName string
	Results  []*ActionResult // one entry unless the rule is multi-action
}

// ToMap returns the outcome in document form.
func (o *Outcome) ToMap() map[string]any {
	results := make([]any, len(o.Results))
	for i, r := range o.Results {
		results[i] = r.ToMap()
	}
	return map[string]any{
		"rule_id":   string(o.RuleID),
		"rule_name": o.RuleName,
		"results":   results,
	}
}

// Engine runs rules against providers. Stateless between calls and safe
// for concurrent use when each call gets its own providers.
type Engine struct {
	logger   *slog.Logger
	policy   FailurePolicy
	observer Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for trigger and failure messages.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithFailurePolicy selects capture (default) or propagate for action failures.
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithObserver registers an evaluation observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// NewEngine creates an engine. Defaults: slog.Default(), CaptureFailures.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.Default(),
		policy: CaptureFailures,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Run evaluates one rule. Returns a nil Outcome when the conditions do not hold.
func (e *Engine) Run(ctx context.Context, rule *types.Rule, vars VariableProvider, actions ActionProvider) (*Outcome, error) {
	if err := validateActionCount(rule); err != nil {
		return nil, err
	}

	start := time.Now()
	triggered, err := EvaluateConditions(ctx, rule.Conditions, vars)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", ruleRef(rule), err)
	}
	if e.observer != nil {
		e.observer.RuleEvaluated(rule, triggered, time.Since(start))
	}
	if !triggered {
		return nil, nil
	}

	e.logger.DebugContext(ctx, "rule triggered",
		"rule_id", string(rule.ID),
		"rule_name", rule.Name,
		"actions", actionNames(rule.Actions),
	)

	outcome := &Outcome{RuleID: rule.ID, RuleName: rule.Name}
	for _, call := range rule.Actions {
		result, err := Dispatch(ctx, call, actions, e.policy, e.logger.With("rule_id", string(rule.ID)))
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", ruleRef(rule), err)
		}
		if e.observer != nil {
			e.observer.ActionDispatched(rule, result)
		}
		outcome.Results = append(outcome.Results, result)
	}
	return outcome, nil
}

// Decide returns the outcome of the first rule, in list order, whose
// conditions hold. Fails with ErrNoRuleTriggered when none does or when
// the triggered outcome carries more than one result.
func (e *Engine) Decide(ctx context.Context, rules []*types.Rule, vars VariableProvider, actions ActionProvider) (*Outcome, error) {
	for _, rule := range rules {
		outcome, err := e.Run(ctx, rule, vars, actions)
		if err != nil {
			return nil, err
		}
		if outcome == nil {
			continue
		}
		if len(outcome.Results) != 1 {
			return nil, fmt.Errorf("%w: rule %s produced %d results", types.ErrNoRuleTriggered, ruleRef(rule), len(outcome.Results))
		}
		return outcome, nil
	}
	return nil, types.ErrNoRuleTriggered
}

// RunAll evaluates every rule in order and collects the outcomes of those
// that triggered. With stopOnFirstTrigger it returns after the first one.
func (e *Engine) RunAll(ctx context.Context, rules []*types.Rule, vars VariableProvider, actions ActionProvider, stopOnFirstTrigger bool) ([]*Outcome, error) {
	var outcomes []*Outcome
	for _, rule := range rules {
		outcome, err := e.Run(ctx, rule, vars, actions)
		if err != nil {
			return outcomes, err
		}
		if outcome == nil {
			continue
		}
		outcomes = append(outcomes, outcome)
		if stopOnFirstTrigger {
			break
		}
	}
	return outcomes, nil
}

// validateActionCount enforces exactly one action outside legacy mode.
func validateActionCount(rule *types.Rule) error {
	n := len(rule.Actions)
	if n == 0 {
		return fmt.Errorf("%w: rule %s has no actions", types.ErrInvalidRuleDefinition, ruleRef(rule))
	}
	if n > 1 && !rule.MultiAction {
		return fmt.Errorf("%w: rule %s specifies %d actions, expected exactly one", types.ErrInvalidRuleDefinition, ruleRef(rule), n)
	}
	return nil
}

func ruleRef(rule *types.Rule) string {
	if rule.Name != "" {
		return fmt.Sprintf("%q", rule.Name)
	}
	return fmt.Sprintf("%q", string(rule.ID))
}

func actionNames(calls []types.ActionCall) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}
