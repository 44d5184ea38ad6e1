// Package api provides the RuleKeeper evaluation service, usable directly
// and over gRPC.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/solatis/rulekeeper/internal/core/metrics"
	"github.com/solatis/rulekeeper/internal/facts"
	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
)

// Evaluation modes.
const (
	ModeFirst = "first" // first triggered rule decides; none is NotFound
	ModeAll   = "all"   // collect every triggered rule
)

// RuleSource supplies the default rule list. Implemented by *ruleset.Store.
type RuleSource interface {
	Rules() []*types.Rule
}

// DecisionRecorder persists outcomes. Implemented by *db.DecisionLog.
type DecisionRecorder interface {
	RecordAll(ctx context.Context, evaluationID types.EvaluationID, outcomes []*rules.Outcome) error
}

// EvaluateRequest is one evaluation. Rules, when empty, default to the
// service's RuleSource.
type EvaluateRequest struct {
	Mode               string
	StopOnFirstTrigger bool
	Facts              *facts.Document
	Rules              []*types.Rule
}

// EvaluateResponse carries the triggered outcomes in rule order.
type EvaluateResponse struct {
	EvaluationID types.EvaluationID
	Outcomes     []*rules.Outcome
}

// ToMap returns the response in wire form. Failed action results carry
// their error text under "error".
func (r *EvaluateResponse) ToMap() map[string]any {
	outcomes := make([]any, len(r.Outcomes))
	for i, o := range r.Outcomes {
		m := o.ToMap()
		results := m["results"].([]any)
		for j, res := range o.Results {
			if res.Err != nil {
				results[j].(map[string]any)["error"] = res.Err.Error()
			}
		}
		outcomes[i] = m
	}
	return map[string]any{
		"evaluation_id": string(r.EvaluationID),
		"outcomes":      outcomes,
	}
}

// Service evaluates fact documents against rule lists.
// Thin orchestration layer delegating to facts, rules, and the decision log.
type Service struct {
	engine      *rules.Engine
	actions     *rules.Actions
	source      RuleSource
	recorder    DecisionRecorder
	collector   *metrics.Collector
	logger      *slog.Logger
	defaultMode string
	timeout     time.Duration
	compileOpts []rules.CompileOption
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRuleSource sets the rules used when a request carries none.
func WithRuleSource(source RuleSource) ServiceOption {
	return func(s *Service) { s.source = source }
}

// WithDecisionRecorder records every triggered outcome.
func WithDecisionRecorder(recorder DecisionRecorder) ServiceOption {
	return func(s *Service) { s.recorder = recorder }
}

// WithMetrics counts requests by mode and result code.
func WithMetrics(collector *metrics.Collector) ServiceOption {
	return func(s *Service) { s.collector = collector }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithDefaultMode sets the mode used when a request names none.
func WithDefaultMode(mode string) ServiceOption {
	return func(s *Service) { s.defaultMode = mode }
}

// WithTimeout bounds each evaluation. Zero leaves the caller's deadline.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.timeout = d }
}

// WithCompileOptions applies to rules supplied inline with a request.
func WithCompileOptions(opts ...rules.CompileOption) ServiceOption {
	return func(s *Service) { s.compileOpts = append(s.compileOpts, opts...) }
}

// WithActions replaces facts.BuiltinActions as the action provider.
func WithActions(actions *rules.Actions) ServiceOption {
	return func(s *Service) { s.actions = actions }
}

// NewService creates a service around engine.
func NewService(engine *rules.Engine, opts ...ServiceOption) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	s := &Service{
		engine:      engine,
		actions:     facts.BuiltinActions(),
		logger:      slog.Default(),
		defaultMode: ModeFirst,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := validateMode(s.defaultMode); err != nil {
		return nil, err
	}
	return s, nil
}

// Run evaluates req and records the outcomes.
func (s *Service) Run(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	mode := req.Mode
	if mode == "" {
		mode = s.defaultMode
	}
	resp, err := s.run(ctx, mode, req)
	if s.collector != nil {
		label := mode
		if validateMode(mode) != nil {
			label = "invalid"
		}
		s.collector.EvaluationCompleted(label, codeOf(err).String())
	}
	return resp, err
}

func (s *Service) run(ctx context.Context, mode string, req *EvaluateRequest) (*EvaluateResponse, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}
	if req.Facts == nil {
		return nil, invalidArgument("facts are required")
	}

	ruleList := req.Rules
	if len(ruleList) == 0 && s.source != nil {
		ruleList = s.source.Rules()
	}

	vars, err := req.Facts.Provider()
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp := &EvaluateResponse{EvaluationID: types.NewEvaluationID()}
	logger := s.logger.With("evaluation_id", string(resp.EvaluationID), "mode", mode)

	switch mode {
	case ModeFirst:
		outcome, err := s.engine.Decide(ctx, ruleList, vars, s.actions)
		if err != nil {
			logger.DebugContext(ctx, "evaluation finished without decision", "rules", len(ruleList), "error", err)
			return nil, err
		}
		resp.Outcomes = []*rules.Outcome{outcome}
	case ModeAll:
		outcomes, err := s.engine.RunAll(ctx, ruleList, vars, s.actions, req.StopOnFirstTrigger)
		if err != nil {
			return nil, err
		}
		resp.Outcomes = outcomes
	}

	logger.InfoContext(ctx, "evaluation complete", "rules", len(ruleList), "triggered", len(resp.Outcomes))

	if s.recorder != nil && len(resp.Outcomes) > 0 {
		if err := s.recorder.RecordAll(ctx, resp.EvaluationID, resp.Outcomes); err != nil {
			// The decision stands; a logging failure must not change it
			logger.ErrorContext(ctx, "failed to record decision", "error", err)
		}
	}
	return resp, nil
}

// CompileRules compiles inline request rules with the service options.
func (s *Service) CompileRules(raw any) ([]*types.Rule, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: rules must be a list, got %T", types.ErrInvalidRuleDefinition, raw)
	}
	return rules.CompileList(list, s.compileOpts...)
}

func validateMode(mode string) error {
	switch mode {
	case ModeFirst, ModeAll:
		return nil
	default:
		return fmt.Errorf("%w: unknown mode %q (expected first or all)", types.ErrInvalidRuleDefinition, mode)
	}
}
