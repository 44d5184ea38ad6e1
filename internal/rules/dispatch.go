// internal/rules/dispatch.go
package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/solatis/rulekeeper/internal/types"
)

// ActionStatus tags an ActionResult.
type ActionStatus string

const (
	StatusSuccess ActionStatus = "success"
	StatusError   ActionStatus = "error"
)

// FailurePolicy selects how action accessor failures surface.
type FailurePolicy int

const (
	// CaptureFailures logs the failure and reports a StatusError result.
	CaptureFailures FailurePolicy = iota
	// PropagateFailures returns the accessor error to the caller.
	PropagateFailures
)

// ParseFailurePolicy converts "capture" or "propagate".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "capture":
		return CaptureFailures, nil
	case "propagate":
		return PropagateFailures, nil
	default:
		return CaptureFailures, fmt.Errorf("unknown failure policy %q (expected capture or propagate)", s)
	}
}

// ActionResult is the outcome of one dispatched action.
type ActionResult struct {
	ActionName   string
	ActionParams map[string]any
	Status       ActionStatus
	Result       any   // nil when Status is StatusError
	Err          error // captured failure, nil on success
}

// IsFailed reports whether the action failed.
func (r *ActionResult) IsFailed() bool {
	return r.Status == StatusError
}

// ToMap returns the result in rule-document form.
func (r *ActionResult) ToMap() map[string]any {
	return map[string]any{
		"action_name":   r.ActionName,
		"action_params": r.ActionParams,
		"action_status": string(r.Status),
		"action_result": r.Result,
	}
}

// Dispatch resolves call on actions and invokes it.
// An unknown action is always an error. Accessor failures follow policy.
func Dispatch(ctx context.Context, call types.ActionCall, actions ActionProvider, policy FailurePolicy, logger *slog.Logger) (*ActionResult, error) {
	action, ok := actions.Action(call.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUndefinedAction, call.Name)
	}
	params := call.Params
	if params == nil {
		params = map[string]any{}
	}

	if policy == PropagateFailures {
		result, err := action.Call(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", call.Name, err)
		}
		return &ActionResult{ActionName: call.Name, ActionParams: params, Status: StatusSuccess, Result: result}, nil
	}

	result, err := callCaptured(ctx, action, params)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(ctx, "action failed", "action", call.Name, "params", params, "error", err)
		return &ActionResult{ActionName: call.Name, ActionParams: params, Status: StatusError, Err: err}, nil
	}
	return &ActionResult{ActionName: call.Name, ActionParams: params, Status: StatusSuccess, Result: result}, nil
}

// callCaptured converts a panicking accessor into an error.
func callCaptured(ctx context.Context, action *Action, params map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("action %q panicked: %v", action.Name, r)
		}
	}()
	return action.Call(ctx, params)
}
