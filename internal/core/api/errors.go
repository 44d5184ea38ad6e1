package api

import (
	"context"
	"errors"

	"github.com/solatis/rulekeeper/internal/facts"
	"github.com/solatis/rulekeeper/internal/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error mapping:
//   no rule triggered                           -> NOT_FOUND
//   malformed rules, facts, kinds or operators  -> INVALID_ARGUMENT
//   coercion failures                           -> INVALID_ARGUMENT
//   undefined variables or actions              -> FAILED_PRECONDITION
//   context deadline / cancellation             -> DEADLINE_EXCEEDED / CANCELED
//   everything else (action failures included)  -> INTERNAL

// codeOf classifies err into a gRPC code.
func codeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}

	switch {
	case errors.Is(err, types.ErrNoRuleTriggered):
		return codes.NotFound
	case errors.Is(err, types.ErrInvalidRuleDefinition),
		errors.Is(err, types.ErrUnknownOperator),
		errors.Is(err, types.ErrUnknownKind),
		errors.Is(err, types.ErrUnknownInputType),
		errors.Is(err, types.ErrCoercionFailed),
		errors.Is(err, types.ErrDuplicateName),
		errors.Is(err, types.ErrInvalidActionParams),
		errors.Is(err, facts.ErrInvalidPath):
		return codes.InvalidArgument
	case errors.Is(err, types.ErrUndefinedVariable),
		errors.Is(err, types.ErrUndefinedAction):
		return codes.FailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// toStatus converts a domain error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

func invalidArgument(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}
