package snaprestore

import (
	"context"
	"time"
)

// Step names one unit of the workflow. Step values are stable identifiers and
// are stored in operation state and audit events.
type Step string

type ResultStatus int

const (
	ResultUnknown    ResultStatus = 0
	ResultSuccess    ResultStatus = 1
	ResultInProgress ResultStatus = 2
	ResultFailed     ResultStatus = 3
)

func (rs ResultStatus) String() string {
	switch rs {
	case ResultSuccess:
		return "SUCCESS"
	case ResultInProgress:
		return "IN_PROGRESS"
	case ResultFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// StepError is the serialisable failure detail carried by a failed StepResult,
// audit events and failure notifications.
type StepError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

func (e *StepError) Error() string {
	if e.Cause != "" {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause
	}

	return string(e.Kind) + ": " + e.Message
}

// StepResult is produced once per handler invocation and never mutated.
type StepResult struct {
	Status ResultStatus
	Data   map[string]string

	// RetryAfter requests the wait before re-invoking a polling step. When
	// zero the step's configured wait interval applies.
	RetryAfter time.Duration

	Err *StepError
}

func Success(data map[string]string) StepResult {
	return StepResult{Status: ResultSuccess, Data: data}
}

func InProgress(retryAfter time.Duration, data map[string]string) StepResult {
	return StepResult{Status: ResultInProgress, RetryAfter: retryAfter, Data: data}
}

func Failed(kind Kind, message string) StepResult {
	return StepResult{Status: ResultFailed, Err: &StepError{Kind: kind, Message: message}}
}

// FailedErr classifies err against the taxonomy and wraps it into a failed
// result, preserving the cause for the audit trail.
func FailedErr(message string, err error) StepResult {
	return StepResult{Status: ResultFailed, Err: &StepError{
		Kind:    KindOf(err),
		Message: message,
		Cause:   err.Error(),
	}}
}

// Handler implements one workflow step: validate inputs from the operation
// state, call the external collaborator, classify the outcome.
//
// Returning a Go error signals an execution failure subject to the step's
// retry policy, whereas returning a failed StepResult is a definitive
// classification that escalates immediately.
type Handler interface {
	Execute(ctx context.Context, state *OperationState) (StepResult, error)
}

type HandlerFunc func(ctx context.Context, state *OperationState) (StepResult, error)

func (f HandlerFunc) Execute(ctx context.Context, state *OperationState) (StepResult, error) {
	return f(ctx, state)
}
