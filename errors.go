package snaprestore

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

var (
	ErrOperationNotFound = errors.New("operation not found", j.C("ERR_96c41ab72de3f0c1"))
	ErrVersionConflict   = errors.New("operation state version conflict", j.C("ERR_4f8d21c903ab57e2"))
	ErrStepNotConfigured = errors.New("step is not configured for workflow", j.C("ERR_d02e7c5f18ba9364"))
	ErrTerminalState     = errors.New("operation is in a terminal state", j.C("ERR_7a35e9d4c6f1208b"))

	// ErrValidation through ErrTimeout are the failure taxonomy. Handlers and
	// collaborators wrap one of these so the orchestrator can classify the
	// failure and pick the retry behaviour.
	ErrValidation = errors.New("validation failed", j.C("ERR_1be60c84f97d23a5"))
	ErrNotFound   = errors.New("referenced resource not found", j.C("ERR_83f5a1d9e07c46b2"))
	ErrTransient  = errors.New("transient resource failure", j.C("ERR_c29d74e6a1f8350b"))
	ErrPermanent  = errors.New("permanent resource failure", j.C("ERR_5e08b3f6d92c17a4"))
	ErrTimeout    = errors.New("operation timed out", j.C("ERR_e7412fa98b63d05c"))
)

// Kind is the wire name of a failure class. It is stored in audit events and
// failure notifications and drives the response status code.
type Kind string

const (
	KindUnknown    Kind = ""
	KindValidation Kind = "ValidationError"
	KindNotFound   Kind = "NotFoundError"
	KindTransient  Kind = "TransientError"
	KindPermanent  Kind = "PermanentError"
	KindTimeout    Kind = "Timeout"
)

// KindOf classifies err against the failure taxonomy. Unclassified errors are
// treated as transient since retrying them is safe for idempotent handlers.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPermanent):
		return KindPermanent
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	default:
		return KindTransient
	}
}

// StatusCode maps a failure class onto the invocation envelope's status codes.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return 400
	case KindNotFound:
		return 404
	default:
		return 500
	}
}
