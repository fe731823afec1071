package snaprestore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
)

// Invocation envelope messages. Drivers key off these to decide whether to
// keep re-invoking.
const (
	MessageAdvanced  = "step complete"
	MessageCompleted = "operation complete"
	MessageWaiting   = "operation in progress"
	MessageFailed    = "operation failed"
	MessageIgnored   = "invocation ignored"
	MessageError     = "invocation error"
)

// Request is the driver-to-orchestrator invocation envelope. OperationID may
// be empty on the very first invocation, in which case one is minted.
type Request struct {
	OperationID string            `json:"operation_id,omitempty"`
	Step        Step              `json:"step,omitempty"`
	Payload     map[string]string `json:"payload,omitempty"`
}

type ResponseBody struct {
	Message     string            `json:"message"`
	OperationID string            `json:"operation_id"`
	Data        map[string]string `json:"data,omitempty"`
	Error       string            `json:"error,omitempty"`
	ErrorType   string            `json:"error_type,omitempty"`
	RetryAfter  int64             `json:"retry_after,omitempty"`
}

// Response carries the invocation outcome. StatusCode semantics: 200 step
// complete, 202 in progress (re-invoke after RetryAfter seconds), 400
// validation error, 404 referenced resource absent, 500 internal error
// subject to the driver's retry policy.
type Response struct {
	StatusCode int          `json:"statusCode"`
	Body       ResponseBody `json:"body"`
}

// Invoke wraps Advance in the request/response envelope.
func (o *Orchestrator) Invoke(ctx context.Context, req Request) Response {
	operationID := req.OperationID
	if operationID == "" {
		operationID = uuid.New().String()
	}

	res, err := o.Advance(ctx, operationID, StepInput{Step: req.Step, Payload: req.Payload})
	if err != nil {
		return errorResponse(operationID, err)
	}

	switch res.Outcome {
	case OutcomeAdvance:
		return Response{StatusCode: 200, Body: ResponseBody{
			Message:     MessageAdvanced,
			OperationID: operationID,
			Data:        res.Data,
		}}
	case OutcomeComplete:
		return Response{StatusCode: 200, Body: ResponseBody{
			Message:     MessageCompleted,
			OperationID: operationID,
			Data:        res.Data,
		}}
	case OutcomeWait:
		return Response{StatusCode: 202, Body: ResponseBody{
			Message:     MessageWaiting,
			OperationID: operationID,
			Data:        res.Data,
			RetryAfter:  int64(res.Wait / time.Second),
		}}
	case OutcomeFail:
		body := ResponseBody{
			Message:     MessageFailed,
			OperationID: operationID,
		}
		statusCode := 500
		if res.Err != nil {
			body.Error = res.Err.Message
			body.ErrorType = string(res.Err.Kind)
			statusCode = res.Err.Kind.StatusCode()
		}

		return Response{StatusCode: statusCode, Body: body}
	case OutcomeNoop:
		return Response{StatusCode: 200, Body: ResponseBody{
			Message:     MessageIgnored,
			OperationID: operationID,
			Data: map[string]string{
				"status": res.Status.String(),
				"step":   string(res.Step),
			},
		}}
	default:
		return errorResponse(operationID, errors.New("unknown orchestrator outcome"))
	}
}

func errorResponse(operationID string, err error) Response {
	statusCode := 500
	errorType := string(KindTransient)

	switch {
	case errors.Is(err, ErrVersionConflict):
		// The whole invocation is safe to retry because handlers are
		// idempotent and the losing write had no side effects.
		errorType = string(KindTransient)
	case errors.Is(err, ErrStepNotConfigured):
		// A configuration defect: retrying the invocation cannot fix it.
		errorType = string(KindPermanent)
	case errors.Is(err, ErrOperationNotFound):
		statusCode = 404
		errorType = string(KindNotFound)
	}

	return Response{StatusCode: statusCode, Body: ResponseBody{
		Message:     MessageError,
		OperationID: operationID,
		Error:       err.Error(),
		ErrorType:   errorType,
	}}
}
