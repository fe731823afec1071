package snaprestore

import (
	"context"
	"fmt"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"
)

// Outcome tells the driver what to do after an invocation.
type Outcome int

const (
	OutcomeUnknown Outcome = 0
	// OutcomeAdvance signals the step completed and the operation moved to
	// the next step. The driver may re-invoke immediately.
	OutcomeAdvance Outcome = 1
	// OutcomeComplete signals the final step completed and the operation
	// terminated as Succeeded.
	OutcomeComplete Outcome = 2
	// OutcomeWait signals asynchronous work is still in flight. The driver
	// must re-invoke the same step after the Wait duration.
	OutcomeWait Outcome = 3
	// OutcomeFail signals the operation terminated as Failed. The failure
	// handler has already been invoked.
	OutcomeFail Outcome = 4
	// OutcomeNoop signals the invocation was ignored: the operation is
	// already terminal or the input step is stale.
	OutcomeNoop Outcome = 5
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdvance:
		return "advance"
	case OutcomeComplete:
		return "complete"
	case OutcomeWait:
		return "wait"
	case OutcomeFail:
		return "fail"
	case OutcomeNoop:
		return "noop"
	default:
		return fmt.Sprintf("Outcome(%d)", o)
	}
}

// StepInput is the step-specific portion of a driver invocation. An empty
// Step means "whatever step the operation is currently on".
type StepInput struct {
	Step    Step
	Payload map[string]string
}

// Result is the orchestrator's answer to one invocation.
type Result struct {
	OperationID string
	Step        Step
	Outcome     Outcome
	Status      Status

	// Wait is set for OutcomeWait and is the delay before re-invocation.
	Wait time.Duration

	Data map[string]string
	Err  *StepError
}

type Orchestrator struct {
	def     *Definition
	store   StateStore
	audit   AuditLog
	failure FailureHandler

	clock clock.Clock
	log   Logger

	maxPollAttempts int
	maxElapsed      time.Duration
}

type OrchestratorOption func(*Orchestrator)

func WithClock(cl clock.Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		o.clock = cl
	}
}

func WithLogger(log Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.log = log
	}
}

func WithMaxPollAttempts(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.maxPollAttempts = n
	}
}

// WithMaxElapsed enables a total-elapsed-time ceiling measured from operation
// creation. Zero disables the ceiling, which is the default.
func WithMaxElapsed(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.maxElapsed = d
	}
}

func NewOrchestrator(
	def *Definition,
	store StateStore,
	audit AuditLog,
	failure FailureHandler,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		def:             def,
		store:           store,
		audit:           audit,
		failure:         failure,
		clock:           clock.RealClock{},
		log:             noopLogger{},
		maxPollAttempts: DefaultMaxPollAttempts,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Advance runs one invocation of the workflow for the given operation:
// load or create state, guard against stale and terminal invocations,
// dispatch the current step's handler and interpret its result.
//
// Advance is a pure function of (stored state, input): it holds no state of
// its own between invocations and never blocks while external work completes.
// Waiting is returned as data (OutcomeWait) for the driver to honour.
func (o *Orchestrator) Advance(ctx context.Context, operationID string, input StepInput) (Result, error) {
	state, err := o.store.Get(ctx, operationID)
	if errors.Is(err, ErrOperationNotFound) {
		state, err = o.create(ctx, operationID, input)
		if err != nil {
			return Result{}, err
		}
	} else if err != nil {
		return Result{}, err
	}

	if state.Terminal() {
		o.log.Debug(ctx, "ignoring invocation of terminal operation", MKV{
			"operation_id": operationID,
			"status":       state.Status.String(),
		})

		return noopResult(state), nil
	}

	if input.Step != "" && input.Step != state.CurrentStep {
		o.log.Debug(ctx, "ignoring stale invocation", MKV{
			"operation_id": operationID,
			"input_step":   string(input.Step),
			"current_step": string(state.CurrentStep),
		})

		return noopResult(state), nil
	}

	spec, ok := o.def.Lookup(state.CurrentStep)
	if !ok {
		return Result{}, errors.Wrap(ErrStepNotConfigured, "", j.MKV{
			"operation_id": operationID,
			"step":         string(state.CurrentStep),
		})
	}

	loadedVersion := state.Version
	working := state.Clone()
	for k, v := range input.Payload {
		working.Context[k] = v
	}
	working.Status = StatusInProgress

	var res StepResult
	if exceeded, elapsed := o.elapsedExceeded(working); exceeded {
		res = Failed(KindTimeout, fmt.Sprintf("total elapsed time ceiling exceeded after %v", elapsed))
	} else {
		res = o.execute(ctx, spec, working)
	}

	switch res.Status {
	case ResultSuccess:
		return o.advanceStep(ctx, spec, working, loadedVersion, res)
	case ResultInProgress:
		if spec.Poll != spec.Name {
			// Handing off to a distinct poll step: the ceiling is counted on
			// that step's own self-loop, so no counter is kept here.
			working.clearPollAttempts(spec.Name)
			return o.waitStep(ctx, spec, working, loadedVersion, res)
		}

		attempts := working.pollAttempts(spec.Name) + 1
		if attempts > o.maxPollAttempts {
			res = Failed(KindTimeout, fmt.Sprintf("poll attempt ceiling exceeded after %d attempts", attempts-1))
			return o.failStep(ctx, spec, working, loadedVersion, res)
		}

		working.setPollAttempts(spec.Name, attempts)
		return o.waitStep(ctx, spec, working, loadedVersion, res)
	case ResultFailed:
		return o.failStep(ctx, spec, working, loadedVersion, res)
	default:
		return Result{}, errors.New("handler returned unclassified step result", j.MKV{
			"operation_id": operationID,
			"step":         string(spec.Name),
		})
	}
}

// create persists a fresh Pending record for a first invocation. Only the
// first defined step may create an operation.
func (o *Orchestrator) create(ctx context.Context, operationID string, input StepInput) (*OperationState, error) {
	first := o.def.First()
	if input.Step != "" && input.Step != first.Name {
		return nil, errors.Wrap(ErrOperationNotFound, "only the first step may create an operation", j.MKV{
			"operation_id": operationID,
			"input_step":   string(input.Step),
			"first_step":   string(first.Name),
		})
	}

	now := o.clock.Now()
	state := &OperationState{
		OperationID: operationID,
		CurrentStep: first.Name,
		Status:      StatusPending,
		Context:     make(map[string]string, len(input.Payload)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for k, v := range input.Payload {
		state.Context[k] = v
	}

	err := o.store.Put(ctx, state, 0)
	if err != nil {
		return nil, err
	}

	state.Version = 1

	o.log.Debug(ctx, "created operation", MKV{
		"operation_id": operationID,
		"workflow":     o.def.Name(),
		"first_step":   string(first.Name),
	})

	return state, nil
}

// execute dispatches to the handler, retrying execution errors per the step's
// retry policy. Not-found errors absorb exactly one retry to cover eventual
// consistency; validation, permanent and timeout errors never retry. The
// returned result is always classified (never ResultUnknown).
func (o *Orchestrator) execute(ctx context.Context, spec StepSpec, state *OperationState) StepResult {
	var notFoundRetried bool
	for attempt := 1; ; attempt++ {
		res, err := spec.Handler.Execute(ctx, state.Clone())
		if err == nil {
			if res.Status == ResultUnknown {
				return Failed(KindPermanent, "handler returned an unclassified result")
			}

			return res
		}

		switch KindOf(err) {
		case KindValidation, KindPermanent, KindTimeout:
			return FailedErr("step execution failed", err)
		case KindNotFound:
			if notFoundRetried {
				return FailedErr("resource still absent after retry", err)
			}

			notFoundRetried = true
			if werr := wait(ctx, o.clock, spec.Retry.Backoff(1)); werr != nil {
				return FailedErr("step execution aborted", err)
			}
		default:
			if attempt >= spec.Retry.MaxAttempts {
				return FailedErr("retry attempts exhausted", err)
			}

			o.log.Debug(ctx, "retrying step after transient error", MKV{
				"operation_id": state.OperationID,
				"step":         string(spec.Name),
				"attempt":      fmt.Sprintf("%d", attempt),
			})

			if werr := wait(ctx, o.clock, spec.Retry.Backoff(attempt)); werr != nil {
				return FailedErr("step execution aborted", err)
			}
		}
	}
}

func (o *Orchestrator) advanceStep(
	ctx context.Context,
	spec StepSpec,
	working *OperationState,
	loadedVersion int64,
	res StepResult,
) (Result, error) {
	for k, v := range res.Data {
		working.Context[k] = v
	}
	working.clearPollAttempts(spec.Name)
	delete(working.Context, KeyWakeAt)

	outcome := OutcomeAdvance
	if spec.Next == "" {
		working.Status = StatusSucceeded
		outcome = OutcomeComplete
	} else {
		working.CurrentStep = spec.Next
		working.Status = StatusInProgress
	}

	err := o.persist(ctx, working, loadedVersion)
	if err != nil {
		return Result{}, err
	}

	o.appendAudit(ctx, AuditEvent{
		OperationID: working.OperationID,
		Timestamp:   o.clock.Now(),
		Step:        spec.Name,
		Status:      AuditSuccess,
		Details:     res.Data,
	})

	return Result{
		OperationID: working.OperationID,
		Step:        spec.Name,
		Outcome:     outcome,
		Status:      working.Status,
		Data:        res.Data,
	}, nil
}

func (o *Orchestrator) waitStep(
	ctx context.Context,
	spec StepSpec,
	working *OperationState,
	loadedVersion int64,
	res StepResult,
) (Result, error) {
	for k, v := range res.Data {
		working.Context[k] = v
	}

	waitFor := res.RetryAfter
	if waitFor == 0 {
		waitFor = spec.WaitInterval
	}

	working.CurrentStep = spec.Poll
	working.Status = StatusWaiting
	working.Context[KeyWakeAt] = o.clock.Now().Add(waitFor).Format(time.RFC3339)

	err := o.persist(ctx, working, loadedVersion)
	if err != nil {
		return Result{}, err
	}

	o.appendAudit(ctx, AuditEvent{
		OperationID: working.OperationID,
		Timestamp:   o.clock.Now(),
		Step:        spec.Name,
		Status:      AuditInProgress,
		Details:     res.Data,
	})

	return Result{
		OperationID: working.OperationID,
		Step:        spec.Name,
		Outcome:     OutcomeWait,
		Status:      working.Status,
		Wait:        waitFor,
		Data:        res.Data,
	}, nil
}

func (o *Orchestrator) failStep(
	ctx context.Context,
	spec StepSpec,
	working *OperationState,
	loadedVersion int64,
	res StepResult,
) (Result, error) {
	working.Status = StatusFailed

	// Persist before escalating so that a lost CAS race aborts without side
	// effects and the failure handler runs exactly once per operation.
	err := o.persist(ctx, working, loadedVersion)
	if err != nil {
		return Result{}, err
	}

	details := MKV{}
	if res.Err != nil {
		details["kind"] = string(res.Err.Kind)
		details["message"] = res.Err.Message
		if res.Err.Cause != "" {
			details["cause"] = res.Err.Cause
		}
	}

	o.appendAudit(ctx, AuditEvent{
		OperationID: working.OperationID,
		Timestamp:   o.clock.Now(),
		Step:        spec.Name,
		Status:      AuditFailure,
		Details:     details,
	})

	outcome := o.failure.Handle(ctx, working, res.Err)
	o.log.Debug(ctx, "escalated operation failure", MKV{
		"operation_id": working.OperationID,
		"step":         string(spec.Name),
		"published":    fmt.Sprintf("%t", outcome.Published),
	})

	return Result{
		OperationID: working.OperationID,
		Step:        spec.Name,
		Outcome:     OutcomeFail,
		Status:      StatusFailed,
		Err:         res.Err,
	}, nil
}

func (o *Orchestrator) persist(ctx context.Context, working *OperationState, expectedVersion int64) error {
	working.UpdatedAt = o.clock.Now()
	return o.store.Put(ctx, working, expectedVersion)
}

// appendAudit is best effort: the audit log must never block or fail the
// workflow, so append errors are only logged.
func (o *Orchestrator) appendAudit(ctx context.Context, event AuditEvent) {
	err := o.audit.Append(ctx, event)
	if err != nil {
		o.log.Error(ctx, errors.Wrap(err, "audit append failed", j.MKV{
			"operation_id": event.OperationID,
			"step":         string(event.Step),
		}))
	}
}

func (o *Orchestrator) elapsedExceeded(state *OperationState) (bool, time.Duration) {
	if o.maxElapsed == 0 {
		return false, 0
	}

	elapsed := o.clock.Now().Sub(state.CreatedAt)
	return elapsed >= o.maxElapsed, elapsed
}

func noopResult(state *OperationState) Result {
	return Result{
		OperationID: state.OperationID,
		Step:        state.CurrentStep,
		Outcome:     OutcomeNoop,
		Status:      state.Status,
	}
}
