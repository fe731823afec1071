package snaprestore

import (
	"context"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"k8s.io/utils/clock"
)

const (
	defaultSweepSchedule = "@every 1m"
	defaultSweepLimit    = 100
	defaultInvokeRetries = 5
)

// Driver is an in-process scheduler that honours the orchestrator's wait
// instructions. It exists for development and tests; production deployments
// are expected to re-invoke the orchestrator from an external event
// scheduler instead.
type Driver struct {
	orch  *Orchestrator
	store StateStore

	clock clock.Clock
	log   Logger

	sweepSchedule string
	sweepLimit    int
	invokeRetries int
	retry         RetryPolicy

	cron *cron.Cron
}

type DriverOption func(*Driver)

func WithDriverClock(cl clock.Clock) DriverOption {
	return func(d *Driver) {
		d.clock = cl
	}
}

func WithDriverLogger(log Logger) DriverOption {
	return func(d *Driver) {
		d.log = log
	}
}

// WithSweepSchedule sets the cron spec of the background sweep that
// re-invokes Waiting operations whose wake deadline has passed. The sweep
// covers re-invocations lost to a process restart.
func WithSweepSchedule(spec string) DriverOption {
	return func(d *Driver) {
		d.sweepSchedule = spec
	}
}

func WithInvokeRetry(policy RetryPolicy) DriverOption {
	return func(d *Driver) {
		d.retry = policy
	}
}

func NewDriver(orch *Orchestrator, store StateStore, opts ...DriverOption) *Driver {
	d := &Driver{
		orch:          orch,
		store:         store,
		clock:         clock.RealClock{},
		log:           noopLogger{},
		sweepSchedule: defaultSweepSchedule,
		sweepLimit:    defaultSweepLimit,
		invokeRetries: defaultInvokeRetries,
		retry:         DefaultRetryPolicy(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Run drives a single operation to a terminal outcome, re-invoking the
// orchestrator whenever it asks to wait. Run blocks until the operation
// terminates, the context is cancelled, or a non-retryable error surfaces.
func (d *Driver) Run(ctx context.Context, req Request) (Response, error) {
	resp := d.invoke(ctx, req)

	// Subsequent invocations target whatever step the operation is on.
	req = Request{OperationID: resp.Body.OperationID}

	for {
		switch resp.StatusCode {
		case 200:
			switch resp.Body.Message {
			case MessageCompleted, MessageIgnored:
				return resp, nil
			}
			// Step advanced. Run the next step immediately.
		case 202:
			waitFor := time.Duration(resp.Body.RetryAfter) * time.Second
			err := wait(ctx, d.clock, waitFor)
			if err != nil {
				return resp, err
			}
		default:
			// 400, 404 and failed operations are terminal for the driver.
			// Invocation errors (500 with MessageError) were already retried
			// by invoke.
			return resp, nil
		}

		resp = d.invoke(ctx, req)
	}
}

// invoke calls the orchestrator, retrying transient invocation errors such as
// lost version races with backoff. Non-transient invocation errors, such as a
// step missing from the definition, are returned as is.
func (d *Driver) invoke(ctx context.Context, req Request) Response {
	resp := d.orch.Invoke(ctx, req)
	for attempt := 1; attempt <= d.invokeRetries; attempt++ {
		if resp.StatusCode != 500 ||
			resp.Body.Message != MessageError ||
			resp.Body.ErrorType != string(KindTransient) {
			return resp
		}

		d.log.Debug(ctx, "retrying invocation", MKV{
			"operation_id": resp.Body.OperationID,
			"attempt":      strconv.Itoa(attempt),
			"error":        resp.Body.Error,
		})

		err := wait(ctx, d.clock, d.retry.Backoff(attempt))
		if err != nil {
			return resp
		}

		if req.OperationID == "" {
			req.OperationID = resp.Body.OperationID
		}
		resp = d.orch.Invoke(ctx, req)
	}

	return resp
}

// Start launches the background sweep. It is a no-op when the state store
// does not support listing.
func (d *Driver) Start(ctx context.Context) {
	if _, ok := d.store.(Lister); !ok {
		d.log.Debug(ctx, "state store does not support listing, sweep disabled", MKV{})
		return
	}

	d.cron = cron.New()
	_, err := d.cron.AddFunc(d.sweepSchedule, func() {
		d.Sweep(ctx)
	})
	if err != nil {
		d.log.Error(ctx, err)
		return
	}

	d.cron.Start()
}

// Stop halts the background sweep and waits for a running sweep to finish.
func (d *Driver) Stop() {
	if d.cron == nil {
		return
	}

	<-d.cron.Stop().Done()
}

// Sweep re-invokes Waiting operations whose wake deadline has passed. A
// malformed or missing deadline counts as due: re-invoking early is safe
// because polling handlers are idempotent.
func (d *Driver) Sweep(ctx context.Context) {
	lister, ok := d.store.(Lister)
	if !ok {
		return
	}

	states, err := lister.List(ctx, StatusWaiting, d.sweepLimit)
	if err != nil {
		d.log.Error(ctx, err)
		return
	}

	now := d.clock.Now()
	for _, state := range states {
		wakeAt, err := time.Parse(time.RFC3339, state.Context[KeyWakeAt])
		if err == nil && now.Before(wakeAt) {
			continue
		}

		resp := d.orch.Invoke(ctx, Request{OperationID: state.OperationID})
		d.log.Debug(ctx, "sweep re-invoked operation", MKV{
			"operation_id": state.OperationID,
			"status_code":  strconv.Itoa(resp.StatusCode),
		})
	}
}
