package snaprestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/luno/snaprestore"
	"github.com/luno/snaprestore/adapters/memstore"
)

func TestInvokeMintsOperationID(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	def, err := snaprestore.NewBuilder("test").
		AddStep("a", noopHandler()).
		Build()
	jtest.RequireNil(t, err)

	o := snaprestore.NewOrchestrator(def, store, memstore.NewAudit(), new(recordingFailure))

	resp := o.Invoke(ctx, snaprestore.Request{Step: "a"})
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, snaprestore.MessageCompleted, resp.Body.Message)
	require.NotEmpty(t, resp.Body.OperationID)

	_, err = store.Get(ctx, resp.Body.OperationID)
	jtest.RequireNil(t, err)
}

func TestInvokeAdvanced(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	def, err := snaprestore.NewBuilder("test").
		AddStep("a", snaprestore.HandlerFunc(func(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
			return snaprestore.Success(map[string]string{"status": "copying"}), nil
		})).
		AddStep("b", noopHandler()).
		Build()
	jtest.RequireNil(t, err)

	o := snaprestore.NewOrchestrator(def, store, memstore.NewAudit(), new(recordingFailure))

	resp := o.Invoke(ctx, snaprestore.Request{OperationID: "op-1", Step: "a"})
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, snaprestore.MessageAdvanced, resp.Body.Message)
	require.Equal(t, "op-1", resp.Body.OperationID)
	require.Equal(t, "copying", resp.Body.Data["status"])
}

func TestInvokeWaiting(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	def, err := snaprestore.NewBuilder("test").
		AddStep("check", snaprestore.HandlerFunc(func(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
			return snaprestore.InProgress(0, nil), nil
		}), snaprestore.WithWaitInterval(time.Minute)).
		Build()
	jtest.RequireNil(t, err)

	o := snaprestore.NewOrchestrator(def, store, memstore.NewAudit(), new(recordingFailure))

	resp := o.Invoke(ctx, snaprestore.Request{OperationID: "op-1"})
	require.Equal(t, 202, resp.StatusCode)
	require.Equal(t, snaprestore.MessageWaiting, resp.Body.Message)
	require.Equal(t, int64(60), resp.Body.RetryAfter)
}

func TestInvokeValidationFailure(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	def, err := snaprestore.NewBuilder("test").
		AddStep("a", snaprestore.HandlerFunc(func(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
			return snaprestore.StepResult{}, errors.Wrap(snaprestore.ErrValidation, "bad region")
		})).
		Build()
	jtest.RequireNil(t, err)

	o := snaprestore.NewOrchestrator(def, store, memstore.NewAudit(), new(recordingFailure))

	resp := o.Invoke(ctx, snaprestore.Request{OperationID: "op-1"})
	require.Equal(t, 400, resp.StatusCode)
	require.Equal(t, snaprestore.MessageFailed, resp.Body.Message)
	require.Equal(t, string(snaprestore.KindValidation), resp.Body.ErrorType)
	require.NotEmpty(t, resp.Body.Error)
}

func TestInvokeNotFoundFailure(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	def, err := snaprestore.NewBuilder("test").
		AddStep("a", snaprestore.HandlerFunc(func(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
			return snaprestore.StepResult{}, errors.Wrap(snaprestore.ErrNotFound, "no such snapshot")
		}), snaprestore.WithRetry(quickRetry(3))).
		Build()
	jtest.RequireNil(t, err)

	o := snaprestore.NewOrchestrator(def, store, memstore.NewAudit(), new(recordingFailure))

	resp := o.Invoke(ctx, snaprestore.Request{OperationID: "op-1"})
	require.Equal(t, 404, resp.StatusCode)
	require.Equal(t, string(snaprestore.KindNotFound), resp.Body.ErrorType)
}

func TestInvokeIgnored(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	def, err := snaprestore.NewBuilder("test").
		AddStep("a", noopHandler()).
		Build()
	jtest.RequireNil(t, err)

	o := snaprestore.NewOrchestrator(def, store, memstore.NewAudit(), new(recordingFailure))

	resp := o.Invoke(ctx, snaprestore.Request{OperationID: "op-1"})
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, snaprestore.MessageCompleted, resp.Body.Message)

	resp = o.Invoke(ctx, snaprestore.Request{OperationID: "op-1"})
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, snaprestore.MessageIgnored, resp.Body.Message)
	require.Equal(t, snaprestore.StatusSucceeded.String(), resp.Body.Data["status"])
}

func TestInvokeVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := &conflictStore{Store: memstore.New()}

	def, err := snaprestore.NewBuilder("test").
		AddStep("a", noopHandler()).
		AddStep("b", noopHandler()).
		Build()
	jtest.RequireNil(t, err)

	o := snaprestore.NewOrchestrator(def, store, memstore.NewAudit(), new(recordingFailure))

	resp := o.Invoke(ctx, snaprestore.Request{OperationID: "op-1", Step: "a"})
	require.Equal(t, 200, resp.StatusCode)

	store.failPuts = true

	resp = o.Invoke(ctx, snaprestore.Request{OperationID: "op-1"})
	require.Equal(t, 500, resp.StatusCode)
	require.Equal(t, snaprestore.MessageError, resp.Body.Message)
	require.Equal(t, string(snaprestore.KindTransient), resp.Body.ErrorType)
}

func TestInvokeUnconfiguredStep(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	def, err := snaprestore.NewBuilder("test").
		AddStep("a", noopHandler()).
		Build()
	jtest.RequireNil(t, err)

	// A stored step that is no longer in the definition, for example after a
	// deployment changed the workflow.
	seed := &snaprestore.OperationState{
		OperationID: "op-1",
		CurrentStep: "ghost",
		Status:      snaprestore.StatusInProgress,
		Context:     map[string]string{},
	}
	jtest.RequireNil(t, store.Put(ctx, seed, 0))

	o := snaprestore.NewOrchestrator(def, store, memstore.NewAudit(), new(recordingFailure))

	resp := o.Invoke(ctx, snaprestore.Request{OperationID: "op-1"})
	require.Equal(t, 500, resp.StatusCode)
	require.Equal(t, snaprestore.MessageError, resp.Body.Message)
	require.Equal(t, string(snaprestore.KindPermanent), resp.Body.ErrorType)
}

func TestInvokeUnknownOperation(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	def, err := snaprestore.NewBuilder("test").
		AddStep("a", noopHandler()).
		AddStep("b", noopHandler()).
		Build()
	jtest.RequireNil(t, err)

	o := snaprestore.NewOrchestrator(def, store, memstore.NewAudit(), new(recordingFailure))

	resp := o.Invoke(ctx, snaprestore.Request{OperationID: "missing", Step: "b"})
	require.Equal(t, 404, resp.StatusCode)
	require.Equal(t, snaprestore.MessageError, resp.Body.Message)
	require.Equal(t, string(snaprestore.KindNotFound), resp.Body.ErrorType)
}
