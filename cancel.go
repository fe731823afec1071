package snaprestore

import (
	"context"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// Cancel marks an operation as Cancelled through a conditional write. The
// orchestrator checks the status at the top of every invocation, so a
// cancelled operation short-circuits to a no-op without invoking any handler.
//
// A concurrent invocation may win the version race, in which case
// ErrVersionConflict is returned and the caller can retry.
func Cancel(ctx context.Context, store StateStore, operationID string) error {
	state, err := store.Get(ctx, operationID)
	if err != nil {
		return err
	}

	if !CanTransition(state.Status, StatusCancelled) {
		return errors.Wrap(ErrTerminalState, "operation cannot be cancelled", j.MKV{
			"operation_id": operationID,
			"status":       state.Status.String(),
		})
	}

	version := state.Version
	state.Status = StatusCancelled

	return store.Put(ctx, state, version)
}
