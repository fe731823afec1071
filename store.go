package snaprestore

import (
	"context"
)

// StateStore implementations persist one OperationState record per operation
// id with optimistic concurrency on the version counter.
type StateStore interface {
	// Get returns a copy of the stored state or ErrOperationNotFound.
	Get(ctx context.Context, operationID string) (*OperationState, error)

	// Put creates or replaces the record. expectedVersion must equal the
	// stored version (zero for creation) or ErrVersionConflict is returned
	// and nothing is written. On success the stored version becomes
	// expectedVersion+1.
	Put(ctx context.Context, state *OperationState, expectedVersion int64) error
}

// Lister is an optional StateStore extension used by the driver's sweep to
// find operations whose wait deadline has passed.
type Lister interface {
	List(ctx context.Context, status Status, limit int) ([]OperationState, error)
}

// AuditLog records the per-operation event history. Appends are fire and
// forget from the orchestrator's perspective: a failed append is logged as a
// secondary error and never fails the workflow.
type AuditLog interface {
	Append(ctx context.Context, event AuditEvent) error

	// List returns the full event history for an operation ordered by
	// timestamp, reconstructing the step timeline.
	List(ctx context.Context, operationID string) ([]AuditEvent, error)
}
