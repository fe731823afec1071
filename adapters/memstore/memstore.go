package memstore

import (
	"context"
	"sort"
	"sync"

	"k8s.io/utils/clock"

	"github.com/luno/snaprestore"
)

// New returns an in-memory StateStore for tests and local development. The
// default clock is the real clock.
func New(opts ...Option) *Store {
	opt := options{
		clock: clock.RealClock{},
	}

	for _, o := range opts {
		o(&opt)
	}

	return &Store{
		clock: opt.clock,
		ops:   make(map[string]*snaprestore.OperationState),
	}
}

type options struct {
	clock clock.Clock
}

type Option func(o *options)

// WithClock overrides the default real-time clock, for example in tests.
func WithClock(clock clock.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

var (
	_ snaprestore.StateStore = (*Store)(nil)
	_ snaprestore.Lister     = (*Store)(nil)
)

type Store struct {
	mu    sync.Mutex
	clock clock.Clock

	ops map[string]*snaprestore.OperationState
	// order preserves insertion order for deterministic listing.
	order []string
}

func (s *Store) Get(ctx context.Context, operationID string) (*snaprestore.OperationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.ops[operationID]
	if !ok {
		return nil, snaprestore.ErrOperationNotFound
	}

	// Return a copy so modifications don't affect the store.
	return state.Clone(), nil
}

func (s *Store) Put(ctx context.Context, state *snaprestore.OperationState, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.ops[state.OperationID]
	if !ok {
		if expectedVersion != 0 {
			return snaprestore.ErrVersionConflict
		}
	} else if existing.Version != expectedVersion {
		return snaprestore.ErrVersionConflict
	}

	clone := state.Clone()
	clone.Version = expectedVersion + 1
	clone.UpdatedAt = s.clock.Now()

	if !ok {
		s.order = append(s.order, state.OperationID)
	}
	s.ops[state.OperationID] = clone

	return nil
}

func (s *Store) List(ctx context.Context, status snaprestore.Status, limit int) ([]snaprestore.OperationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var states []snaprestore.OperationState
	for _, id := range s.order {
		state, ok := s.ops[id]
		if !ok || state.Status != status {
			continue
		}

		states = append(states, *state.Clone())
		if limit > 0 && len(states) >= limit {
			break
		}
	}

	return states, nil
}

// NewAudit returns an in-memory append-only AuditLog.
func NewAudit() *Audit {
	return &Audit{
		events: make(map[string][]snaprestore.AuditEvent),
	}
}

var _ snaprestore.AuditLog = (*Audit)(nil)

type Audit struct {
	mu     sync.Mutex
	events map[string][]snaprestore.AuditEvent
}

func (a *Audit) Append(ctx context.Context, event snaprestore.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.events[event.OperationID] = append(a.events[event.OperationID], event)
	return nil
}

func (a *Audit) List(ctx context.Context, operationID string) ([]snaprestore.AuditEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	events := make([]snaprestore.AuditEvent, len(a.events[operationID]))
	copy(events, a.events[operationID])

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	return events, nil
}
