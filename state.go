package snaprestore

import (
	"strconv"
	"time"
)

// OperationState is the persisted progress of one workflow run. It is owned
// exclusively by the orchestrator and mutated only through compare-and-swap
// puts keyed on Version.
type OperationState struct {
	OperationID string
	CurrentStep Step
	Status      Status

	// Context accumulates step outputs. Handlers read from it to validate
	// their inputs and the orchestrator merges StepResult data back into it.
	Context map[string]string

	// Version increases by one on every successful put. A put with a stale
	// version is rejected with ErrVersionConflict.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so that callers cannot mutate stored state.
func (s *OperationState) Clone() *OperationState {
	clone := *s
	clone.Context = make(map[string]string, len(s.Context))
	for k, v := range s.Context {
		clone.Context[k] = v
	}

	return &clone
}

// Terminal reports whether the operation has finished and must not be
// mutated again.
func (s *OperationState) Terminal() bool {
	return s.Status.Terminal()
}

const (
	pollAttemptKeyPrefix = "poll_attempts:"

	// KeyWakeAt holds the RFC3339 time after which a Waiting operation should
	// be re-invoked. The driver's sweep uses it to recover missed re-triggers.
	KeyWakeAt = "wake_at"
)

func pollAttemptKey(step Step) string {
	return pollAttemptKeyPrefix + string(step)
}

func (s *OperationState) pollAttempts(step Step) int {
	n, err := strconv.Atoi(s.Context[pollAttemptKey(step)])
	if err != nil {
		return 0
	}

	return n
}

func (s *OperationState) setPollAttempts(step Step, n int) {
	s.Context[pollAttemptKey(step)] = strconv.Itoa(n)
}

func (s *OperationState) clearPollAttempts(step Step) {
	delete(s.Context, pollAttemptKey(step))
}
