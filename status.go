package snaprestore

import "fmt"

type Status int

const (
	StatusUnknown    Status = 0
	StatusPending    Status = 1
	StatusInProgress Status = 2
	StatusWaiting    Status = 3
	StatusSucceeded  Status = 4
	StatusFailed     Status = 5
	StatusCancelled  Status = 6
	statusSentinel   Status = 7
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "Unknown"
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "InProgress"
	case StatusWaiting:
		return "Waiting"
	case StatusSucceeded:
		return "Succeeded"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

func (s Status) Valid() bool {
	return s > StatusUnknown && s < statusSentinel
}

// Terminal statuses admit no further transition. A terminated operation is
// never mutated again.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

var statusTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusInProgress: true,
		StatusCancelled:  true,
	},
	StatusInProgress: {
		StatusInProgress: true,
		StatusWaiting:    true,
		StatusSucceeded:  true,
		StatusFailed:     true,
		StatusCancelled:  true,
	},
	StatusWaiting: {
		StatusInProgress: true,
		StatusWaiting:    true,
		StatusSucceeded:  true,
		StatusFailed:     true,
		StatusCancelled:  true,
	},
}

// CanTransition reports whether an operation may move from one status to
// another. Terminal statuses have no outgoing transitions.
func CanTransition(from, to Status) bool {
	valid, ok := statusTransitions[from]
	if !ok {
		return false
	}

	return valid[to]
}
