package snaprestore

import (
	"time"
)

// AuditEvent is one append-only entry in an operation's history. Events are
// never updated or deleted.
type AuditEvent struct {
	OperationID string            `json:"operation_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Step        Step              `json:"step"`
	Status      string            `json:"status"`
	Details     map[string]string `json:"details,omitempty"`
}

const (
	AuditSuccess    = "SUCCESS"
	AuditInProgress = "IN_PROGRESS"
	AuditFailure    = "FAILURE"
)
