package snaprestore

import (
	"context"
)

// Notifier is the notification channel collaborator.
type Notifier interface {
	Publish(ctx context.Context, topic, subject, message string) error
}

type NotificationOutcome struct {
	Published bool
	Topic     string
}

// FailureHandler is the single escalation point for unrecoverable errors. It
// is the workflow's last line of observability and must never propagate a
// failure of its own: implementations log internal errors and return.
type FailureHandler interface {
	Handle(ctx context.Context, state *OperationState, stepErr *StepError) NotificationOutcome
}

type failureNotification struct {
	OperationID string `json:"operation_id"`
	Step        string `json:"step"`
	Kind        Kind   `json:"kind"`
	Message     string `json:"message"`
	Cause       string `json:"cause,omitempty"`
}

// NewFailureHandler returns a FailureHandler that publishes a structured
// failure notification to the given topic.
func NewFailureHandler(notifier Notifier, topic string, log Logger) FailureHandler {
	if log == nil {
		log = noopLogger{}
	}

	return &failureNotifier{
		notifier: notifier,
		topic:    topic,
		log:      log,
	}
}

type failureNotifier struct {
	notifier Notifier
	topic    string
	log      Logger
}

func (f *failureNotifier) Handle(ctx context.Context, state *OperationState, stepErr *StepError) NotificationOutcome {
	notification := failureNotification{
		OperationID: state.OperationID,
		Step:        string(state.CurrentStep),
	}

	if stepErr != nil {
		notification.Kind = stepErr.Kind
		notification.Message = stepErr.Message
		notification.Cause = stepErr.Cause
	}

	message, err := Marshal(&notification)
	if err != nil {
		f.log.Error(ctx, err)
		return NotificationOutcome{Topic: f.topic}
	}

	subject := "restore operation failed: " + state.OperationID

	err = f.notifier.Publish(ctx, f.topic, subject, string(message))
	if err != nil {
		f.log.Error(ctx, err)
		return NotificationOutcome{Topic: f.topic}
	}

	f.log.Debug(ctx, "published failure notification", MKV{
		"operation_id": state.OperationID,
		"step":         string(state.CurrentStep),
		"topic":        f.topic,
	})

	return NotificationOutcome{Published: true, Topic: f.topic}
}
