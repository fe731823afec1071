package snaprestore_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/luno/jettison/errors"
	"github.com/stretchr/testify/require"

	"github.com/luno/snaprestore"
)

type stubNotifier struct {
	mu       sync.Mutex
	topics   []string
	subjects []string
	messages []string

	err error
}

func (n *stubNotifier) Publish(ctx context.Context, topic, subject, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.err != nil {
		return n.err
	}

	n.topics = append(n.topics, topic)
	n.subjects = append(n.subjects, subject)
	n.messages = append(n.messages, message)
	return nil
}

func TestFailureHandlerPublishes(t *testing.T) {
	ctx := context.Background()
	notifier := new(stubNotifier)
	h := snaprestore.NewFailureHandler(notifier, "alerts", nil)

	state := &snaprestore.OperationState{
		OperationID: "op-1",
		CurrentStep: "copy-snapshot",
		Status:      snaprestore.StatusFailed,
	}
	stepErr := &snaprestore.StepError{
		Kind:    snaprestore.KindTransient,
		Message: "retry attempts exhausted",
		Cause:   "throttled",
	}

	outcome := h.Handle(ctx, state, stepErr)
	require.True(t, outcome.Published)
	require.Equal(t, "alerts", outcome.Topic)

	require.Len(t, notifier.messages, 1)
	require.Equal(t, "alerts", notifier.topics[0])
	require.Contains(t, notifier.subjects[0], "op-1")

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(notifier.messages[0]), &payload))
	require.Equal(t, "op-1", payload["operation_id"])
	require.Equal(t, "copy-snapshot", payload["step"])
	require.Equal(t, string(snaprestore.KindTransient), payload["kind"])
	require.Equal(t, "retry attempts exhausted", payload["message"])
	require.Equal(t, "throttled", payload["cause"])
}

func TestFailureHandlerNilStepError(t *testing.T) {
	ctx := context.Background()
	notifier := new(stubNotifier)
	h := snaprestore.NewFailureHandler(notifier, "alerts", nil)

	state := &snaprestore.OperationState{OperationID: "op-1", CurrentStep: "notify"}

	outcome := h.Handle(ctx, state, nil)
	require.True(t, outcome.Published)
	require.Len(t, notifier.messages, 1)
}

func TestFailureHandlerSwallowsPublishError(t *testing.T) {
	ctx := context.Background()
	notifier := &stubNotifier{err: errors.New("broker down")}
	h := snaprestore.NewFailureHandler(notifier, "alerts", nil)

	state := &snaprestore.OperationState{OperationID: "op-1", CurrentStep: "notify"}

	outcome := h.Handle(ctx, state, &snaprestore.StepError{
		Kind:    snaprestore.KindPermanent,
		Message: "boom",
	})
	require.False(t, outcome.Published)
	require.Equal(t, "alerts", outcome.Topic)
	require.Empty(t, notifier.messages)
}
