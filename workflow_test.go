package snaprestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/luno/snaprestore"
)

func noopHandler() snaprestore.Handler {
	return snaprestore.HandlerFunc(func(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
		return snaprestore.Success(nil), nil
	})
}

func TestBuilderChainsSteps(t *testing.T) {
	def, err := snaprestore.NewBuilder("test").
		AddStep("a", noopHandler()).
		AddStep("b", noopHandler()).
		AddStep("c", noopHandler()).
		Build()
	jtest.RequireNil(t, err)

	require.Equal(t, "test", def.Name())
	require.Equal(t, snaprestore.Step("a"), def.First().Name)

	a, ok := def.Lookup("a")
	require.True(t, ok)
	require.Equal(t, snaprestore.Step("b"), a.Next)
	require.Equal(t, snaprestore.Step("a"), a.Poll)

	c, ok := def.Lookup("c")
	require.True(t, ok)
	require.Empty(t, c.Next)

	require.Len(t, def.Steps(), 3)
}

func TestBuilderDefaults(t *testing.T) {
	def, err := snaprestore.NewBuilder("test").
		AddStep("a", noopHandler()).
		AddStep("b", noopHandler(), snaprestore.WithWaitInterval(time.Minute)).
		Build()
	jtest.RequireNil(t, err)

	a, _ := def.Lookup("a")
	require.Equal(t, snaprestore.DefaultWaitInterval, a.WaitInterval)
	require.Equal(t, snaprestore.DefaultRetryPolicy(), a.Retry)

	b, _ := def.Lookup("b")
	require.Equal(t, time.Minute, b.WaitInterval)
}

func TestBuilderExplicitNext(t *testing.T) {
	def, err := snaprestore.NewBuilder("test").
		AddStep("a", noopHandler(), snaprestore.WithNext("c")).
		AddStep("b", noopHandler()).
		AddStep("c", noopHandler()).
		Build()
	jtest.RequireNil(t, err)

	a, _ := def.Lookup("a")
	require.Equal(t, snaprestore.Step("c"), a.Next)
}

func TestBuilderRejectsInvalid(t *testing.T) {
	testCases := []struct {
		name  string
		build func() (*snaprestore.Definition, error)
	}{
		{
			name: "no steps",
			build: func() (*snaprestore.Definition, error) {
				return snaprestore.NewBuilder("test").Build()
			},
		},
		{
			name: "empty step name",
			build: func() (*snaprestore.Definition, error) {
				return snaprestore.NewBuilder("test").AddStep("", noopHandler()).Build()
			},
		},
		{
			name: "nil handler",
			build: func() (*snaprestore.Definition, error) {
				return snaprestore.NewBuilder("test").AddStep("a", nil).Build()
			},
		},
		{
			name: "duplicate step",
			build: func() (*snaprestore.Definition, error) {
				return snaprestore.NewBuilder("test").
					AddStep("a", noopHandler()).
					AddStep("a", noopHandler()).
					Build()
			},
		},
		{
			name: "backward next",
			build: func() (*snaprestore.Definition, error) {
				return snaprestore.NewBuilder("test").
					AddStep("a", noopHandler()).
					AddStep("b", noopHandler(), snaprestore.WithNext("a")).
					Build()
			},
		},
		{
			name: "self next",
			build: func() (*snaprestore.Definition, error) {
				return snaprestore.NewBuilder("test").
					AddStep("a", noopHandler(), snaprestore.WithNext("a")).
					AddStep("b", noopHandler()).
					Build()
			},
		},
		{
			name: "unknown next",
			build: func() (*snaprestore.Definition, error) {
				return snaprestore.NewBuilder("test").
					AddStep("a", noopHandler(), snaprestore.WithNext("missing")).
					Build()
			},
		},
		{
			name: "unknown poll",
			build: func() (*snaprestore.Definition, error) {
				return snaprestore.NewBuilder("test").
					AddStep("a", noopHandler(), snaprestore.WithPoll("missing")).
					Build()
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build()
			jtest.Require(t, snaprestore.ErrStepNotConfigured, err)
		})
	}
}
