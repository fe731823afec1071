package redisstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/luno/snaprestore"
	"github.com/luno/snaprestore/adapters/redisstore"
)

// connect returns a client for a disposable database. Set
// SNAPRESTORE_REDIS_ADDR (e.g. "localhost:6379") to run these tests.
func connect(t *testing.T) redis.UniversalClient {
	t.Helper()

	addr, ok := os.LookupEnv("SNAPRESTORE_REDIS_ADDR")
	if !ok {
		t.Skip("SNAPRESTORE_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 9})
	jtest.RequireNil(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return client
}

func TestPutGet(t *testing.T) {
	client := connect(t)
	ctx := context.Background()
	store := redisstore.New(client)

	_, err := store.Get(ctx, "op-1")
	jtest.Require(t, snaprestore.ErrOperationNotFound, err)

	state := &snaprestore.OperationState{
		OperationID: "op-1",
		CurrentStep: "snapshot-check",
		Status:      snaprestore.StatusPending,
		Context:     map[string]string{"snapshot_id": "s1"},
		CreatedAt:   time.Now().UTC(),
	}
	jtest.RequireNil(t, store.Put(ctx, state, 0))

	got, err := store.Get(ctx, "op-1")
	jtest.RequireNil(t, err)
	require.Equal(t, int64(1), got.Version)
	require.Equal(t, "s1", got.Context["snapshot_id"])

	// Duplicate create and stale versions conflict.
	jtest.Require(t, snaprestore.ErrVersionConflict, store.Put(ctx, state, 0))
	jtest.Require(t, snaprestore.ErrVersionConflict, store.Put(ctx, state, 7))

	jtest.RequireNil(t, store.Put(ctx, got, 1))

	again, err := store.Get(ctx, "op-1")
	jtest.RequireNil(t, err)
	require.Equal(t, int64(2), again.Version)
}

func TestAudit(t *testing.T) {
	client := connect(t)
	ctx := context.Background()
	audit := redisstore.NewAudit(client)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 2; i >= 0; i-- {
		err := audit.Append(ctx, snaprestore.AuditEvent{
			OperationID: "op-1",
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			Step:        "check-restore-status",
			Status:      snaprestore.AuditInProgress,
		})
		jtest.RequireNil(t, err)
	}

	events, err := audit.List(ctx, "op-1")
	jtest.RequireNil(t, err)
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		require.True(t, !events[i].Timestamp.Before(events[i-1].Timestamp))
	}
}
