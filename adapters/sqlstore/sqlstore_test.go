package sqlstore_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/luno/snaprestore"
	"github.com/luno/snaprestore/adapters/sqlstore"
)

// connect returns a database for testing against a disposable schema. Set
// SNAPRESTORE_MYSQL_DSN (e.g. "root@tcp(localhost:3306)/test?parseTime=true")
// to run these tests.
func connect(t *testing.T) *sql.DB {
	t.Helper()

	dsn, ok := os.LookupEnv("SNAPRESTORE_MYSQL_DSN")
	if !ok {
		t.Skip("SNAPRESTORE_MYSQL_DSN not set")
	}

	dbc, err := sql.Open("mysql", dsn)
	jtest.RequireNil(t, err)
	t.Cleanup(func() {
		_, _ = dbc.Exec("drop table if exists operation_states")
		_, _ = dbc.Exec("drop table if exists operation_audit")
		_ = dbc.Close()
	})

	_, err = dbc.Exec("drop table if exists operation_states")
	jtest.RequireNil(t, err)
	_, err = dbc.Exec("drop table if exists operation_audit")
	jtest.RequireNil(t, err)

	_, err = dbc.Exec(sqlstore.StateSchema("operation_states"))
	jtest.RequireNil(t, err)
	_, err = dbc.Exec(sqlstore.AuditSchema("operation_audit"))
	jtest.RequireNil(t, err)

	return dbc
}

func TestPutGet(t *testing.T) {
	dbc := connect(t)
	ctx := context.Background()
	store := sqlstore.New(dbc, dbc, "operation_states")

	_, err := store.Get(ctx, "op-1")
	jtest.Require(t, snaprestore.ErrOperationNotFound, err)

	state := &snaprestore.OperationState{
		OperationID: "op-1",
		CurrentStep: "snapshot-check",
		Status:      snaprestore.StatusPending,
		Context:     map[string]string{"snapshot_id": "s1"},
		CreatedAt:   time.Now(),
	}
	jtest.RequireNil(t, store.Put(ctx, state, 0))

	got, err := store.Get(ctx, "op-1")
	jtest.RequireNil(t, err)
	require.Equal(t, int64(1), got.Version)
	require.Equal(t, snaprestore.Step("snapshot-check"), got.CurrentStep)
	require.Equal(t, "s1", got.Context["snapshot_id"])

	// Duplicate create conflicts.
	jtest.Require(t, snaprestore.ErrVersionConflict, store.Put(ctx, state, 0))

	// Stale version conflicts, current version wins.
	got.Status = snaprestore.StatusInProgress
	jtest.Require(t, snaprestore.ErrVersionConflict, store.Put(ctx, got, 5))
	jtest.RequireNil(t, store.Put(ctx, got, 1))

	again, err := store.Get(ctx, "op-1")
	jtest.RequireNil(t, err)
	require.Equal(t, int64(2), again.Version)
	require.Equal(t, snaprestore.StatusInProgress, again.Status)
}

func TestList(t *testing.T) {
	dbc := connect(t)
	ctx := context.Background()
	store := sqlstore.New(dbc, dbc, "operation_states")

	for _, id := range []string{"op-1", "op-2"} {
		err := store.Put(ctx, &snaprestore.OperationState{
			OperationID: id,
			CurrentStep: "check-copy-status",
			Status:      snaprestore.StatusWaiting,
			Context:     map[string]string{},
			CreatedAt:   time.Now(),
		}, 0)
		jtest.RequireNil(t, err)
	}

	states, err := store.List(ctx, snaprestore.StatusWaiting, 10)
	jtest.RequireNil(t, err)
	require.Len(t, states, 2)

	states, err = store.List(ctx, snaprestore.StatusFailed, 10)
	jtest.RequireNil(t, err)
	require.Empty(t, states)
}

func TestAudit(t *testing.T) {
	dbc := connect(t)
	ctx := context.Background()
	audit := sqlstore.NewAudit(dbc, dbc, "operation_audit")

	base := time.Now().Truncate(time.Millisecond).UTC()
	for i := 0; i < 3; i++ {
		err := audit.Append(ctx, snaprestore.AuditEvent{
			OperationID: "op-1",
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			Step:        "check-copy-status",
			Status:      snaprestore.AuditInProgress,
			Details:     map[string]string{"status": "copying"},
		})
		jtest.RequireNil(t, err)
	}

	events, err := audit.List(ctx, "op-1")
	jtest.RequireNil(t, err)
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		require.True(t, !events[i].Timestamp.Before(events[i-1].Timestamp))
	}
	require.Equal(t, "copying", events[0].Details["status"])
}
