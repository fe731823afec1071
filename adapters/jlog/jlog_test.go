package jlog_test

import (
	"context"
	"testing"

	"github.com/luno/jettison/errors"

	"github.com/luno/snaprestore"
	"github.com/luno/snaprestore/adapters/jlog"
)

func TestLogger(t *testing.T) {
	var l snaprestore.Logger = jlog.New()

	ctx := context.Background()
	l.Debug(ctx, "steady state", snaprestore.MKV{"operation_id": "op-1"})
	l.Error(ctx, errors.New("boom"))
}
