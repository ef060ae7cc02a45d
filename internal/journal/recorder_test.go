package journal_test

import (
	"context"
	"errors"
	"testing"

	"fundportal/internal/journal"
	"fundportal/internal/memorystore"
	"fundportal/internal/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// go test -v --run TestRecorder
func TestRecorder(t *testing.T) {
	store := memorystore.NewActionStore()
	m := metrics.NewCollector()
	rec := journal.NewRecorder(store, zaptest.NewLogger(t), m)
	ctx := context.Background()

	id := rec.Begin(ctx, journal.Action{Kind: journal.KindTransfer, Symbol: "MLN-T", Quantity: "2"})
	require.NotEqual(t, uuid.Nil, id)

	a, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusPending, a.Status)
	assert.False(t, a.CreatedAt.IsZero())

	rec.End(ctx, id, journal.KindTransfer, journal.Outcome{TxHash: "0x01"})
	a, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusConfirmed, a.Status)

	id = rec.Begin(ctx, journal.Action{Kind: journal.KindTransfer})
	rec.End(ctx, id, journal.KindTransfer, journal.Outcome{Err: errors.New("boom")})
	a, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusFailed, a.Status)
	assert.Equal(t, "boom", a.Error)

	reg := m.Registry()
	n, err := testutil.GatherAndCount(reg, "fundportal_action_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// go test -v --run TestNilRecorder
func TestNilRecorder(t *testing.T) {
	var rec *journal.Recorder
	id := rec.Begin(context.Background(), journal.Action{Kind: journal.KindApprove})
	assert.Equal(t, uuid.Nil, id)
	assert.NotPanics(t, func() {
		rec.End(context.Background(), id, journal.KindApprove, journal.Outcome{})
	})
}
