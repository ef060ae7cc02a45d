// Package journaltest holds the behaviour every journal store must share.
package journaltest

import (
	"context"
	"errors"
	"testing"
	"time"

	"fundportal/internal/journal"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAction(kind journal.Kind, created time.Time) *journal.Action {
	return &journal.Action{
		ID:        uuid.New(),
		Kind:      kind,
		From:      "0x00000000000000000000000000000000000000b1",
		Target:    "0x00000000000000000000000000000000000000c1",
		Symbol:    "MLN-T",
		Quantity:  "1.5",
		Status:    journal.StatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// RunStore exercises store. The store must start empty.
func RunStore(t *testing.T, store journal.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("insert and get", func(t *testing.T) {
		a := newAction(journal.KindTransfer, base)
		require.NoError(t, store.Insert(ctx, a))
		assert.Error(t, store.Insert(ctx, a), "duplicate id")

		got, err := store.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.Kind, got.Kind)
		assert.Equal(t, a.From, got.From)
		assert.Equal(t, a.Quantity, got.Quantity)
		assert.Equal(t, journal.StatusPending, got.Status)
		assert.WithinDuration(t, base, got.CreatedAt, time.Millisecond)

		_, err = store.Get(ctx, uuid.New())
		assert.True(t, errors.Is(err, journal.ErrNotFound))
	})

	t.Run("finish", func(t *testing.T) {
		ok := newAction(journal.KindSubscribe, base.Add(time.Second))
		bad := newAction(journal.KindApprove, base.Add(2*time.Second))
		require.NoError(t, store.Insert(ctx, ok))
		require.NoError(t, store.Insert(ctx, bad))

		require.NoError(t, store.Finish(ctx, ok.ID, journal.StatusConfirmed, journal.Outcome{
			TxHash: "0xabc", RequestID: "7", Shares: "3",
		}))
		require.NoError(t, store.Finish(ctx, bad.ID, journal.StatusFailed, journal.Outcome{
			Err: errors.New("reverted"),
		}))

		got, err := store.Get(ctx, ok.ID)
		require.NoError(t, err)
		assert.Equal(t, journal.StatusConfirmed, got.Status)
		assert.Equal(t, "0xabc", got.TxHash)
		assert.Equal(t, "7", got.RequestID)
		assert.Equal(t, "3", got.Shares)

		got, err = store.Get(ctx, bad.ID)
		require.NoError(t, err)
		assert.Equal(t, journal.StatusFailed, got.Status)
		assert.Equal(t, "reverted", got.Error)

		err = store.Finish(ctx, uuid.New(), journal.StatusConfirmed, journal.Outcome{})
		assert.True(t, errors.Is(err, journal.ErrNotFound))
	})

	t.Run("list and prune", func(t *testing.T) {
		old := newAction(journal.KindTransfer, base.Add(-48*time.Hour))
		require.NoError(t, store.Insert(ctx, old))

		all, err := store.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, journal.KindApprove, all[0].Kind, "newest first")
		assert.Equal(t, old.ID, all[3].ID)

		two, err := store.List(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, two, 2)

		n, err := store.DeleteOlderThan(ctx, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = store.Get(ctx, old.ID)
		assert.True(t, errors.Is(err, journal.ErrNotFound))
	})
}

// RunPreferences exercises prefs. The store must start empty.
func RunPreferences(t *testing.T, prefs journal.Preferences) {
	ctx := context.Background()

	_, ok, err := prefs.GetPreference(ctx, "selectedAccount")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, prefs.SetPreference(ctx, "selectedAccount", "0x01"))
	require.NoError(t, prefs.SetPreference(ctx, "selectedAccount", "0x02"))

	v, ok, err := prefs.GetPreference(ctx, "selectedAccount")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0x02", v)
}
