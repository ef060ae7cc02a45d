package retention

import (
	"context"
	"testing"
	"time"

	"fundportal/internal/journal"
	"fundportal/internal/memorystore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func seed(t *testing.T, store journal.Store, created ...time.Time) {
	t.Helper()
	for _, c := range created {
		require.NoError(t, store.Insert(context.Background(), &journal.Action{
			ID: uuid.New(), Kind: journal.KindTransfer, Status: journal.StatusConfirmed, CreatedAt: c, UpdatedAt: c,
		}))
	}
}

// go test -v --run TestPrunerRunOnce
func TestPrunerRunOnce(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store := memorystore.NewActionStore()
	seed(t, store, now.Add(-72*time.Hour), now.Add(-49*time.Hour), now.Add(-time.Hour))

	p := &Pruner{Store: store, MaxAge: 48 * time.Hour, Logger: zaptest.NewLogger(t), now: func() time.Time { return now }}
	n, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, store.CountAll())
}

// go test -v --run TestNewScheduler
func TestNewScheduler(t *testing.T) {
	store := memorystore.NewActionStore()

	_, err := NewScheduler("not a schedule", &Pruner{Store: store, MaxAge: time.Hour})
	assert.Error(t, err)

	_, err = NewScheduler("@daily", &Pruner{Store: store})
	assert.Error(t, err)

	s, err := NewScheduler("@every 1s", &Pruner{Store: store, MaxAge: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// the first run happens synchronously
	seed(t, store, time.Now().Add(-2*time.Hour))
	s.Start(ctx)
	assert.Equal(t, 0, store.CountAll())

	seed(t, store, time.Now().Add(-3*time.Hour))
	require.Eventually(t, func() bool { return store.CountAll() == 0 }, 3*time.Second, 20*time.Millisecond)
}
