package journal

import (
	"context"
	"time"

	"fundportal/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder writes actions to a Store. Journal failures are logged and never
// fail the action itself.
type Recorder struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewRecorder(store Store, logger *zap.Logger, m *metrics.Collector) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger, metrics: m}
}

// Begin inserts a as pending and returns its id.
func (r *Recorder) Begin(ctx context.Context, a Action) uuid.UUID {
	if r == nil {
		return uuid.Nil
	}
	now := time.Now().UTC()
	a.ID = uuid.New()
	a.Status = StatusPending
	a.CreatedAt, a.UpdatedAt = now, now
	if err := r.store.Insert(ctx, &a); err != nil {
		r.logger.Warn("journal insert failed", zap.String("kind", string(a.Kind)), zap.Error(err))
	}
	return a.ID
}

// End marks the action confirmed, or failed when out.Err is set.
func (r *Recorder) End(ctx context.Context, id uuid.UUID, kind Kind, out Outcome) {
	if r == nil {
		return
	}
	status := StatusConfirmed
	if out.Err != nil {
		status = StatusFailed
	}
	r.metrics.ObserveAction(string(kind), string(status))
	if id == uuid.Nil {
		return
	}
	// the action context may already be cancelled
	ctx = context.WithoutCancel(ctx)
	if err := r.store.Finish(ctx, id, status, out); err != nil {
		r.logger.Warn("journal update failed", zap.String("id", id.String()), zap.Error(err))
	}
}

// Store returns the underlying store.
func (r *Recorder) Store() Store {
	return r.store
}
