// Package retention prunes old journal entries on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"fundportal/internal/journal"
	"fundportal/internal/metrics"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Pruner deletes journal entries older than MaxAge.
type Pruner struct {
	Store   journal.Store
	MaxAge  time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Collector

	now func() time.Time
}

// RunOnce prunes once and returns the number of removed entries.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	cutoff := now().UTC().Add(-p.MaxAge)
	n, err := p.Store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	p.Metrics.AddPruned(n)
	p.logger().Info("journal pruned", zap.Int64("removed", n), zap.Time("cutoff", cutoff))
	return n, nil
}

func (p *Pruner) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Scheduler runs a Pruner on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	pruner *Pruner
}

// NewScheduler validates schedule, a standard five field cron spec or a
// descriptor such as "@daily".
func NewScheduler(schedule string, p *Pruner) (*Scheduler, error) {
	if p.MaxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive, got %s", p.MaxAge)
	}
	c := cron.New(cron.WithLocation(time.UTC))
	s := &Scheduler{cron: c, pruner: p}
	if _, err := c.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start prunes once immediately and then on every scheduled tick until ctx
// is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.run()
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.pruner.RunOnce(ctx); err != nil {
		s.pruner.logger().Warn("retention run failed", zap.Error(err))
	}
}
