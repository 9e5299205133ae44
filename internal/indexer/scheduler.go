package indexer

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// Scheduler kicks the indexer for every dataset on a cron expression, with
// one immediate run at startup. Overlapping runs are skipped, not queued.
type Scheduler struct {
	indexer *Indexer
	crontab string
	running atomic.Bool
}

// NewScheduler creates a Scheduler for the given crontab expression.
func NewScheduler(indexer *Indexer, crontab string) *Scheduler {
	return &Scheduler{indexer: indexer, crontab: crontab}
}

// Run starts the scheduler loop and blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("indexer scheduler started", "crontab", s.crontab)

	// Startup hook: converge immediately, then fall into the cron cadence.
	s.kick(ctx)

	c := cron.New()
	if _, err := c.AddFunc(s.crontab, func() { s.kick(ctx) }); err != nil {
		slog.Error("invalid crontab, scheduled reindexing disabled",
			"crontab", s.crontab, "error", err)
		<-ctx.Done()
		return
	}
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	slog.Info("indexer scheduler stopped")
}

// Trigger runs one full pass outside the cron cadence, e.g. from the update
// endpoint. Returns false when a pass is already in flight.
func (s *Scheduler) Trigger(ctx context.Context, force bool) bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	defer s.running.Store(false)
	if err := s.indexer.Run(ctx, force); err != nil {
		slog.Error("reindex run finished with errors", "error", err)
	}
	return true
}

func (s *Scheduler) kick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.Trigger(ctx, false) {
		slog.Info("skipping scheduled reindex, previous run still active")
	}
}
