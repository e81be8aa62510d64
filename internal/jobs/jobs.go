// Package jobs runs the server's scheduled maintenance.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepSchedule runs the share sweep every night at 03:00.
const SweepSchedule = "0 0 3 * * *"

// sweepTimeout bounds one sweep run.
const sweepTimeout = time.Minute

// ShareSweeper deletes shares that expired more than retention ago.
type ShareSweeper interface {
	SweepExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// Scheduler wraps a cron runner with the server's jobs.
type Scheduler struct {
	cron      *cron.Cron
	shares    ShareSweeper
	retention time.Duration
	logger    *slog.Logger
}

// NewScheduler registers the nightly sweep. Call Start to begin running it.
func NewScheduler(shares ShareSweeper, retention time.Duration, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		shares:    shares,
		retention: retention,
		logger:    logger,
	}
	if _, err := s.cron.AddFunc(SweepSchedule, s.SweepShares); err != nil {
		return nil, fmt.Errorf("jobs: scheduling share sweep: %w", err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("job scheduler started", slog.String("shareSweep", SweepSchedule))
}

// Stop halts the scheduler and waits for a running job to finish or ctx to
// end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("job scheduler stop timed out")
	}
}

// SweepShares runs one sweep. Errors are logged; the next night retries.
func (s *Scheduler) SweepShares() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.shares.SweepExpired(ctx, s.retention)
	if err != nil {
		s.logger.Error("share sweep failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("share sweep finished",
		slog.Int64("removed", n),
		slog.Duration("duration", time.Since(start)),
	)
}
