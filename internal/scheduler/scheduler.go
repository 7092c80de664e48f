package scheduler

import (
	"context"
	"log/slog"
	"time"

	"newsbits/internal/domain"
)

// Refresher runs one fetch-all pass.
type Refresher interface {
	FetchAll(ctx context.Context) (*domain.Batch, error)
}

type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// NewScheduler returns a Scheduler that refreshes every interval. Each run
// is cancelled after timeout.
func NewScheduler(refresher Refresher, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		interval:  interval,
		timeout:   timeout,
		logger:    logger.With("component", "scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "timeout", s.timeout)

	s.runRefresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runRefresh(ctx)
		}
	}
}

func (s *Scheduler) runRefresh(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	batch, err := s.refresher.FetchAll(runCtx)
	if err != nil {
		s.logger.Error("refresh failed", "error", err)
		return
	}

	s.logger.Info("refresh finished",
		"origin", batch.Origin,
		"added", batch.Added,
		"articles", len(batch.Articles),
		"failed_sources", len(batch.Failures),
	)
}
