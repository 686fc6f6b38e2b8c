package worker

import (
	"context"
	"log/slog"
	"time"
)

// Purger is the slice of the outbox queue the sweeper needs.
type Purger interface {
	PurgeCompletedOlderThan(ctx context.Context, days int) (int64, error)
}

// RetentionSweeper bounds queue growth by periodically purging completed
// entries older than the retention window. Entries in any other status
// are never touched.
type RetentionSweeper struct {
	queue         Purger
	interval      time.Duration
	retentionDays int
}

// NewRetentionSweeper creates a sweeper purging completed entries older
// than retentionDays every interval.
func NewRetentionSweeper(queue Purger, interval time.Duration, retentionDays int) *RetentionSweeper {
	return &RetentionSweeper{
		queue:         queue,
		interval:      interval,
		retentionDays: retentionDays,
	}
}

// Run starts the sweeper loop. Blocks until ctx is cancelled.
func (s *RetentionSweeper) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "retention-sweeper",
		"action", "worker_started",
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "retention-sweeper",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one purge pass. Exposed so the cleanup boundary operation
// and CLI can invoke it on demand.
func (s *RetentionSweeper) Sweep(ctx context.Context) {
	removed, err := s.queue.PurgeCompletedOlderThan(ctx, s.retentionDays)
	if err != nil {
		slog.Error("retention sweep failed",
			"component", "worker",
			"worker", "retention-sweeper",
			"action", "sweep_failed",
			"error", err,
		)
		return
	}

	if removed > 0 {
		slog.Info("retention sweep completed",
			"component", "worker",
			"worker", "retention-sweeper",
			"action", "sweep_complete",
			"removed", removed,
			"retention_days", s.retentionDays,
		)
	}
}
