package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pibridge/pibridge/internal/syncer"
)

// Drainer is the slice of the sync engine the coordinator needs.
// This interface allows testing with mock implementations.
type Drainer interface {
	Drain(ctx context.Context) (*syncer.DrainResult, error)
}

// SyncCoordinator drains the outbox queue on a fixed interval so queued
// operations reach the backend without operator intervention.
type SyncCoordinator struct {
	engine   Drainer
	interval time.Duration
}

// NewSyncCoordinator creates a coordinator that drains via engine every
// interval.
func NewSyncCoordinator(engine Drainer, interval time.Duration) *SyncCoordinator {
	return &SyncCoordinator{
		engine:   engine,
		interval: interval,
	}
}

// Run starts the coordinator loop. Blocks until ctx is cancelled.
func (c *SyncCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "sync-coordinator",
		"action", "worker_started",
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Drain immediately on start so a backlog accumulated while the
	// agent was down does not wait a full interval.
	c.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "sync-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.drain(ctx)
		}
	}
}

func (c *SyncCoordinator) drain(ctx context.Context) {
	result, err := c.engine.Drain(ctx)
	if err != nil {
		// A manual trigger may hold the gate; the next tick retries.
		if errors.Is(err, syncer.ErrDrainInProgress) {
			return
		}
		slog.Error("scheduled drain failed",
			"component", "worker",
			"worker", "sync-coordinator",
			"action", "drain_failed",
			"error", err,
		)
		return
	}

	if result.Processed > 0 {
		slog.Info("scheduled drain completed",
			"component", "worker",
			"worker", "sync-coordinator",
			"action", "drain_complete",
			"processed", result.Processed,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
		)
	}
}
