// Package syncer drains the outbox queue against the remote backend:
// single-flight, strictly sequential, with a bounded retry budget per
// operation.
package syncer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pibridge/pibridge/internal/outbox"
)

const (
	// DefaultBatchSize bounds how many pending entries one drain fetches.
	DefaultBatchSize = 50

	// DefaultMaxAttempts is the retry ceiling checked against the
	// pre-attempt attempts snapshot. With the check-before-increment
	// ordering this yields 5 delivery attempts before an entry is
	// marked failed.
	DefaultMaxAttempts = 4
)

// ErrDrainInProgress is returned when Drain is invoked while another
// drain holds the gate. The caller's work is dropped, not deferred.
var ErrDrainInProgress = errors.New("sync drain already in progress")

// OperationQueue is the slice of the outbox the engine needs.
type OperationQueue interface {
	ListPending(ctx context.Context, limit int) ([]outbox.Operation, error)
	Transition(ctx context.Context, id int64, newStatus outbox.Status) error
}

// DrainError records one failed operation within a drain.
type DrainError struct {
	OperationID int64  `json:"operation_id,omitempty"`
	Error       string `json:"error"`
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Processed int          `json:"processed"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Errors    []DrainError `json:"errors"`
}

// Engine drains pending operations to the backend.
type Engine struct {
	queue       OperationQueue
	backend     Backend
	gate        Gate
	batchSize   int
	maxAttempts int
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchSize overrides the per-drain fetch bound.
func WithBatchSize(n int) Option {
	return func(e *Engine) { e.batchSize = n }
}

// WithMaxAttempts overrides the retry ceiling.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) { e.maxAttempts = n }
}

// NewEngine creates a sync engine over the given queue and backend.
func NewEngine(queue OperationQueue, backend Backend, opts ...Option) *Engine {
	e := &Engine{
		queue:       queue,
		backend:     backend,
		batchSize:   DefaultBatchSize,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Gate exposes the single-flight guard so callers and tests can assert
// contention behavior.
func (e *Engine) Gate() *Gate {
	return &e.gate
}

// Drain fetches a batch of pending operations and delivers them in
// creation order, one at a time. If a drain is already in flight it
// returns ErrDrainInProgress immediately and performs no work. Faults on
// a single operation are folded into the result and never abort the
// batch; a queue read fault aborts the batch but is still reported via
// the result rather than an error, and the gate is released on every
// path.
func (e *Engine) Drain(ctx context.Context) (*DrainResult, error) {
	if !e.gate.TryAcquire() {
		slog.Info("drain skipped, already in progress", "component", "syncer")
		return nil, ErrDrainInProgress
	}
	defer e.gate.Release()

	result := &DrainResult{Errors: []DrainError{}}

	pending, err := e.queue.ListPending(ctx, e.batchSize)
	if err != nil {
		slog.Error("failed to list pending operations", "component", "syncer", "error", err)
		result.Errors = append(result.Errors, DrainError{Error: err.Error()})
		return result, nil
	}

	if len(pending) == 0 {
		return result, nil
	}

	slog.Info("drain started",
		"component", "syncer",
		"action", "drain_start",
		"pending", len(pending),
	)

	for _, op := range pending {
		result.Processed++
		e.deliverOne(ctx, op, result)
	}

	slog.Info("drain completed",
		"component", "syncer",
		"action", "drain_complete",
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)

	return result, nil
}

// deliverOne runs a single delivery attempt for op and records the
// outcome. op.Attempts is the pre-attempt snapshot; the ceiling decision
// uses it, not the post-increment value.
func (e *Engine) deliverOne(ctx context.Context, op outbox.Operation, result *DrainResult) {
	if err := e.queue.Transition(ctx, op.ID, outbox.StatusProcessing); err != nil {
		result.Failed++
		result.Errors = append(result.Errors, DrainError{OperationID: op.ID, Error: err.Error()})
		return
	}

	if err := e.backend.Deliver(ctx, op); err != nil {
		e.recordFailure(ctx, op, err, result)
		return
	}

	if err := e.queue.Transition(ctx, op.ID, outbox.StatusCompleted); err != nil {
		result.Failed++
		result.Errors = append(result.Errors, DrainError{OperationID: op.ID, Error: err.Error()})
		return
	}
	result.Succeeded++
}

func (e *Engine) recordFailure(ctx context.Context, op outbox.Operation, deliverErr error, result *DrainResult) {
	next := outbox.StatusPending
	if op.Attempts >= e.maxAttempts {
		next = outbox.StatusFailed
	}

	if err := e.queue.Transition(ctx, op.ID, next); err != nil {
		slog.Error("failed to record delivery outcome",
			"component", "syncer",
			"operation_id", op.ID,
			"error", err,
		)
	}

	slog.Warn("delivery failed",
		"component", "syncer",
		"action", "delivery_failed",
		"operation_id", op.ID,
		"attempts", op.Attempts+1,
		"next_status", string(next),
		"error", deliverErr,
	)

	result.Failed++
	result.Errors = append(result.Errors, DrainError{OperationID: op.ID, Error: deliverErr.Error()})
}
