// Package outbox implements the durable queue of pending sync operations.
// Producers append an entry for every local change; the sync engine is
// the only mutator and the retention sweeper the only destroyer.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pibridge/pibridge/internal/types"
)

// Status is the delivery state of a queued operation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can leave this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidDataType = errors.New("invalid data type")
	// ErrInvalidTransition is returned when a transition targets an entry
	// that does not exist or is not in an eligible source status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Operation is one queued sync operation. Only Status, Attempts and
// LastAttempt ever change after insert.
type Operation struct {
	ID            int64           `json:"id"`
	OperationType string          `json:"operation_type"`
	DataType      types.DataType  `json:"data_type"`
	RecordID      int64           `json:"record_id"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"created_at"`
	LastAttempt   *time.Time      `json:"last_attempt,omitempty"`
}

// Queue is the SQLite-backed outbox over the agent's database.
type Queue struct {
	db *sql.DB
}

// NewQueue creates a Queue over the given database handle. The handle is
// shared with the entity store so enqueues can join entity transactions.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db}
}

const enqueueSQL = `
	INSERT INTO sync_queue (operation_type, data_type, record_id, payload, created_at)
	VALUES (?, ?, ?, ?, ?)`

// Enqueue serializes payload and inserts a new pending entry, returning
// its id.
func (q *Queue) Enqueue(ctx context.Context, operationType string, dataType types.DataType, recordID int64, payload any) (int64, error) {
	return enqueue(ctx, q.db, operationType, dataType, recordID, payload)
}

// EnqueueTx is Enqueue inside a caller-owned transaction, so the entity
// write and its queue entry commit or roll back together.
func EnqueueTx(ctx context.Context, tx *sql.Tx, operationType string, dataType types.DataType, recordID int64, payload any) (int64, error) {
	return enqueue(ctx, tx, operationType, dataType, recordID, payload)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func enqueue(ctx context.Context, e execer, operationType string, dataType types.DataType, recordID int64, payload any) (int64, error) {
	if !dataType.Valid() {
		return 0, fmt.Errorf("enqueue %q: %w", dataType, ErrInvalidDataType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("serialize payload: %w", err)
	}

	result, err := e.ExecContext(ctx, enqueueSQL,
		operationType, string(dataType), recordID, string(raw),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("enqueue operation: %w", err)
	}
	return result.LastInsertId()
}

// ListPending returns pending entries in creation order, capped at limit.
// The Attempts value on each returned entry is the pre-attempt snapshot
// the retry-ceiling decision must use.
func (q *Queue) ListPending(ctx context.Context, limit int) ([]Operation, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, operation_type, data_type, record_id, payload, status, attempts, created_at, last_attempt
		FROM sync_queue
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending operations: %w", err)
	}
	defer rows.Close()

	ops := make([]Operation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// Get returns a single entry by id.
func (q *Queue) Get(ctx context.Context, id int64) (*Operation, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, operation_type, data_type, record_id, payload, status, attempts, created_at, last_attempt
		FROM sync_queue WHERE id = ?`, id)

	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("operation %d: %w", id, ErrInvalidTransition)
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(r rowScanner) (*Operation, error) {
	var op Operation
	var dataType, status, createdAt string
	var payload string
	var lastAttempt sql.NullString

	if err := r.Scan(&op.ID, &op.OperationType, &dataType, &op.RecordID,
		&payload, &status, &op.Attempts, &createdAt, &lastAttempt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan operation: %w", err)
	}

	op.DataType = types.DataType(dataType)
	op.Status = Status(status)
	op.Payload = json.RawMessage(payload)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		op.CreatedAt = t
	}
	if lastAttempt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastAttempt.String); err == nil {
			op.LastAttempt = &t
		}
	}
	return &op, nil
}

// Transition applies a status change to a single entry and stamps
// last_attempt. Entering processing marks the start of a delivery attempt
// and is the one place the attempts counter increments; outcome
// transitions (completed, failed, back to pending) leave it untouched so
// one attempt counts exactly once. Source statuses are enforced: only
// pending entries may enter processing, and only processing entries may
// reach an outcome.
func (q *Queue) Transition(ctx context.Context, id int64, newStatus Status) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var result sql.Result
	var err error
	switch newStatus {
	case StatusProcessing:
		result, err = q.db.ExecContext(ctx, `
			UPDATE sync_queue
			SET status = 'processing', attempts = attempts + 1, last_attempt = ?
			WHERE id = ? AND status = 'pending'`, now, id)
	case StatusPending, StatusCompleted, StatusFailed:
		result, err = q.db.ExecContext(ctx, `
			UPDATE sync_queue
			SET status = ?, last_attempt = ?
			WHERE id = ? AND status = 'processing'`, string(newStatus), now, id)
	default:
		return fmt.Errorf("transition to %q: %w", newStatus, ErrInvalidStatus)
	}
	if err != nil {
		return fmt.Errorf("transition operation %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition operation %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("operation %d to %s: %w", id, newStatus, ErrInvalidTransition)
	}
	return nil
}

// RecoverStuck demotes entries left in processing by a crashed drain back
// to pending, so they are retried after restart. The demotion is not a
// delivery attempt: attempts and last_attempt are left as they were.
// Returns the number of entries recovered.
func (q *Queue) RecoverStuck(ctx context.Context) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = 'pending' WHERE status = 'processing'`)
	if err != nil {
		return 0, fmt.Errorf("recover stuck operations: %w", err)
	}
	return result.RowsAffected()
}

// PurgeCompletedOlderThan deletes completed entries created more than the
// given number of days ago. No other status is ever purged. Returns the
// count removed.
func (q *Queue) PurgeCompletedOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339Nano)
	result, err := q.db.ExecContext(ctx, `
		DELETE FROM sync_queue
		WHERE status = 'completed' AND created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge completed operations: %w", err)
	}
	return result.RowsAffected()
}

// Stats summarizes queue state for operators.
type Stats struct {
	Pending            int        `json:"pending"`
	Processing         int        `json:"processing"`
	Completed          int        `json:"completed"`
	Failed             int        `json:"failed"`
	LastSuccessfulSync *time.Time `json:"last_successful_sync,omitempty"`
}

// Stats returns a count per status and the time of the most recent
// successful delivery.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query queue stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		switch Status(status) {
		case StatusPending:
			stats.Pending = count
		case StatusProcessing:
			stats.Processing = count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var lastSync sql.NullString
	err = q.db.QueryRowContext(ctx, `
		SELECT MAX(last_attempt) FROM sync_queue WHERE status = 'completed'`).Scan(&lastSync)
	if err != nil {
		return nil, fmt.Errorf("query last successful sync: %w", err)
	}
	if lastSync.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastSync.String); err == nil {
			stats.LastSuccessfulSync = &t
		}
	}

	return &stats, nil
}
