package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/pibridge/pibridge/internal/types"
)

// Table selection is a fixed allow-list keyed by data type. Table names
// are never built from request input.
var syncedTables = map[types.DataType]string{
	types.DataTypeDevice:     "devices",
	types.DataTypeBattery:    "battery_history",
	types.DataTypeScreenshot: "screenshots",
	types.DataTypeLog:        "system_logs",
}

// ListUnsynced returns all records of the given kind with synced = false,
// ordered by id ascending. Consumers rely on that ordering for FIFO
// delivery even though the queue itself is the ordering authority.
func (s *SQLiteStore) ListUnsynced(ctx context.Context, kind types.DataType) ([]any, error) {
	switch kind {
	case types.DataTypeBattery:
		return s.unsyncedBattery(ctx)
	case types.DataTypeScreenshot:
		return s.unsyncedScreenshots(ctx)
	case types.DataTypeLog:
		return s.unsyncedLogs(ctx)
	default:
		return nil, fmt.Errorf("list unsynced %q: %w", kind, ErrInvalidDataType)
	}
}

func (s *SQLiteStore) unsyncedBattery(ctx context.Context) ([]any, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_udid, level, state, timestamp, synced
		FROM battery_history WHERE synced = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query unsynced battery: %w", err)
	}
	defer rows.Close()

	records := make([]any, 0)
	for rows.Next() {
		var b types.BatterySample
		var ts string
		if err := rows.Scan(&b.ID, &b.DeviceUDID, &b.Level, &b.State, &ts, &b.Synced); err != nil {
			return nil, fmt.Errorf("scan battery sample: %w", err)
		}
		b.Timestamp = parseTime(ts, "timestamp")
		records = append(records, b)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) unsyncedScreenshots(ctx context.Context) ([]any, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_udid, filename, filepath, captured_at, synced
		FROM screenshots WHERE synced = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query unsynced screenshots: %w", err)
	}
	defer rows.Close()

	records := make([]any, 0)
	for rows.Next() {
		var sc types.Screenshot
		var capturedAt string
		if err := rows.Scan(&sc.ID, &sc.DeviceUDID, &sc.Filename, &sc.Filepath, &capturedAt, &sc.Synced); err != nil {
			return nil, fmt.Errorf("scan screenshot: %w", err)
		}
		sc.CapturedAt = parseTime(capturedAt, "captured_at")
		records = append(records, sc)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) unsyncedLogs(ctx context.Context) ([]any, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_udid, log_entry, timestamp, synced
		FROM system_logs WHERE synced = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query unsynced logs: %w", err)
	}
	defer rows.Close()

	records := make([]any, 0)
	for rows.Next() {
		var l types.LogEntry
		var ts string
		if err := rows.Scan(&l.ID, &l.DeviceUDID, &l.Line, &ts, &l.Synced); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		l.Timestamp = parseTime(ts, "timestamp")
		records = append(records, l)
	}
	return records, rows.Err()
}

// MarkSynced bulk-sets synced = true on the rows of the table mapped from
// kind. This is the direct acknowledgement path used by the backend; it is
// intentionally independent of the outbox queue. Returns the number of
// rows updated.
func (s *SQLiteStore) MarkSynced(ctx context.Context, kind types.DataType, ids []int64) (int64, error) {
	table, ok := syncedTables[kind]
	if !ok {
		return 0, fmt.Errorf("mark synced %q: %w", kind, ErrInvalidDataType)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	// table comes from the allow-list above, never from the caller.
	query := fmt.Sprintf("UPDATE %s SET synced = 1 WHERE id IN (%s)", table, placeholders)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark synced: %w", err)
	}
	return result.RowsAffected()
}
