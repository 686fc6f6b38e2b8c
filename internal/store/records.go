package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pibridge/pibridge/internal/types"
)

// AppendBatterySample inserts a battery reading and returns its id.
func (s *SQLiteStore) AppendBatterySample(ctx context.Context, b types.BatterySample) (int64, error) {
	return appendBatterySample(ctx, s.db, b)
}

// AppendBatterySampleTx is AppendBatterySample inside a caller-owned transaction.
func AppendBatterySampleTx(ctx context.Context, tx *sql.Tx, b types.BatterySample) (int64, error) {
	return appendBatterySample(ctx, tx, b)
}

func appendBatterySample(ctx context.Context, e execer, b types.BatterySample) (int64, error) {
	result, err := e.ExecContext(ctx, `
		INSERT INTO battery_history (device_udid, level, state, timestamp)
		VALUES (?, ?, ?, ?)`,
		b.DeviceUDID, b.Level, b.State, formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("append battery sample: %w", err)
	}
	return result.LastInsertId()
}

// BatteryHistory returns samples for a device within the given window,
// newest first.
func (s *SQLiteStore) BatteryHistory(ctx context.Context, udid string, window time.Duration) ([]types.BatterySample, error) {
	cutoff := formatTime(time.Now().Add(-window))
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_udid, level, state, timestamp, synced
		FROM battery_history
		WHERE device_udid = ? AND timestamp >= ?
		ORDER BY timestamp DESC`, udid, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query battery history: %w", err)
	}
	defer rows.Close()

	samples := make([]types.BatterySample, 0)
	for rows.Next() {
		var b types.BatterySample
		var ts string
		if err := rows.Scan(&b.ID, &b.DeviceUDID, &b.Level, &b.State, &ts, &b.Synced); err != nil {
			return nil, fmt.Errorf("scan battery sample: %w", err)
		}
		b.Timestamp = parseTime(ts, "timestamp")
		samples = append(samples, b)
	}
	return samples, rows.Err()
}

// AppendScreenshot inserts screenshot metadata and returns its id.
func (s *SQLiteStore) AppendScreenshot(ctx context.Context, sc types.Screenshot) (int64, error) {
	return appendScreenshot(ctx, s.db, sc)
}

// AppendScreenshotTx is AppendScreenshot inside a caller-owned transaction.
func AppendScreenshotTx(ctx context.Context, tx *sql.Tx, sc types.Screenshot) (int64, error) {
	return appendScreenshot(ctx, tx, sc)
}

func appendScreenshot(ctx context.Context, e execer, sc types.Screenshot) (int64, error) {
	result, err := e.ExecContext(ctx, `
		INSERT INTO screenshots (device_udid, filename, filepath, captured_at)
		VALUES (?, ?, ?, ?)`,
		sc.DeviceUDID, sc.Filename, sc.Filepath, formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("append screenshot: %w", err)
	}
	return result.LastInsertId()
}

// GetScreenshot returns screenshot metadata by id.
func (s *SQLiteStore) GetScreenshot(ctx context.Context, id int64) (*types.Screenshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_udid, filename, filepath, captured_at, synced
		FROM screenshots WHERE id = ?`, id)

	var sc types.Screenshot
	var capturedAt string
	err := row.Scan(&sc.ID, &sc.DeviceUDID, &sc.Filename, &sc.Filepath, &capturedAt, &sc.Synced)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("screenshot %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get screenshot: %w", err)
	}
	sc.CapturedAt = parseTime(capturedAt, "captured_at")
	return &sc, nil
}

// Screenshots returns recent screenshot metadata for a device, newest
// first, capped at limit.
func (s *SQLiteStore) Screenshots(ctx context.Context, udid string, limit int) ([]types.Screenshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_udid, filename, filepath, captured_at, synced
		FROM screenshots
		WHERE device_udid = ?
		ORDER BY captured_at DESC
		LIMIT ?`, udid, limit)
	if err != nil {
		return nil, fmt.Errorf("query screenshots: %w", err)
	}
	defer rows.Close()

	shots := make([]types.Screenshot, 0)
	for rows.Next() {
		var sc types.Screenshot
		var capturedAt string
		if err := rows.Scan(&sc.ID, &sc.DeviceUDID, &sc.Filename, &sc.Filepath, &capturedAt, &sc.Synced); err != nil {
			return nil, fmt.Errorf("scan screenshot: %w", err)
		}
		sc.CapturedAt = parseTime(capturedAt, "captured_at")
		shots = append(shots, sc)
	}
	return shots, rows.Err()
}

// AppendLogEntry inserts a syslog line and returns its id.
func (s *SQLiteStore) AppendLogEntry(ctx context.Context, l types.LogEntry) (int64, error) {
	return appendLogEntry(ctx, s.db, l)
}

// AppendLogEntryTx is AppendLogEntry inside a caller-owned transaction.
func AppendLogEntryTx(ctx context.Context, tx *sql.Tx, l types.LogEntry) (int64, error) {
	return appendLogEntry(ctx, tx, l)
}

func appendLogEntry(ctx context.Context, e execer, l types.LogEntry) (int64, error) {
	result, err := e.ExecContext(ctx, `
		INSERT INTO system_logs (device_udid, log_entry, timestamp)
		VALUES (?, ?, ?)`,
		l.DeviceUDID, l.Line, formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("append log entry: %w", err)
	}
	return result.LastInsertId()
}

// LogEntries returns recent syslog lines for a device, newest first,
// capped at limit.
func (s *SQLiteStore) LogEntries(ctx context.Context, udid string, limit int) ([]types.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_udid, log_entry, timestamp, synced
		FROM system_logs
		WHERE device_udid = ?
		ORDER BY timestamp DESC
		LIMIT ?`, udid, limit)
	if err != nil {
		return nil, fmt.Errorf("query log entries: %w", err)
	}
	defer rows.Close()

	entries := make([]types.LogEntry, 0)
	for rows.Next() {
		var l types.LogEntry
		var ts string
		if err := rows.Scan(&l.ID, &l.DeviceUDID, &l.Line, &ts, &l.Synced); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		l.Timestamp = parseTime(ts, "timestamp")
		entries = append(entries, l)
	}
	return entries, rows.Err()
}
