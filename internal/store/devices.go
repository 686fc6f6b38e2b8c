package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pibridge/pibridge/internal/types"
)

const upsertDeviceSQL = `
	INSERT INTO devices (udid, name, model, ios_version, last_seen)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(udid) DO UPDATE SET
		name = excluded.name,
		model = excluded.model,
		ios_version = excluded.ios_version,
		last_seen = excluded.last_seen`

// UpsertDevice inserts or updates a device keyed by UDID and returns the
// stored row. Calling it repeatedly with identical input is safe; only
// last_seen moves forward.
func (s *SQLiteStore) UpsertDevice(ctx context.Context, d types.Device) (*types.Device, error) {
	return upsertDevice(ctx, s.db, d)
}

// UpsertDeviceTx is UpsertDevice inside a caller-owned transaction.
func UpsertDeviceTx(ctx context.Context, tx *sql.Tx, d types.Device) (*types.Device, error) {
	return upsertDevice(ctx, tx, d)
}

func upsertDevice(ctx context.Context, e execer, d types.Device) (*types.Device, error) {
	now := time.Now().UTC()
	_, err := e.ExecContext(ctx, upsertDeviceSQL,
		d.UDID, d.Name, d.Model, d.IOSVersion, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("upsert device: %w", err)
	}
	return getDevice(ctx, e, d.UDID)
}

// GetDevice returns the device with the given UDID.
func (s *SQLiteStore) GetDevice(ctx context.Context, udid string) (*types.Device, error) {
	return getDevice(ctx, s.db, udid)
}

func getDevice(ctx context.Context, e execer, udid string) (*types.Device, error) {
	row := e.QueryRowContext(ctx, `
		SELECT id, udid, name, model, ios_version, last_seen, synced
		FROM devices WHERE udid = ?`, udid)

	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device %q: %w", udid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return d, nil
}

// ListDevices returns all known devices, most recently seen first.
func (s *SQLiteStore) ListDevices(ctx context.Context) ([]types.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, udid, name, model, ios_version, last_seen, synced
		FROM devices ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := make([]types.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(r rowScanner) (*types.Device, error) {
	var d types.Device
	var lastSeen string
	if err := r.Scan(&d.ID, &d.UDID, &d.Name, &d.Model, &d.IOSVersion, &lastSeen, &d.Synced); err != nil {
		return nil, err
	}
	d.LastSeen = parseTime(lastSeen, "last_seen")
	return &d, nil
}
