// Package recorder is the producer side of the outbox pattern: every
// captured reading is written to the entity store and enqueued for sync
// in a single transaction, so a record can never exist without its
// pending operation or vice versa.
package recorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/pibridge/pibridge/internal/device"
	"github.com/pibridge/pibridge/internal/outbox"
	"github.com/pibridge/pibridge/internal/store"
	"github.com/pibridge/pibridge/internal/types"
	"github.com/pibridge/pibridge/internal/validation"
)

// ErrInvalidPayload is returned when a reading fails payload validation
// before anything is written.
var ErrInvalidPayload = errors.New("invalid payload")

// Recorder couples entity writes with outbox enqueues.
type Recorder struct {
	store *store.SQLiteStore
}

// New creates a Recorder over the given store.
func New(s *store.SQLiteStore) *Recorder {
	return &Recorder{store: s}
}

// RecordDevice upserts a device and enqueues an upsert operation.
// Safe to call repeatedly for the same device.
func (r *Recorder) RecordDevice(ctx context.Context, info device.Info) (*types.Device, error) {
	payload := types.DevicePayload{
		UDID:       info.UDID,
		Name:       info.Name,
		Model:      info.Model,
		IOSVersion: info.IOSVersion,
	}
	if errs := validation.ValidateDevicePayload(payload); len(errs) > 0 {
		return nil, payloadError(errs)
	}

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	d, err := store.UpsertDeviceTx(ctx, tx, types.Device{
		UDID:       info.UDID,
		Name:       info.Name,
		Model:      info.Model,
		IOSVersion: info.IOSVersion,
	})
	if err != nil {
		return nil, err
	}

	if _, err := outbox.EnqueueTx(ctx, tx, "upsert", types.DataTypeDevice, d.ID, payload); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return d, nil
}

// RecordBatterySample appends a battery reading and enqueues a create
// operation. Returns the sample id.
func (r *Recorder) RecordBatterySample(ctx context.Context, udid string, level int, state string) (int64, error) {
	payload := types.BatteryPayload{
		DeviceUDID: udid,
		Level:      level,
		State:      state,
	}
	if errs := validation.ValidateBatteryPayload(payload); len(errs) > 0 {
		return 0, payloadError(errs)
	}

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := store.AppendBatterySampleTx(ctx, tx, types.BatterySample{
		DeviceUDID: udid,
		Level:      level,
		State:      state,
	})
	if err != nil {
		return 0, err
	}

	if _, err := outbox.EnqueueTx(ctx, tx, "create", types.DataTypeBattery, id, payload); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return id, nil
}

// RecordScreenshot appends screenshot metadata and enqueues a create
// operation. Returns the screenshot id.
func (r *Recorder) RecordScreenshot(ctx context.Context, udid, filename, filepath string) (int64, error) {
	payload := types.ScreenshotPayload{
		DeviceUDID: udid,
		Filename:   filename,
		Filepath:   filepath,
	}
	if errs := validation.ValidateScreenshotPayload(payload); len(errs) > 0 {
		return 0, payloadError(errs)
	}

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := store.AppendScreenshotTx(ctx, tx, types.Screenshot{
		DeviceUDID: udid,
		Filename:   filename,
		Filepath:   filepath,
	})
	if err != nil {
		return 0, err
	}

	if _, err := outbox.EnqueueTx(ctx, tx, "create", types.DataTypeScreenshot, id, payload); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return id, nil
}

// RecordLogEntry appends a syslog line and enqueues a create operation.
// Returns the entry id.
func (r *Recorder) RecordLogEntry(ctx context.Context, udid, line string) (int64, error) {
	payload := types.LogPayload{
		DeviceUDID: udid,
		Line:       line,
	}
	if errs := validation.ValidateLogPayload(payload); len(errs) > 0 {
		return 0, payloadError(errs)
	}

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := store.AppendLogEntryTx(ctx, tx, types.LogEntry{
		DeviceUDID: udid,
		Line:       line,
	})
	if err != nil {
		return 0, err
	}

	if _, err := outbox.EnqueueTx(ctx, tx, "create", types.DataTypeLog, id, payload); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return id, nil
}

func payloadError(errs []validation.ValidationError) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, errs[0].Error())
}
