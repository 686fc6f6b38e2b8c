package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pibridge/pibridge/internal/device"
	"github.com/pibridge/pibridge/internal/outbox"
	"github.com/pibridge/pibridge/internal/store"
	"github.com/pibridge/pibridge/internal/types"
)

func newTestRecorder(t *testing.T) (*Recorder, *store.SQLiteStore, *outbox.Queue) {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), db, outbox.NewQueue(db.DB())
}

func TestRecordDevice(t *testing.T) {
	rec, db, q := newTestRecorder(t)
	ctx := context.Background()

	d, err := rec.RecordDevice(ctx, device.Info{
		UDID:       "udid-1",
		Name:       "Test iPhone",
		Model:      "iPhone14,2",
		IOSVersion: "17.1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.ID == 0 {
		t.Error("expected device id")
	}

	// The entity write and its queue entry land together
	stored, err := db.GetDevice(ctx, "udid-1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Name != "Test iPhone" {
		t.Errorf("unexpected name %q", stored.Name)
	}

	pending, err := q.ListPending(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending operation, got %d", len(pending))
	}
	if pending[0].OperationType != "upsert" {
		t.Errorf("expected upsert, got %q", pending[0].OperationType)
	}
	if pending[0].DataType != types.DataTypeDevice {
		t.Errorf("expected device data type, got %s", pending[0].DataType)
	}
	if pending[0].RecordID != d.ID {
		t.Errorf("expected record id %d, got %d", d.ID, pending[0].RecordID)
	}
}

func TestRecordBatterySample(t *testing.T) {
	rec, db, q := newTestRecorder(t)
	ctx := context.Background()

	id, err := rec.RecordBatterySample(ctx, "udid-1", 75, "charging")
	if err != nil {
		t.Fatal(err)
	}

	samples, err := db.ListUnsynced(ctx, types.DataTypeBattery)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}

	pending, err := q.ListPending(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].RecordID != id {
		t.Fatalf("expected matching queue entry, got %+v", pending)
	}
	if pending[0].OperationType != "create" {
		t.Errorf("expected create, got %q", pending[0].OperationType)
	}
}

func TestRecordRejectsInvalidPayload(t *testing.T) {
	rec, _, q := newTestRecorder(t)
	ctx := context.Background()

	// Missing udid: nothing may be written
	if _, err := rec.RecordBatterySample(ctx, "", 50, "charging"); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if _, err := rec.RecordBatterySample(ctx, "udid-1", 150, "charging"); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for bad level, got %v", err)
	}
	if _, err := rec.RecordLogEntry(ctx, "udid-1", ""); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for empty line, got %v", err)
	}

	pending, err := q.ListPending(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("rejected records must not enqueue, got %d entries", len(pending))
	}
}

func TestRecordScreenshotAndLog(t *testing.T) {
	rec, _, q := newTestRecorder(t)
	ctx := context.Background()

	if _, err := rec.RecordScreenshot(ctx, "udid-1", "shot.png", "/tmp/shot.png"); err != nil {
		t.Fatal(err)
	}
	if _, err := rec.RecordLogEntry(ctx, "udid-1", "kernel: ok"); err != nil {
		t.Fatal(err)
	}

	pending, err := q.ListPending(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending operations, got %d", len(pending))
	}
	if pending[0].DataType != types.DataTypeScreenshot || pending[1].DataType != types.DataTypeLog {
		t.Errorf("unexpected data types %s, %s", pending[0].DataType, pending[1].DataType)
	}
}
