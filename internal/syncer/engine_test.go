package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pibridge/pibridge/internal/outbox"
	"github.com/pibridge/pibridge/internal/store"
	"github.com/pibridge/pibridge/internal/types"
)

type fakeBackend struct {
	calls int
	err   error
}

func (b *fakeBackend) Deliver(ctx context.Context, op outbox.Operation) error {
	b.calls++
	return b.err
}

func newTestQueue(t *testing.T) *outbox.Queue {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return outbox.NewQueue(db.DB())
}

func enqueueLog(t *testing.T, q *outbox.Queue, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := q.Enqueue(context.Background(), "create", types.DataTypeLog, int64(i+1),
			types.LogPayload{DeviceUDID: "udid-1", Line: "line"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestDrainEmptyQueue(t *testing.T) {
	q := newTestQueue(t)
	backend := &fakeBackend{}
	engine := NewEngine(q, backend)

	result, err := engine.Drain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Processed != 0 || result.Succeeded != 0 || result.Failed != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
	if backend.calls != 0 {
		t.Errorf("expected no deliveries, got %d", backend.calls)
	}
}

func TestDrainDeliversAll(t *testing.T) {
	q := newTestQueue(t)
	ids := enqueueLog(t, q, 3)
	engine := NewEngine(q, &fakeBackend{})

	result, err := engine.Drain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Processed != 3 || result.Succeeded != 3 || result.Failed != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %v", result.Errors)
	}

	for _, id := range ids {
		op, err := q.Get(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if op.Status != outbox.StatusCompleted {
			t.Errorf("expected completed, got %s", op.Status)
		}
		if op.Attempts != 1 {
			t.Errorf("expected 1 attempt, got %d", op.Attempts)
		}
	}
}

func TestDrainSingleScreenshot(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "create", types.DataTypeScreenshot, 1,
		types.ScreenshotPayload{DeviceUDID: "udid-1", Filename: "shot.png"})
	if err != nil {
		t.Fatal(err)
	}

	engine := NewEngine(q, &fakeBackend{})
	result, err := engine.Drain(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if result.Processed != 1 || result.Succeeded != 1 || result.Failed != 0 || len(result.Errors) != 0 {
		t.Errorf("unexpected result %+v", result)
	}

	op, err := q.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if op.Status != outbox.StatusCompleted || op.Attempts != 1 {
		t.Errorf("expected completed after 1 attempt, got %s/%d", op.Status, op.Attempts)
	}
}

func TestDrainRetryBudget(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	ids := enqueueLog(t, q, 1)

	backend := &fakeBackend{err: errors.New("backend down")}
	engine := NewEngine(q, backend)

	// The entry stays pending across failures until the ceiling, then
	// lands in failed. Drain more times than the budget to prove no
	// further deliveries happen.
	for i := 0; i < 8; i++ {
		if _, err := engine.Drain(ctx); err != nil {
			t.Fatal(err)
		}
	}

	op, err := q.Get(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if op.Status != outbox.StatusFailed {
		t.Errorf("expected failed, got %s", op.Status)
	}
	// Ceiling of 4 pre-attempt means exactly 5 total delivery attempts
	if op.Attempts != 5 {
		t.Errorf("expected 5 attempts, got %d", op.Attempts)
	}
	if backend.calls != 5 {
		t.Errorf("expected 5 deliveries, got %d", backend.calls)
	}
}

func TestDrainInProgress(t *testing.T) {
	q := newTestQueue(t)
	ids := enqueueLog(t, q, 1)
	backend := &fakeBackend{}
	engine := NewEngine(q, backend)

	if !engine.Gate().TryAcquire() {
		t.Fatal("could not acquire gate")
	}

	result, err := engine.Drain(context.Background())
	if !errors.Is(err, ErrDrainInProgress) {
		t.Fatalf("expected ErrDrainInProgress, got %v", err)
	}
	if result != nil {
		t.Error("expected nil result when drain is dropped")
	}
	if backend.calls != 0 {
		t.Errorf("dropped drain must not deliver, got %d calls", backend.calls)
	}

	// Queue state untouched by the dropped call
	op, err := q.Get(context.Background(), ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if op.Status != outbox.StatusPending || op.Attempts != 0 {
		t.Errorf("expected pristine entry, got %s/%d", op.Status, op.Attempts)
	}

	engine.Gate().Release()
	if _, err := engine.Drain(context.Background()); err != nil {
		t.Fatalf("drain after release failed: %v", err)
	}
}

type failingQueue struct{}

func (failingQueue) ListPending(ctx context.Context, limit int) ([]outbox.Operation, error) {
	return nil, errors.New("disk gone")
}

func (failingQueue) Transition(ctx context.Context, id int64, s outbox.Status) error {
	return nil
}

func TestDrainQueueReadFault(t *testing.T) {
	engine := NewEngine(failingQueue{}, &fakeBackend{})

	result, err := engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("queue faults are reported via the result, got %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(result.Errors))
	}

	// Gate must be released after the fault
	if !engine.Gate().TryAcquire() {
		t.Error("gate still held after failed drain")
	}
	engine.Gate().Release()
}

func TestDrainBatchSize(t *testing.T) {
	q := newTestQueue(t)
	enqueueLog(t, q, 5)
	engine := NewEngine(q, &fakeBackend{}, WithBatchSize(2))

	result, err := engine.Drain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Processed != 2 {
		t.Errorf("expected batch of 2, got %d", result.Processed)
	}
}

func TestGate(t *testing.T) {
	var g Gate
	if !g.TryAcquire() {
		t.Fatal("first acquire must succeed")
	}
	if g.TryAcquire() {
		t.Fatal("second acquire must fail while held")
	}
	g.Release()
	if !g.TryAcquire() {
		t.Fatal("acquire after release must succeed")
	}
}
