package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/pibridge/pibridge/internal/recorder"
	"github.com/pibridge/pibridge/internal/types"
)

func TestTriggerSync(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()

	rec := recorder.New(ts.store)
	if _, err := rec.RecordBatterySample(ctx, "udid-1", 80, "unplugged"); err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, http.MethodPost, "/api/v1/sync", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["status"] != "completed" {
		t.Errorf("expected completed, got %v", body["status"])
	}
	result := body["result"].(map[string]any)
	if result["processed"].(float64) != 1 || result["succeeded"].(float64) != 1 {
		t.Errorf("unexpected result %v", result)
	}
}

func TestTriggerSyncInProgress(t *testing.T) {
	ts := newTestServer(t, "")

	if !ts.engine.Gate().TryAcquire() {
		t.Fatal("could not acquire gate")
	}
	defer ts.engine.Gate().Release()

	w := ts.do(t, http.MethodPost, "/api/v1/sync", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "in_progress" {
		t.Errorf("expected in_progress, got %v", body["status"])
	}
}

func TestSyncStatus(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()

	rec := recorder.New(ts.store)
	for i := 0; i < 2; i++ {
		if _, err := rec.RecordLogEntry(ctx, "udid-1", "tick"); err != nil {
			t.Fatal(err)
		}
	}

	w := ts.do(t, http.MethodGet, "/api/v1/sync/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	stats := body["statistics"].(map[string]any)
	if stats["pending"].(float64) != 2 {
		t.Errorf("expected 2 pending, got %v", stats["pending"])
	}
	ops := body["pending_operations"].([]any)
	if len(ops) != 2 {
		t.Errorf("expected 2 pending operations, got %d", len(ops))
	}
}

func TestUnsynced(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()

	rec := recorder.New(ts.store)
	if _, err := rec.RecordBatterySample(ctx, "udid-1", 70, "unplugged"); err != nil {
		t.Fatal(err)
	}

	// Missing type parameter
	if w := ts.do(t, http.MethodGet, "/api/v1/sync/unsynced", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without type, got %d", w.Code)
	}

	// Unknown type
	if w := ts.do(t, http.MethodGet, "/api/v1/sync/unsynced?type=bogus", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown type, got %d", w.Code)
	}

	w := ts.do(t, http.MethodGet, "/api/v1/sync/unsynced?type=battery", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["count"].(float64) != 1 {
		t.Errorf("expected 1 record, got %v", body["count"])
	}
}

func TestMarkSynced(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()

	rec := recorder.New(ts.store)
	id, err := rec.RecordBatterySample(ctx, "udid-1", 70, "unplugged")
	if err != nil {
		t.Fatal(err)
	}

	// Malformed body
	if w := ts.do(t, http.MethodPost, "/api/v1/sync/mark-synced",
		strings.NewReader("{not json")); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}

	// Missing data type
	if w := ts.do(t, http.MethodPost, "/api/v1/sync/mark-synced",
		strings.NewReader(`{"ids":[1]}`)); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without data_type, got %d", w.Code)
	}

	w := ts.do(t, http.MethodPost, "/api/v1/sync/mark-synced",
		strings.NewReader(fmt.Sprintf(`{"data_type":"battery","ids":[%d]}`, id)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["updated"].(float64) != 1 {
		t.Errorf("expected 1 updated, got %v", body["updated"])
	}

	remaining, err := ts.store.ListUnsynced(ctx, types.DataTypeBattery)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected no unsynced records, got %d", len(remaining))
	}
}

func TestCleanup(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodPost, "/api/v1/sync/cleanup", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["removed"].(float64) != 0 {
		t.Errorf("expected 0 removed on empty queue, got %v", body["removed"])
	}

	if w := ts.do(t, http.MethodPost, "/api/v1/sync/cleanup",
		strings.NewReader(`{"days":0}`)); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero days, got %d", w.Code)
	}
}
