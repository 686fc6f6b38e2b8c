package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pibridge/pibridge/internal/device"
	"github.com/pibridge/pibridge/internal/outbox"
	"github.com/pibridge/pibridge/internal/recorder"
	"github.com/pibridge/pibridge/internal/store"
	"github.com/pibridge/pibridge/internal/syncer"
	"github.com/pibridge/pibridge/internal/upload"
)

// fakeCollector is an in-memory Collector for handler tests.
type fakeCollector struct {
	udids   []string
	info    device.Info
	battery device.BatteryInfo
	paired  bool
	err     error
}

func (c *fakeCollector) ListDevices(ctx context.Context) ([]string, error) {
	return c.udids, c.err
}

func (c *fakeCollector) DeviceInfo(ctx context.Context, udid string) (*device.Info, error) {
	if c.err != nil {
		return nil, c.err
	}
	info := c.info
	info.UDID = udid
	return &info, nil
}

func (c *fakeCollector) DeviceName(ctx context.Context, udid string) (string, error) {
	return c.info.Name, c.err
}

func (c *fakeCollector) BatteryInfo(ctx context.Context, udid string) (*device.BatteryInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	b := c.battery
	return &b, nil
}

func (c *fakeCollector) CheckPairing(ctx context.Context, udid string) (bool, error) {
	return c.paired, nil
}

func (c *fakeCollector) CaptureScreenshot(ctx context.Context, udid, outputPath string) error {
	if c.err != nil {
		return c.err
	}
	return os.WriteFile(outputPath, []byte("png"), 0o644)
}

func (c *fakeCollector) Syslog(ctx context.Context, udid string) (io.ReadCloser, error) {
	if c.err != nil {
		return nil, c.err
	}
	return io.NopCloser(strings.NewReader("line one\nline two\n")), nil
}

type okBackend struct{}

func (okBackend) Deliver(ctx context.Context, op outbox.Operation) error { return nil }

type testServer struct {
	handler   http.Handler
	store     *store.SQLiteStore
	queue     *outbox.Queue
	collector *fakeCollector
	engine    *syncer.Engine
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	dir := t.TempDir()
	db, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	queue := outbox.NewQueue(db.DB())
	collector := &fakeCollector{
		udids: []string{"udid-1"},
		info: device.Info{
			Name:       "Test iPhone",
			Model:      "iPhone14,2",
			IOSVersion: "17.1",
		},
		battery: device.BatteryInfo{Level: 82, IsCharging: true},
		paired:  true,
	}
	engine := syncer.NewEngine(queue, okBackend{})
	h := NewHandler(db, queue, collector, recorder.New(db), engine,
		&upload.NoopUploader{}, dir, apiKey, "test")

	return &testServer{
		handler:   NewRouter(h),
		store:     db,
		queue:     queue,
		collector: collector,
		engine:    engine,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	return m
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, "sekrit")

	// Health stays public
	if w := ts.do(t, http.MethodGet, "/api/v1/health", nil); w.Code != http.StatusOK {
		t.Errorf("health must be public, got %d", w.Code)
	}

	w := ts.do(t, http.MethodGet, "/api/v1/devices", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected problem+json, got %q", ct)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d", rec.Code)
	}
}

func TestListDevicesRecordsThem(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodGet, "/api/v1/devices", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["count"].(float64) != 1 {
		t.Errorf("expected 1 device, got %v", body["count"])
	}

	// Listing records the device and enqueues its upsert
	d, err := ts.store.GetDevice(context.Background(), "udid-1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "Test iPhone" {
		t.Errorf("unexpected stored name %q", d.Name)
	}
	pending, err := ts.queue.ListPending(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 queued operation, got %d", len(pending))
	}
}

func TestBattery(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodGet, "/api/v1/devices/udid-1/battery", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["level"].(float64) != 82 {
		t.Errorf("expected level 82, got %v", body["level"])
	}
	if body["state"] != "charging" {
		t.Errorf("expected charging, got %v", body["state"])
	}

	// The reading was recorded and queued
	pending, err := ts.queue.ListPending(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 queued operation, got %d", len(pending))
	}
}

func TestBatteryDeviceUnreachable(t *testing.T) {
	ts := newTestServer(t, "")
	ts.collector.err = errors.New("no device")

	w := ts.do(t, http.MethodGet, "/api/v1/devices/udid-1/battery", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestBatteryHistoryBadWindow(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodGet, "/api/v1/devices/udid-1/battery/history?window=tomorrow", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCaptureScreenshot(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodPost, "/api/v1/devices/udid-1/screenshot", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["filename"] == "" {
		t.Error("expected filename in response")
	}

	shots, err := ts.store.Screenshots(context.Background(), "udid-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(shots) != 1 {
		t.Fatalf("expected 1 stored screenshot, got %d", len(shots))
	}
	if _, err := os.Stat(shots[0].Filepath); err != nil {
		t.Errorf("expected screenshot file on disk: %v", err)
	}
}

func TestScreenshotFileErrors(t *testing.T) {
	ts := newTestServer(t, "")

	if w := ts.do(t, http.MethodGet, "/api/v1/screenshots/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/v1/screenshots/999", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing id, got %d", w.Code)
	}
}

func TestLogs(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()

	rec := recorder.New(ts.store)
	for i := 0; i < 3; i++ {
		if _, err := rec.RecordLogEntry(ctx, "udid-1", "kernel: tick"); err != nil {
			t.Fatal(err)
		}
	}

	w := ts.do(t, http.MethodGet, "/api/v1/devices/udid-1/logs?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["count"].(float64) != 2 {
		t.Errorf("expected 2 entries, got %v", body["count"])
	}
}

func TestDevicePairing(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodGet, "/api/v1/devices/udid-1/pairing", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["paired"] != true {
		t.Errorf("expected paired, got %v", body["paired"])
	}
}
