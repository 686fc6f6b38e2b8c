// Package api exposes the agent's HTTP surface: device readings,
// screenshot capture, syslog access and control over the sync queue.
package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/pibridge/pibridge/internal/device"
	"github.com/pibridge/pibridge/internal/outbox"
	"github.com/pibridge/pibridge/internal/recorder"
	"github.com/pibridge/pibridge/internal/store"
	"github.com/pibridge/pibridge/internal/syncer"
	"github.com/pibridge/pibridge/internal/upload"
)

// Handler implements the API handlers
type Handler struct {
	store          *store.SQLiteStore
	queue          *outbox.Queue
	collector      device.Collector
	recorder       *recorder.Recorder
	engine         *syncer.Engine
	uploader       upload.Uploader
	screenshotsDir string
	apiKey         string
	version        string
}

// NewHandler creates a new Handler wired to the agent's components.
func NewHandler(s *store.SQLiteStore, q *outbox.Queue, c device.Collector,
	rec *recorder.Recorder, e *syncer.Engine, u upload.Uploader,
	screenshotsDir, apiKey, version string) *Handler {
	return &Handler{
		store:          s,
		queue:          q,
		collector:      c,
		recorder:       rec,
		engine:         e,
		uploader:       u,
		screenshotsDir: screenshotsDir,
		apiKey:         apiKey,
		version:        version,
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": h.version,
		"queue":   stats,
	})
}

// ListDevices handles GET /api/v1/devices. Every connected device is
// recorded (and its upsert enqueued) as a side effect, so plugging a
// device in is enough to register it.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	udids, err := h.collector.ListDevices(r.Context())
	if err != nil {
		slog.Error("failed to list devices", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Device enumeration failed")
		return
	}

	devices := make([]device.Info, 0, len(udids))
	for _, udid := range udids {
		info, err := h.collector.DeviceInfo(r.Context(), udid)
		if err != nil {
			slog.Warn("failed to read device info", "udid", udid, "error", err)
			continue
		}
		if _, err := h.recorder.RecordDevice(r.Context(), *info); err != nil {
			slog.Error("failed to record device", "udid", udid, "error", err)
		}
		devices = append(devices, *info)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(devices),
		"devices": devices,
	})
}

// StoredDevices handles GET /api/v1/devices/stored and returns every
// device ever seen, connected or not.
func (h *Handler) StoredDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.store.ListDevices(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(devices),
		"devices": devices,
	})
}

// DeviceInfo handles GET /api/v1/devices/{udid}
func (h *Handler) DeviceInfo(w http.ResponseWriter, r *http.Request) {
	udid := chi.URLParam(r, "udid")
	info, err := h.collector.DeviceInfo(r.Context(), udid)
	if err != nil {
		WriteProblem(w, r, http.StatusNotFound, "Device not reachable")
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// DeviceName handles GET /api/v1/devices/{udid}/name
func (h *Handler) DeviceName(w http.ResponseWriter, r *http.Request) {
	udid := chi.URLParam(r, "udid")
	name, err := h.collector.DeviceName(r.Context(), udid)
	if err != nil {
		WriteProblem(w, r, http.StatusNotFound, "Device not reachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"name": name})
}

// DevicePairing handles GET /api/v1/devices/{udid}/pairing
func (h *Handler) DevicePairing(w http.ResponseWriter, r *http.Request) {
	udid := chi.URLParam(r, "udid")
	paired, err := h.collector.CheckPairing(r.Context(), udid)
	if err != nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Pairing check failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"paired": paired})
}

// Battery handles GET /api/v1/devices/{udid}/battery. The live reading
// is recorded and queued for sync before it is returned.
func (h *Handler) Battery(w http.ResponseWriter, r *http.Request) {
	udid := chi.URLParam(r, "udid")
	info, err := h.collector.BatteryInfo(r.Context(), udid)
	if err != nil {
		WriteProblem(w, r, http.StatusNotFound, "Device not reachable")
		return
	}

	state := batteryState(info)
	if _, err := h.recorder.RecordBatterySample(r.Context(), udid, info.Level, state); err != nil {
		slog.Error("failed to record battery sample", "udid", udid, "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"level":   info.Level,
		"state":   state,
		"details": info,
	})
}

// BatteryHistory handles GET /api/v1/devices/{udid}/battery/history
func (h *Handler) BatteryHistory(w http.ResponseWriter, r *http.Request) {
	udid := chi.URLParam(r, "udid")
	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid window: %s", v))
			return
		}
		window = d
	}

	samples, err := h.store.BatteryHistory(r.Context(), udid, window)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(samples),
		"samples": samples,
	})
}

// CaptureScreenshot handles POST /api/v1/devices/{udid}/screenshot:
// capture to disk, record and enqueue, then archive upload. The upload
// is best-effort; the local file stays authoritative.
func (h *Handler) CaptureScreenshot(w http.ResponseWriter, r *http.Request) {
	udid := chi.URLParam(r, "udid")
	filename := ulid.Make().String() + ".png"
	path := filepath.Join(h.screenshotsDir, filename)

	if err := h.collector.CaptureScreenshot(r.Context(), udid, path); err != nil {
		slog.Error("screenshot capture failed", "udid", udid, "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Screenshot capture failed")
		return
	}

	id, err := h.recorder.RecordScreenshot(r.Context(), udid, filename, path)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	if err := h.uploader.Upload(r.Context(), filename, path); err != nil {
		slog.Warn("screenshot archive upload failed", "filename", filename, "error", err)
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":       id,
		"filename": filename,
	})
}

// Screenshots handles GET /api/v1/screenshots
func (h *Handler) Screenshots(w http.ResponseWriter, r *http.Request) {
	udid := r.URL.Query().Get("udid")
	limit := parseLimit(r, 50)

	shots, err := h.store.Screenshots(r.Context(), udid, limit)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":       len(shots),
		"screenshots": shots,
	})
}

// ScreenshotFile handles GET /api/v1/screenshots/{id} and serves the
// PNG itself.
func (h *Handler) ScreenshotFile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid screenshot id")
		return
	}

	shot, err := h.store.GetScreenshot(r.Context(), id)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, shot.Filepath)
}

// Logs handles GET /api/v1/devices/{udid}/logs
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	udid := chi.URLParam(r, "udid")
	limit := parseLimit(r, 100)

	entries, err := h.store.LogEntries(r.Context(), udid, limit)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

// StreamLogs handles GET /api/v1/devices/{udid}/logs/stream as
// server-sent events. Each line is recorded (and queued for sync)
// before being pushed to the client. The stream ends when the client
// disconnects.
func (h *Handler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	udid := chi.URLParam(r, "udid")

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteProblem(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	stream, err := h.collector.Syslog(r.Context(), udid)
	if err != nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Syslog stream failed")
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}
		if _, err := h.recorder.RecordLogEntry(r.Context(), udid, line); err != nil {
			slog.Error("failed to record log entry", "udid", udid, "error", err)
		}
		fmt.Fprintf(w, "data: %s\n\n", line)
		flusher.Flush()
	}
}

// batteryState reduces the raw battery reading to the coarse state
// stored and synced with each sample.
func batteryState(info *device.BatteryInfo) string {
	switch {
	case info.IsCharging:
		return "charging"
	case info.ExternalConnected:
		return "full"
	default:
		return "unplugged"
	}
}

func parseLimit(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}
