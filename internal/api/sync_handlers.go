package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pibridge/pibridge/internal/syncer"
	"github.com/pibridge/pibridge/internal/types"
)

// defaultRetentionDays is used when a cleanup request does not specify
// its own window.
const defaultRetentionDays = 7

// TriggerSync handles POST /api/v1/sync. A drain already in flight is
// reported as a conflict; the request performs no work in that case.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Drain(r.Context())
	if err != nil {
		if errors.Is(err, syncer.ErrDrainInProgress) {
			respondJSON(w, http.StatusConflict, map[string]string{
				"status": "in_progress",
			})
			return
		}
		slog.Error("sync trigger failed", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status": "completed",
		"result": result,
	})
}

// SyncStatus handles GET /api/v1/sync/status: per-status counts, the
// last successful delivery time and a preview of the pending backlog.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		slog.Error("failed to read queue stats", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	pending, err := h.queue.ListPending(r.Context(), 10)
	if err != nil {
		slog.Error("failed to list pending operations", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"statistics":         stats,
		"pending_operations": pending,
	})
}

// Unsynced handles GET /api/v1/sync/unsynced?type=battery
func (h *Handler) Unsynced(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("type")
	if kind == "" {
		WriteProblem(w, r, http.StatusBadRequest, "Missing required parameter: type")
		return
	}

	records, err := h.store.ListUnsynced(r.Context(), types.DataType(kind))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"type":    kind,
		"count":   len(records),
		"records": records,
	})
}

type markSyncedRequest struct {
	DataType string  `json:"data_type"`
	IDs      []int64 `json:"ids"`
}

// MarkSynced handles POST /api/v1/sync/mark-synced: the backend's
// acknowledgement that it holds the listed records.
func (h *Handler) MarkSynced(w http.ResponseWriter, r *http.Request) {
	var req markSyncedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if req.DataType == "" {
		WriteProblem(w, r, http.StatusBadRequest, "Missing required field: data_type")
		return
	}

	updated, err := h.store.MarkSynced(r.Context(), types.DataType(req.DataType), req.IDs)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data_type": req.DataType,
		"updated":   updated,
	})
}

type cleanupRequest struct {
	Days int `json:"days"`
}

// Cleanup handles POST /api/v1/sync/cleanup: purge completed queue
// entries older than the window. Only completed entries are ever
// removed.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	req := cleanupRequest{Days: defaultRetentionDays}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
			return
		}
	}
	if req.Days < 1 {
		WriteProblem(w, r, http.StatusBadRequest, "days must be >= 1")
		return
	}

	removed, err := h.queue.PurgeCompletedOlderThan(r.Context(), req.Days)
	if err != nil {
		slog.Error("cleanup failed", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"removed": removed,
		"days":    req.Days,
	})
}
