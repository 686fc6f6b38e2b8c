package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required)
		r.Get("/health", h.Health)

		// Protected routes (auth required when a key is configured)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))

			r.Get("/devices", h.ListDevices)
			r.Get("/devices/stored", h.StoredDevices)
			r.Get("/devices/{udid}", h.DeviceInfo)
			r.Get("/devices/{udid}/name", h.DeviceName)
			r.Get("/devices/{udid}/pairing", h.DevicePairing)
			r.Get("/devices/{udid}/battery", h.Battery)
			r.Get("/devices/{udid}/battery/history", h.BatteryHistory)
			r.Post("/devices/{udid}/screenshot", h.CaptureScreenshot)
			r.Get("/devices/{udid}/logs", h.Logs)
			r.Get("/devices/{udid}/logs/stream", h.StreamLogs)

			r.Get("/screenshots", h.Screenshots)
			r.Get("/screenshots/{id}", h.ScreenshotFile)

			r.Post("/sync", h.TriggerSync)
			r.Get("/sync/status", h.SyncStatus)
			r.Get("/sync/unsynced", h.Unsynced)
			r.Post("/sync/mark-synced", h.MarkSynced)
			r.Post("/sync/cleanup", h.Cleanup)
		})
	})

	return r
}
