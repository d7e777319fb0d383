package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health and metrics (no auth required for monitoring)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.apiKeyMiddleware)

			// Spool endpoints
			r.Route("/spools", func(r chi.Router) {
				r.Get("/", s.handleListSpools)
				r.Post("/", s.handleCreateSpool)
				r.Get("/by-tag/{tagID}", s.handleGetSpoolByTag)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetSpool)
					r.Patch("/", s.handleUpdateSpool)
					r.Delete("/", s.handleDeleteSpool)
					r.Get("/usage", s.handleSpoolUsage)
					r.Post("/usage", s.handleRecordSpoolUsage)
				})
			})

			// Printer endpoints
			r.Route("/printers", func(r chi.Router) {
				r.Get("/", s.handleListPrinters)
				r.Post("/", s.handleCreatePrinter)
				r.Get("/status", s.handlePrinterStatuses)

				r.Route("/{serial}", func(r chi.Router) {
					r.Get("/", s.handleGetPrinter)
					r.Patch("/", s.handleUpdatePrinter)
					r.Delete("/", s.handleDeletePrinter)
					r.Post("/connect", s.handleConnectPrinter)
					r.Post("/disconnect", s.handleDisconnectPrinter)
					r.Get("/state", s.handleGetPrinterState)
					r.Get("/calibrations", s.handleGetCalibrations)

					// Slot operations
					r.Route("/slots/{amsID}/{trayID}", func(r chi.Router) {
						r.Post("/filament", s.handleSetFilament)
						r.Post("/calibration", s.handleSetCalibration)
						r.Post("/flow", s.handleSetFlowCoefficient)
						r.Post("/reset", s.handleResetSlot)
					})

					// Staged assignments
					r.Route("/assignments", func(r chi.Router) {
						r.Get("/", s.handleListAssignments)
						r.Post("/", s.handleStageAssignment)
						r.Delete("/{amsID}/{trayID}", s.handleCancelAssignment)
					})
				})
			})

			// API key management
			r.Route("/keys", func(r chi.Router) {
				r.Get("/", s.handleListKeys)
				r.Post("/", s.handleCreateKey)
				r.Delete("/{id}", s.handleDeleteKey)
			})

			// LAN discovery
			r.Get("/discovery", s.handleDiscovery)

			// WebSocket for live telemetry
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// Metrics is the /metrics response body.
type Metrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Fleet         FleetMetrics   `json:"fleet"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// FleetMetrics contains printer fleet statistics.
type FleetMetrics struct {
	Managed   int `json:"managed"`
	Connected int `json:"connected"`
}

const bytesPerMB = 1024 * 1024

// handleMetrics returns runtime and fleet statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	connected := 0
	for _, st := range s.fleet.ConnectionStatuses() {
		if st.Connected {
			connected++
		}
	}

	writeJSON(w, http.StatusOK, Metrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / bytesPerMB,
			NumGC:         mem.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Fleet: FleetMetrics{
			Managed:   s.fleet.Count(),
			Connected: connected,
		},
	})
}
