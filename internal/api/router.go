package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Get("/api/v1/health", s.handleHealth)

	r.Get("/api/v1/devices", s.handleListDevices)
	r.Get("/api/v1/devices/{name}", s.handleGetDevice)
	r.Get("/api/v1/devices/{name}/state", s.handleGetDeviceState)
	r.Put("/api/v1/devices/{name}/state", s.handleSetDeviceState)
	r.Get("/api/v1/devices/{name}/history", s.handleGetDeviceHistory)

	r.Get(s.wsCfg.Path, s.handleWebSocket)

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"mqtt_connected": s.bridge.IsConnected(),
		"discovered":     s.bridge.IsDiscovered(),
		"devices":        len(s.bridge.DeviceNames()),
		"ws_clients":     s.hub.ClientCount(),
	})
}
