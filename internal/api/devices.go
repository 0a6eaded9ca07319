package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/nerrad567/gray-logic-zigbee/internal/device"
)

// maxNameLen bounds the {name} path parameter.
const maxNameLen = 256

// handleListDevices returns every known device in discovery order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	names := s.bridge.DeviceNames()
	devices := make([]device.Description, 0, len(names))
	for _, name := range names {
		d, err := s.bridge.GetDevice(name)
		if err != nil {
			// Replaced or removed between the two calls.
			continue
		}
		devices = append(devices, d.Describe())
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns identity and capability metadata for one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d.Describe())
}

// handleGetDeviceState returns the locally known state of a device.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device": d.Name(),
		"state":  d.ReadState(),
	})
}

// handleSetDeviceState applies a JSON object of capability writes and
// publishes them as one patch.
//
// The body is applied all or nothing: one rejected key rejects the request
// and nothing is left pending.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			writeBadRequest(w, "request body is required")
			return
		}
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(body) == 0 {
		writeBadRequest(w, "at least one capability is required")
		return
	}

	if err := d.WriteAll(body); err != nil {
		s.logger.Debug("write rejected", "device", d.Name(), "capabilities", lo.Keys(body), "error", err)
		writeFailure(w, err)
		return
	}

	if err := s.bridge.Publish(d.Name()); err != nil {
		s.logger.Warn("publish failed", "device", d.Name(), "error", err)
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device": d.Name(),
		"state":  d.ReadState(),
	})
}

// handleGetDeviceHistory returns recorded state for a device, newest first.
//
// Query parameters:
//   - limit: maximum entries (default 50, max 200)
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeFailure(w, errHistoryDisabled)
		return
	}

	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.History(r.Context(), d.Name(), limit)
	if err != nil {
		s.logger.Error("reading state history failed", "device", d.Name(), "error", err)
		writeInternalError(w, "failed to read state history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device":  d.Name(),
		"history": entries,
		"count":   len(entries),
	})
}

// lookupDevice resolves the {name} path parameter, writing the error
// response itself when the device cannot be returned.
func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	name := chi.URLParam(r, "name")
	if name == "" || len(name) > maxNameLen {
		writeBadRequest(w, "invalid device name")
		return nil, false
	}

	d, err := s.bridge.GetDevice(name)
	if err != nil {
		writeFailure(w, err)
		return nil, false
	}
	return d, true
}

// parseHistoryLimit parses the limit query parameter. An empty value
// selects the store default; the store clamps large values.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return limit, nil
}
