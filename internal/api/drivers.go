package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/indihub/internal/broker"
	"github.com/nerrad567/indihub/internal/control"
)

// StartDriverRequest is the body of POST /api/v1/drivers. Driver is a
// local executable name or a [device]@host[:port] remote spec.
type StartDriverRequest struct {
	Driver   string `json:"driver"`
	Name     string `json:"name,omitempty"`
	Config   string `json:"config,omitempty"`
	Skeleton string `json:"skeleton,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// handleListClients returns the connected clients.
func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clients": snap.Clients,
		"count":   len(snap.Clients),
	})
}

// handleListDrivers returns every driver slot that is not inactive, with
// the broker's routing counters.
func (s *Server) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"drivers": snap.Drivers,
		"count":   len(snap.Drivers),
		"stats":   snap.Stats,
	})
}

// handleGetDriver returns the slots with the given name.
func (s *Server) handleGetDriver(w http.ResponseWriter, r *http.Request) {
	name, ok := driverParam(w, r)
	if !ok {
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	matches := []broker.DriverInfo{}
	for _, d := range snap.Drivers {
		if d.Name == name {
			matches = append(matches, d)
		}
	}
	if len(matches) == 0 {
		writeError(w, http.StatusNotFound, "driver not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drivers": matches})
}

// handleStartDriver runs a start command on the broker.
func (s *Server) handleStartDriver(w http.ResponseWriter, r *http.Request) {
	var req StartDriverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Driver == "" {
		writeError(w, http.StatusBadRequest, "driver is required")
		return
	}

	cmd := control.Command{
		Verb:     control.VerbStart,
		Driver:   req.Driver,
		Name:     req.Name,
		Config:   req.Config,
		Skeleton: req.Skeleton,
		Prefix:   req.Prefix,
	}
	if err := cmd.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.broker.Execute(r.Context(), cmd); err != nil {
		s.writeCommandError(w, cmd, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "started",
		"command": cmd.String(),
	})
}

// handleStopDriver runs a stop command on the broker. The optional device
// query parameter selects the instance serving that device.
func (s *Server) handleStopDriver(w http.ResponseWriter, r *http.Request) {
	name, ok := driverParam(w, r)
	if !ok {
		return
	}

	cmd := control.Command{
		Verb:   control.VerbStop,
		Driver: name,
		Name:   r.URL.Query().Get("device"),
	}
	if err := cmd.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.broker.Execute(r.Context(), cmd); err != nil {
		s.writeCommandError(w, cmd, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "stopped",
		"command": cmd.String(),
	})
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (broker.Snapshot, bool) {
	snap, err := s.broker.Snapshot(r.Context())
	if err == nil {
		return snap, true
	}
	status := brokerStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("broker snapshot failed", "error", err)
		writeError(w, status, "broker snapshot failed")
	} else {
		writeError(w, status, "broker stopped")
	}
	return broker.Snapshot{}, false
}

func (s *Server) writeCommandError(w http.ResponseWriter, cmd control.Command, err error) {
	status := brokerStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Warn("driver command failed", "command", cmd.String(), "error", err)
	}
	writeError(w, status, err.Error())
}

// driverParam returns the unescaped {name} path segment.
func driverParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		writeError(w, http.StatusBadRequest, "invalid driver name")
		return "", false
	}
	return name, true
}
