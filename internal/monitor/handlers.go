package monitor

import (
	"context"
	"errors"
	"net/http"

	"github.com/HerbHall/tunnelwatch/internal/httpapi"
	"github.com/HerbHall/tunnelwatch/pkg/plugin"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/status", Handler: m.handleStatus},
		{Method: http.MethodGet, Path: "/stats", Handler: m.handleStats},
		{Method: http.MethodGet, Path: "/endpoints", Handler: m.handleListEndpoints},
		{Method: http.MethodGet, Path: "/endpoints/{id}", Handler: m.handleGetEndpoint},
		{Method: http.MethodPost, Path: "/endpoints/{id}/expand", Handler: m.handleToggleExpanded},
		{Method: http.MethodPost, Path: "/endpoints/{id}/raw", Handler: m.handleToggleRawData},
		{Method: http.MethodPost, Path: "/connect", Handler: m.handleConnect},
		{Method: http.MethodPost, Path: "/disconnect", Handler: m.handleDisconnect},
		{Method: http.MethodPost, Path: "/toggle", Handler: m.handleToggle},
		{Method: http.MethodPost, Path: "/refresh", Handler: m.handleRefresh},
	}
}

// StatusResponse is the full dashboard view.
type StatusResponse struct {
	Session   Session          `json:"session"`
	Endpoints []EndpointStatus `json:"endpoints"`
	Stats     Stats            `json:"stats"`
}

// Snapshot returns the current dashboard view.
func (m *Module) Snapshot() StatusResponse {
	return StatusResponse{
		Session:   m.controller.Status(),
		Endpoints: m.controller.Records(),
		Stats:     m.controller.Stats(),
	}
}

func (m *Module) handleStatus(w http.ResponseWriter, _ *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, m.Snapshot())
}

func (m *Module) handleStats(w http.ResponseWriter, _ *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, m.controller.Stats())
}

func (m *Module) handleListEndpoints(w http.ResponseWriter, _ *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, m.registry.List())
}

func (m *Module) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	rec, err := m.controller.Record(r.PathValue("id"))
	if err != nil {
		m.writeLookupError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, rec)
}

func (m *Module) handleToggleExpanded(w http.ResponseWriter, r *http.Request) {
	rec, err := m.controller.ToggleExpanded(r.PathValue("id"))
	if err != nil {
		m.writeLookupError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, rec)
}

// handleToggleRawData is 409 for unsecured endpoints.
func (m *Module) handleToggleRawData(w http.ResponseWriter, r *http.Request) {
	rec, err := m.controller.ToggleRawData(r.PathValue("id"))
	if err != nil {
		m.writeLookupError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, rec)
}

// handleConnect starts a session in the background. 202 when a connect was
// started, 200 when one was already running.
func (m *Module) handleConnect(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	if m.controller.StartAsync(m.runCtx()) {
		status = http.StatusAccepted
	}
	httpapi.WriteJSON(w, status, m.controller.Status())
}

// handleDisconnect blocks until the tunnel is down and the state is reset.
func (m *Module) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	m.controller.Stop(context.WithoutCancel(r.Context()))
	httpapi.WriteJSON(w, http.StatusOK, m.controller.Status())
}

func (m *Module) handleToggle(w http.ResponseWriter, _ *http.Request) {
	m.controller.Toggle(m.runCtx())
	httpapi.WriteJSON(w, http.StatusAccepted, m.controller.Status())
}

func (m *Module) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	m.controller.RefreshAll(m.runCtx())
	httpapi.WriteJSON(w, http.StatusAccepted, map[string]any{
		"status":    "refreshing",
		"endpoints": m.registry.Len(),
	})
}

func (m *Module) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnknownEndpoint):
		httpapi.Error(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotSecured):
		httpapi.Error(w, r, http.StatusConflict, err.Error())
	default:
		httpapi.Error(w, r, http.StatusInternalServerError, "failed to read endpoint status")
	}
}
