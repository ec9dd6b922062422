package tunnel

import (
	"net/http"
	"strconv"

	"github.com/HerbHall/tunnelwatch/internal/httpapi"
	"github.com/HerbHall/tunnelwatch/pkg/plugin"
	"go.uber.org/zap"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/sessions", Handler: m.handleListSessions},
		{Method: http.MethodGet, Path: "/backend", Handler: m.handleBackend},
	}
}

// handleListSessions returns recent connector attempts, newest first.
func (m *Module) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if m.journal == nil {
		httpapi.Error(w, r, http.StatusServiceUnavailable, "tunnel journal not available")
		return
	}
	entries, err := m.journal.ListRecent(r.Context(), parseLimit(r, 50))
	if err != nil {
		m.logger.Warn("failed to list tunnel journal", zap.Error(err))
		httpapi.Error(w, r, http.StatusInternalServerError, "failed to list tunnel sessions")
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpapi.WriteJSON(w, http.StatusOK, entries)
}

type backendResponse struct {
	Backend string `json:"backend"`
	Last    *Entry `json:"last,omitempty"`
}

// handleBackend reports the configured backend and the last attempt.
func (m *Module) handleBackend(w http.ResponseWriter, _ *http.Request) {
	resp := backendResponse{Backend: m.cfg.Backend}
	if m.connector != nil {
		resp.Last = m.connector.Last()
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

func parseLimit(r *http.Request, defaultLimit int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultLimit
}
