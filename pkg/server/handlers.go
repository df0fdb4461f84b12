package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	"github.com/algoviz-dev/algoviz/pkg/middleware"
	"github.com/algoviz-dev/algoviz/pkg/protocol"
	"github.com/algoviz-dev/algoviz/pkg/session"
	"github.com/algoviz-dev/algoviz/pkg/state"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("response encode failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateSession mints a session and returns its code and initial
// state. The caller joins over the websocket afterwards.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	code, st, err := s.hub.CreateSession()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	if stats, err := s.hub.HubStats(); err == nil {
		middleware.SetActiveSessions(stats.ActiveSessions)
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"sessionCode": code,
		"state":       st,
	})
}

// handleGetSession returns the current state of a session.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	if !protocol.ValidSessionCode(code) {
		s.writeError(w, http.StatusBadRequest, protocol.MsgInvalidSessionCode)
		return
	}

	st, err := s.hub.SessionState(code)
	if errors.Is(err, session.ErrSessionNotFound) {
		s.writeError(w, http.StatusNotFound, protocol.MsgSessionNotFound)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessionCode": code,
		"state":       st,
	})
}

// handleGetPresence returns the cursor snapshot of a session.
func (s *Server) handleGetPresence(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	if !protocol.ValidSessionCode(code) {
		s.writeError(w, http.StatusBadRequest, protocol.MsgInvalidSessionCode)
		return
	}

	cursors, err := s.hub.Presence(code)
	if errors.Is(err, session.ErrSessionNotFound) {
		s.writeError(w, http.StatusNotFound, protocol.MsgSessionNotFound)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessionCode": code,
		"cursors":     cursors,
	})
}

// handleListAlgorithms returns the recognized algorithm identifiers.
func (s *Server) handleListAlgorithms(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"algorithms": state.Algorithms(),
	})
}

// handleStats returns hub counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.hub.HubStats()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	middleware.SetActiveSessions(stats.ActiveSessions)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"activeSessions":    stats.ActiveSessions,
		"activeConnections": stats.ActiveConnections,
		"totalCreated":      stats.TotalCreated,
		"totalEvicted":      stats.TotalEvicted,
		"peakSessions":      stats.PeakSessions,
		"peakConnections":   stats.PeakConnections,
		"eventsHandled":     stats.EventsHandled,
	})
}
