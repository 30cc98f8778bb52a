package api

import (
	"net/http"
	"time"
)

// streamUser resolves the path user and lifts the server write timeout,
// which would otherwise cut long-lived streams.
func (s *Server) streamUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if _, err := s.Store.GetUser(r.Context(), id); err != nil {
		s.writeFailure(w, r, err)
		return 0, false
	}
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.log.Debug().Err(err).Msg("could not clear write deadline")
	}
	return id, true
}

// GET /v1/users/{id}/stream
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if id, ok := s.streamUser(w, r); ok {
		s.Stream.ServeSSE(w, r, id)
	}
}

// GET /v1/users/{id}/ws
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if id, ok := s.streamUser(w, r); ok {
		s.Stream.ServeWS(w, r, id)
	}
}
