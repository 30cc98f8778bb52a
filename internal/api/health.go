package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	Store    string   `json:"store"`
	Database string   `json:"database"`
	Quotes   []string `json:"quotes"`
	// StubOnly means no provider is configured and every price is a stub.
	StubOnly bool `json:"stubOnly"`
}

// GET /health reports "degraded" when the store does not answer a ping.
// Trading is impossible then, but the process is still up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, dbStatus := "ok", "connected"
	if err := s.Store.Ping(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("health: store ping failed")
		status, dbStatus = "degraded", "disconnected"
	}

	providers := s.Providers
	if providers == nil {
		providers = []string{}
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services: healthServices{
			Store:    s.Store.Kind(),
			Database: dbStatus,
			Quotes:   providers,
			StubOnly: len(providers) == 0,
		},
	})
}
