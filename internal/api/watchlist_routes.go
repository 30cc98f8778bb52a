package api

import (
	"net/http"

	"github.com/kjannette/stonks-backend/internal/watchlist"
)

type watchRequest struct {
	Symbol string `json:"symbol"`
}

// GET /v1/users/{id}/watchlist
func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.Watchlist.Market(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if rows == nil {
		rows = []watchlist.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// POST /v1/users/{id}/watchlist
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req watchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Watchlist.Watch(r.Context(), id, req.Symbol); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	syms, err := s.Watchlist.Symbols(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string][]string{"symbols": syms})
}

// DELETE /v1/users/{id}/watchlist/{symbol}
func (s *Server) handleUnwatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Watchlist.Unwatch(r.Context(), id, r.PathValue("symbol")); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/users/{id}/quotes
func (s *Server) handleWatchlistQuotes(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snaps, err := s.Watchlist.Quotes(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}
