package api

import (
	"net/http"

	"github.com/kjannette/stonks-backend/internal/money"
	"github.com/kjannette/stonks-backend/internal/portfolio"
)

const defaultHistoryLimit = 100

type portfolioResponse struct {
	*portfolio.Portfolio
	CashDisplay       string `json:"cashDisplay"`
	GrandTotalDisplay string `json:"grandTotalDisplay"`
}

// GET /v1/users/{id}/portfolio
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.Portfolio.Compute(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, portfolioResponse{
		Portfolio:         p,
		CashDisplay:       money.FormatCents(p.Cash),
		GrandTotalDisplay: money.FormatCents(p.GrandTotal),
	})
}

// GET /v1/users/{id}/history?limit=N
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.Portfolio.History(r.Context(), id, parseLimit(r, defaultHistoryLimit))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if entries == nil {
		entries = []portfolio.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
