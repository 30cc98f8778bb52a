package api

import (
	"net/http"

	"github.com/kjannette/stonks-backend/internal/money"
	"github.com/kjannette/stonks-backend/internal/quote"
)

type quoteResponse struct {
	quote.Quote
	Display string `json:"display"`
}

// GET /v1/quotes/{symbol}
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.Quotes.Get(r.Context(), r.PathValue("symbol"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{Quote: q, Display: money.FormatCents(q.PriceCents)})
}
