package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kjannette/stonks-backend/internal/ledger"
	"github.com/kjannette/stonks-backend/internal/money"
)

type tradeRequest struct {
	Symbol string          `json:"symbol"`
	Shares json.RawMessage `json:"shares"`
}

type receiptResponse struct {
	*ledger.Receipt
	PriceDisplay     string `json:"priceDisplay"`
	TotalDisplay     string `json:"totalDisplay"`
	CashAfterDisplay string `json:"cashAfterDisplay"`
}

type tradeFunc func(ctx context.Context, userID int64, symbol string, shares int64) (*ledger.Receipt, error)

// sharesText accepts either a JSON number or a JSON string and returns its
// text for ParseShares.
func sharesText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.TrimSpace(string(raw))
}

// POST /v1/users/{id}/buy
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, s.Ledger.Buy)
}

// POST /v1/users/{id}/sell
func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, s.Ledger.Sell)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request, trade tradeFunc) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req tradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	shares, err := ledger.ParseShares(sharesText(req.Shares))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	receipt, err := trade(r.Context(), id, req.Symbol, shares)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, receiptResponse{
		Receipt:          receipt,
		PriceDisplay:     money.FormatCents(receipt.PriceCents),
		TotalDisplay:     money.FormatCents(receipt.TotalCents),
		CashAfterDisplay: money.FormatCents(receipt.CashAfter),
	})
}
