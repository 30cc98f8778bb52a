// Package portfolio values a user's holdings at current quotes.
package portfolio

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kjannette/stonks-backend/internal/money"
	"github.com/kjannette/stonks-backend/internal/quote"
	"github.com/kjannette/stonks-backend/internal/repository"
	"github.com/kjannette/stonks-backend/internal/sector"
)

type QuoteSource interface {
	Get(ctx context.Context, symbol string) (quote.Quote, error)
}

type Position struct {
	Symbol        string           `json:"symbol"`
	Shares        int64            `json:"shares"`
	PriceCents    int64            `json:"price"`
	ValueCents    int64            `json:"value"`
	ChangePercent decimal.Decimal  `json:"changePercent"`
	Provenance    quote.Provenance `json:"provenance"`
	Sector        string           `json:"sector"`
}

type Portfolio struct {
	UserID     int64      `json:"userId"`
	Cash       int64      `json:"cash"`
	Positions  []Position `json:"positions"`
	GrandTotal int64      `json:"grandTotal"`
	// Excluded lists held symbols left out because no quote was available.
	Excluded []string `json:"excluded,omitempty"`
}

type HistoryEntry struct {
	Symbol     string    `json:"symbol"`
	Shares     int64     `json:"shares"`
	PriceCents int64     `json:"price"`
	Side       string    `json:"side"`
	Timestamp  time.Time `json:"timestamp"`
	Sector     string    `json:"sector"`
}

type Aggregator struct {
	store   repository.LedgerStore
	quotes  QuoteSource
	sectors *sector.Table
	log     zerolog.Logger
}

func NewAggregator(store repository.LedgerStore, quotes QuoteSource, sectors *sector.Table, log zerolog.Logger) *Aggregator {
	if sectors == nil {
		sectors = sector.Default()
	}
	return &Aggregator{
		store:   store,
		quotes:  quotes,
		sectors: sectors,
		log:     log.With().Str("component", "portfolio").Logger(),
	}
}

// Compute returns cash, positive positions sorted by symbol, and the grand
// total, all from one store snapshot. A position whose quote lookup fails,
// or whose value would overflow, is dropped from both the positions and the
// total.
func (a *Aggregator) Compute(ctx context.Context, userID int64) (*Portfolio, error) {
	cash, holdings, err := a.store.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{UserID: userID, Cash: cash, Positions: []Position{}, GrandTotal: cash}
	for _, h := range holdings {
		q, err := a.quotes.Get(ctx, h.Symbol)
		if err != nil {
			a.log.Warn().Err(err).Int64("user", userID).Str("symbol", h.Symbol).Msg("position excluded: no quote")
			p.Excluded = append(p.Excluded, h.Symbol)
			continue
		}
		value, ok := money.MulCents(q.PriceCents, h.Shares)
		total := p.GrandTotal
		if ok {
			total, ok = addCents(total, value)
		}
		if !ok {
			a.log.Warn().Int64("user", userID).Str("symbol", h.Symbol).Int64("shares", h.Shares).Msg("position excluded: value overflows")
			p.Excluded = append(p.Excluded, h.Symbol)
			continue
		}
		p.Positions = append(p.Positions, Position{
			Symbol:        h.Symbol,
			Shares:        h.Shares,
			PriceCents:    q.PriceCents,
			ValueCents:    value,
			ChangePercent: q.ChangePercent,
			Provenance:    q.Provenance,
			Sector:        a.sectors.Lookup(h.Symbol),
		})
		p.GrandTotal = total
	}
	return p, nil
}

// History returns the user's transactions newest first, each annotated with
// its sector. limit <= 0 means all.
func (a *Aggregator) History(ctx context.Context, userID int64, limit int) ([]HistoryEntry, error) {
	if _, err := a.store.Cash(ctx, userID); err != nil {
		return nil, err
	}
	txns, err := a.store.Transactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("transactions: %w", err)
	}
	out := make([]HistoryEntry, 0, len(txns))
	for _, t := range txns {
		out = append(out, HistoryEntry{
			Symbol:     t.Symbol,
			Shares:     t.Shares,
			PriceCents: t.PriceCents,
			Side:       t.Side(),
			Timestamp:  t.Timestamp,
			Sector:     a.sectors.Lookup(t.Symbol),
		})
	}
	return out, nil
}

func addCents(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}
