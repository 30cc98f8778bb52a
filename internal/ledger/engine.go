// Package ledger applies buy and sell intents to a user's cash balance and
// transaction log.
//
// A request moves through Validating, Pricing and Applying and ends either
// Committed or Rejected. Quotes are resolved before the per-user unit is
// opened; the affordability and ownership checks run inside it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kjannette/stonks-backend/internal/events"
	"github.com/kjannette/stonks-backend/internal/metrics"
	"github.com/kjannette/stonks-backend/internal/models"
	"github.com/kjannette/stonks-backend/internal/money"
	"github.com/kjannette/stonks-backend/internal/notifications"
	"github.com/kjannette/stonks-backend/internal/quote"
	"github.com/kjannette/stonks-backend/internal/repository"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"

	sideEffectTimeout = 30 * time.Second
)

// QuoteSource is satisfied by *quote.Cache.
type QuoteSource interface {
	Get(ctx context.Context, symbol string) (quote.Quote, error)
}

type Notifier interface {
	NotifyTrade(ctx context.Context, t notifications.Trade)
}

type Receipt struct {
	TradeID    uuid.UUID        `json:"tradeId"`
	UserID     int64            `json:"userId"`
	Side       string           `json:"side"`
	Symbol     string           `json:"symbol"`
	Shares     int64            `json:"shares"`
	PriceCents int64            `json:"price"`
	TotalCents int64            `json:"total"`
	CashAfter  int64            `json:"cashAfter"`
	Provenance quote.Provenance `json:"provenance"`
	ExecutedAt time.Time        `json:"executedAt"`
}

type Engine struct {
	store     repository.LedgerStore
	quotes    QuoteSource
	publisher events.Publisher
	notifier  Notifier
	log       zerolog.Logger

	wg sync.WaitGroup
}

func NewEngine(store repository.LedgerStore, quotes QuoteSource, log zerolog.Logger) *Engine {
	return &Engine{
		store:     store,
		quotes:    quotes,
		publisher: events.NopPublisher{},
		log:       log.With().Str("component", "ledger").Logger(),
	}
}

func (e *Engine) WithPublisher(p events.Publisher) *Engine {
	if p != nil {
		e.publisher = p
	}
	return e
}

func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// Wait blocks until in-flight side effects of committed trades finish.
func (e *Engine) Wait() { e.wg.Wait() }

// ParseShares converts textual share input to a positive count.
func ParseShares(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 1 {
		return 0, reject(InvalidQuantity, StageValidating, "shares must be a positive integer")
	}
	return n, nil
}

func (e *Engine) Buy(ctx context.Context, userID int64, symbol string, shares int64) (*Receipt, error) {
	r, err := e.buy(ctx, userID, symbol, shares)
	return e.finish(ctx, SideBuy, r, err)
}

func (e *Engine) Sell(ctx context.Context, userID int64, symbol string, shares int64) (*Receipt, error) {
	r, err := e.sell(ctx, userID, symbol, shares)
	return e.finish(ctx, SideSell, r, err)
}

func (e *Engine) buy(ctx context.Context, userID int64, symbol string, shares int64) (*Receipt, error) {
	if shares < 1 {
		return nil, reject(InvalidQuantity, StageValidating, "shares must be a positive integer")
	}

	q, err := e.price(ctx, symbol)
	if err != nil {
		return nil, err
	}
	total, ok := money.MulCents(q.PriceCents, shares)
	if !ok {
		return nil, reject(InsufficientFunds, StagePricing, "cannot afford %d shares of %s", shares, q.Symbol)
	}

	var receipt *Receipt
	err = e.store.WithUser(ctx, userID, func(tx repository.UserTx) error {
		cash, err := tx.Cash(ctx)
		if err != nil {
			return err
		}
		if total > cash {
			return reject(InsufficientFunds, StageApplying, "cannot afford %d shares of %s", shares, q.Symbol)
		}
		t := &models.Transaction{Symbol: q.Symbol, Shares: shares, PriceCents: q.PriceCents}
		if err := tx.SetCash(ctx, cash-total); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, t); err != nil {
			return err
		}
		receipt = newReceipt(t, SideBuy, total, cash-total, q.Provenance)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (e *Engine) sell(ctx context.Context, userID int64, symbol string, shares int64) (*Receipt, error) {
	if shares < 1 {
		return nil, reject(InvalidQuantity, StageValidating, "shares must be a positive integer")
	}
	sym, err := quote.NormalizeSymbol(symbol)
	if err != nil {
		return nil, reject(UnknownSymbol, StageValidating, "invalid symbol %q", symbol)
	}

	// fast path so a plain oversell is refused before any quote lookup
	owned, err := e.store.SumShares(ctx, userID, sym)
	if err != nil {
		return nil, fmt.Errorf("sum shares: %w", err)
	}
	if shares > owned {
		if _, err := e.store.Cash(ctx, userID); err != nil {
			return nil, err
		}
		return nil, reject(InsufficientShares, StageValidating, "too many shares: own %d %s", owned, sym)
	}

	q, err := e.price(ctx, sym)
	if err != nil {
		return nil, err
	}
	total, ok := money.MulCents(q.PriceCents, shares)
	if !ok {
		return nil, fmt.Errorf("sale proceeds overflow for %d %s", shares, sym)
	}

	var receipt *Receipt
	err = e.store.WithUser(ctx, userID, func(tx repository.UserTx) error {
		owned, err := tx.SumShares(ctx, sym)
		if err != nil {
			return err
		}
		if shares > owned {
			return reject(InsufficientShares, StageApplying, "too many shares: own %d %s", owned, sym)
		}
		cash, err := tx.Cash(ctx)
		if err != nil {
			return err
		}
		t := &models.Transaction{Symbol: sym, Shares: -shares, PriceCents: q.PriceCents}
		if err := tx.SetCash(ctx, cash+total); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, t); err != nil {
			return err
		}
		receipt = newReceipt(t, SideSell, total, cash+total, q.Provenance)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// price resolves a symbol through the cache. Lookup failure and an invalid
// symbol are the same rejection.
func (e *Engine) price(ctx context.Context, symbol string) (quote.Quote, error) {
	q, err := e.quotes.Get(ctx, symbol)
	if errors.Is(err, quote.ErrInvalidSymbol) {
		return quote.Quote{}, reject(UnknownSymbol, StagePricing, "invalid symbol %q", symbol)
	}
	if err != nil {
		return quote.Quote{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if q.PriceCents <= 0 {
		return quote.Quote{}, reject(UnknownSymbol, StagePricing, "no price for %s", q.Symbol)
	}
	return q, nil
}

func (e *Engine) finish(ctx context.Context, side string, r *Receipt, err error) (*Receipt, error) {
	if err != nil {
		if rej, ok := AsRejection(err); ok {
			metrics.Trades.WithLabelValues(side, "rejected").Inc()
			e.log.Info().Str("side", side).Str("kind", string(rej.Kind)).Str("stage", string(rej.Stage)).Msg(rej.Reason)
		}
		return nil, err
	}

	metrics.Trades.WithLabelValues(side, "committed").Inc()
	e.log.Info().
		Str("side", side).
		Int64("user", r.UserID).
		Str("symbol", r.Symbol).
		Int64("shares", r.Shares).
		Int64("price", r.PriceCents).
		Str("provenance", string(r.Provenance)).
		Msg("trade committed")

	e.afterCommit(context.WithoutCancel(ctx), *r)
	return r, nil
}

// afterCommit publishes and notifies in the background. Neither can affect
// the committed result.
func (e *Engine) afterCommit(ctx context.Context, r Receipt) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		defer cancel()

		if err := e.publisher.PublishTrade(ctx, r.Event()); err != nil {
			e.log.Warn().Err(err).Str("trade", r.TradeID.String()).Msg("trade event not published")
		}
		if e.notifier != nil {
			e.notifier.NotifyTrade(ctx, notifications.Trade{
				Username:   "user " + strconv.FormatInt(r.UserID, 10),
				Side:       r.Side,
				Symbol:     r.Symbol,
				Shares:     r.Shares,
				PriceCents: r.PriceCents,
				TotalCents: r.TotalCents,
				Stub:       r.Provenance == quote.Stub,
			})
		}
	}()
}

func (r Receipt) Event() events.TradeEvent {
	return events.TradeEvent{
		TradeID:    r.TradeID,
		UserID:     r.UserID,
		Side:       r.Side,
		Symbol:     r.Symbol,
		Shares:     r.Shares,
		PriceCents: r.PriceCents,
		TotalCents: r.TotalCents,
		CashAfter:  r.CashAfter,
		Provenance: string(r.Provenance),
		ExecutedAt: r.ExecutedAt,
	}
}

func newReceipt(t *models.Transaction, side string, total, cashAfter int64, prov quote.Provenance) *Receipt {
	return &Receipt{
		TradeID:    t.TradeID,
		UserID:     t.UserID,
		Side:       side,
		Symbol:     t.Symbol,
		Shares:     t.Shares,
		PriceCents: t.PriceCents,
		TotalCents: total,
		CashAfter:  cashAfter,
		Provenance: prov,
		ExecutedAt: t.Timestamp,
	}
}
