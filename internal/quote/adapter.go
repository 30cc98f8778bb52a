package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/stonks-backend/internal/metrics"
	"github.com/kjannette/stonks-backend/internal/money"
)

const DefaultTimeout = 6 * time.Second

// Fetcher is what the Cache needs from the layer below it.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (Quote, error)
}

// Adapter tries each provider once, in priority order, and degrades to the
// stub table when all of them fail. Callers only ever see ErrInvalidSymbol.
type Adapter struct {
	providers []Provider
	timeout   time.Duration
	clock     Clock
	log       zerolog.Logger
}

func NewAdapter(log zerolog.Logger, timeout time.Duration, providers ...Provider) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{
		providers: providers,
		timeout:   timeout,
		clock:     SystemClock{},
		log:       log.With().Str("component", "quote-adapter").Logger(),
	}
}

// WithClock replaces the clock used to stamp FetchedAt.
func (a *Adapter) WithClock(c Clock) *Adapter {
	a.clock = c
	return a
}

func (a *Adapter) Providers() []string {
	names := make([]string, len(a.providers))
	for i, p := range a.providers {
		names[i] = p.Name()
	}
	return names
}

// Fetch tries each provider in order and serves the stub table when all of
// them fail. If ctx itself is done, ctx.Err() is returned and no stub is
// served.
func (a *Adapter) Fetch(ctx context.Context, symbol string) (Quote, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return Quote{}, err
	}

	var errs []error
	for _, p := range a.providers {
		q, err := a.fetchOne(ctx, p, sym)
		if err == nil {
			metrics.ProviderRequests.WithLabelValues(p.Name(), "ok").Inc()
			return q, nil
		}
		if ctx.Err() != nil {
			// the caller left; that says nothing about the provider
			return Quote{}, ctx.Err()
		}
		metrics.ProviderRequests.WithLabelValues(p.Name(), "error").Inc()
		errs = append(errs, err)
	}

	metrics.StubQuotes.Inc()
	ev := a.log.Warn().Str("symbol", sym)
	if len(errs) > 0 {
		ev = ev.Err(fmt.Errorf("%w: %w", ErrProviderUnavailable, errors.Join(errs...)))
	}
	ev.Msg("all quote providers failed, serving stub price")
	return StubQuote(sym, a.clock.Now()), nil
}

func (a *Adapter) fetchOne(ctx context.Context, p Provider, sym string) (Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	q, err := p.Fetch(ctx, sym)
	if err != nil {
		return Quote{}, err
	}
	// one conversion per observation, before anything multiplies it
	q.Symbol = sym
	q.PriceCents = money.ToCents(q.Price)
	q.Provenance = Live
	if q.Provider == "" {
		q.Provider = p.Name()
	}
	q.FetchedAt = a.clock.Now()
	return q, nil
}
