package watchlist

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kjannette/stonks-backend/internal/quote"
	"github.com/kjannette/stonks-backend/internal/repository"
)

type QuoteSource interface {
	Get(ctx context.Context, symbol string) (quote.Quote, error)
}

// Row is one line of the market view.
type Row struct {
	Symbol        string           `json:"symbol"`
	Name          string           `json:"name"`
	PriceCents    int64            `json:"price"`
	ChangePercent decimal.Decimal  `json:"changePercent"`
	Provenance    quote.Provenance `json:"provenance"`
}

// Snapshot is the price and change for one watched symbol, as pushed to
// streaming clients.
type Snapshot struct {
	Price  int64           `json:"price"`
	Change decimal.Decimal `json:"change"`
}

type Service struct {
	store  repository.WatchlistStore
	users  repository.UserStore
	quotes QuoteSource
}

func NewService(store repository.WatchlistStore, users repository.UserStore, quotes QuoteSource) *Service {
	return &Service{store: store, users: users, quotes: quotes}
}

// Watch validates the symbol through a quote lookup and adds it. Adding a
// symbol twice is a no-op.
func (s *Service) Watch(ctx context.Context, userID int64, symbol string) error {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return err
	}
	q, err := s.quotes.Get(ctx, symbol)
	if err != nil {
		return err
	}
	if err := s.store.AddWatch(ctx, userID, q.Symbol); err != nil {
		return fmt.Errorf("add watch: %w", err)
	}
	return nil
}

func (s *Service) Unwatch(ctx context.Context, userID int64, symbol string) error {
	sym, err := quote.NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if err := s.store.RemoveWatch(ctx, userID, sym); err != nil {
		return fmt.Errorf("remove watch: %w", err)
	}
	return nil
}

func (s *Service) Symbols(ctx context.Context, userID int64) ([]string, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.WatchedSymbols(ctx, userID)
}

// Market returns a priced row per watched symbol, by symbol. Symbols whose
// lookup fails are skipped.
func (s *Service) Market(ctx context.Context, userID int64) ([]Row, error) {
	syms, err := s.Symbols(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(syms))
	for _, sym := range syms {
		q, err := s.quotes.Get(ctx, sym)
		if err != nil {
			continue
		}
		rows = append(rows, Row{
			Symbol:        q.Symbol,
			Name:          q.Name,
			PriceCents:    q.PriceCents,
			ChangePercent: q.ChangePercent,
			Provenance:    q.Provenance,
		})
	}
	return rows, nil
}

// Quotes returns symbol -> {price, change} for every watched symbol.
func (s *Service) Quotes(ctx context.Context, userID int64) (map[string]Snapshot, error) {
	rows, err := s.Market(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Snapshot, len(rows))
	for _, r := range rows {
		out[r.Symbol] = Snapshot{Price: r.PriceCents, Change: r.ChangePercent}
	}
	return out, nil
}
