package quote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kjannette/stonks-backend/internal/httputil"
)

const DefaultFMPBaseURL = "https://financialmodelingprep.com/api/v3"

// FMPProvider reads the FinancialModelingPrep /quote endpoint.
type FMPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type fmpQuote struct {
	Symbol            string              `json:"symbol"`
	Name              string              `json:"name"`
	Price             decimal.NullDecimal `json:"price"`
	ChangesPercentage decimal.NullDecimal `json:"changesPercentage"`
	PreviousClose     decimal.NullDecimal `json:"previousClose"`
}

func NewFMPProvider(baseURL, apiKey string, timeout time.Duration) *FMPProvider {
	if baseURL == "" {
		baseURL = DefaultFMPBaseURL
	}
	return &FMPProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *FMPProvider) Name() string { return "fmp" }

func (p *FMPProvider) Fetch(ctx context.Context, symbol string) (Quote, error) {
	addr := fmt.Sprintf("%s/quote/%s?apikey=%s", p.baseURL, url.PathEscape(symbol), url.QueryEscape(p.apiKey))

	var data []fmpQuote
	if err := httputil.GetJSON(ctx, p.httpClient, httputil.SingleAttempt, addr, &data); err != nil {
		return Quote{}, fmt.Errorf("fmp %s: %w", symbol, err)
	}
	if len(data) == 0 {
		return Quote{}, fmt.Errorf("fmp %s: empty response", symbol)
	}

	row := data[0]
	if !row.Price.Valid || !row.Price.Decimal.IsPositive() {
		return Quote{}, fmt.Errorf("fmp %s: missing price", symbol)
	}

	change := decimal.Zero
	switch {
	case row.ChangesPercentage.Valid:
		change = row.ChangesPercentage.Decimal
	case row.PreviousClose.Valid:
		change = percentChange(row.Price.Decimal, row.PreviousClose.Decimal)
	}

	name := row.Name
	if name == "" {
		name = symbol
	}
	return Quote{
		Symbol:        symbol,
		Name:          name,
		Price:         row.Price.Decimal,
		ChangePercent: change,
		Provider:      p.Name(),
	}, nil
}
