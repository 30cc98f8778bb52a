// Package quote sources live share prices from upstream providers, falls
// back to a fixed stub table when every provider fails, and memoizes the
// result for a short freshness window.
package quote

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provenance distinguishes a live observation from a stub fallback.
type Provenance string

const (
	Live Provenance = "live"
	Stub Provenance = "stub"
)

var (
	// ErrInvalidSymbol is the only error a lookup returns to callers.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrProviderUnavailable marks an upstream failure. It never leaves the
	// Adapter; a stub quote is returned instead.
	ErrProviderUnavailable = errors.New("quote provider unavailable")
)

var symbolRegexp = regexp.MustCompile(`^[A-Z0-9.\-^=]{1,15}$`)

type Quote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	PriceCents    int64           `json:"priceCents"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Provenance    Provenance      `json:"provenance"`
	Provider      string          `json:"provider"`
	FetchedAt     time.Time       `json:"fetchedAt"`
}

func (q Quote) IsStub() bool { return q.Provenance == Stub }

// NormalizeSymbol trims and upper-cases a ticker, rejecting empty or
// malformed input with ErrInvalidSymbol.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolRegexp.MatchString(s) {
		return "", ErrInvalidSymbol
	}
	return s, nil
}

// percentChange returns (price - prev) / prev * 100, or zero when prev is
// not positive.
func percentChange(price, prev decimal.Decimal) decimal.Decimal {
	if !prev.IsPositive() {
		return decimal.Zero
	}
	return price.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).Round(4)
}
