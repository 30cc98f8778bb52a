package quote

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kjannette/stonks-backend/internal/money"
)

const stubProvider = "stub"

// DefaultStubPrice is served for symbols missing from the stub table.
var DefaultStubPrice = decimal.RequireFromString("100.00")

var stubPrices = map[string]decimal.Decimal{
	"AAPL": decimal.RequireFromString("180.12"),
	"TSLA": decimal.RequireFromString("172.44"),
	"IBM":  decimal.RequireFromString("145.67"),
}

// StubQuote builds the deterministic fallback quote for an already
// normalized symbol. Percent change is always zero.
func StubQuote(symbol string, now time.Time) Quote {
	price, ok := stubPrices[symbol]
	if !ok {
		price = DefaultStubPrice
	}
	return Quote{
		Symbol:        symbol,
		Name:          symbol,
		Price:         price,
		PriceCents:    money.ToCents(price),
		ChangePercent: decimal.Zero,
		Provenance:    Stub,
		Provider:      stubProvider,
		FetchedAt:     now,
	}
}
