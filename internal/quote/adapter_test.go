package quote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestStubFallback(t *testing.T) {
	a := NewAdapter(zerolog.Nop(), time.Second, &failingProvider{name: "primary"})
	ctx := context.Background()

	q, err := a.Fetch(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !q.Price.Equal(decimal.RequireFromString("180.12")) {
		t.Fatalf("expected stub price 180.12, got %s", q.Price)
	}
	if q.PriceCents != 18012 {
		t.Fatalf("expected 18012 cents, got %d", q.PriceCents)
	}
	if !q.ChangePercent.IsZero() {
		t.Fatalf("expected zero change, got %s", q.ChangePercent)
	}
	if !q.IsStub() {
		t.Fatal("expected stub provenance")
	}

	q, err = a.Fetch(ctx, "UNKNOWNSYM")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !q.Price.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected default stub price 100.00, got %s", q.Price)
	}
}

func TestStubTable(t *testing.T) {
	now := time.Now()
	cases := map[string]int64{"AAPL": 18012, "TSLA": 17244, "IBM": 14567, "MSFT": 10000}
	for sym, want := range cases {
		if got := StubQuote(sym, now).PriceCents; got != want {
			t.Fatalf("stub %s: got %d, want %d", sym, got, want)
		}
	}
}

func TestAdapter_NoProvidersServesStub(t *testing.T) {
	a := NewAdapter(zerolog.Nop(), time.Second)
	q, err := a.Fetch(context.Background(), "tsla")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if q.Symbol != "TSLA" || q.PriceCents != 17244 {
		t.Fatalf("unexpected stub quote: %+v", q)
	}
}

func TestAdapter_PriorityOrder(t *testing.T) {
	primary := &failingProvider{name: "primary"}
	secondary := &staticProvider{name: "secondary", price: "42.005"}
	tertiary := &staticProvider{name: "tertiary", price: "99.00"}
	a := NewAdapter(zerolog.Nop(), time.Second, primary, secondary, tertiary)

	q, err := a.Fetch(context.Background(), "msft")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if q.Provider != "secondary" {
		t.Fatalf("expected secondary provider, got %s", q.Provider)
	}
	if q.Provenance != Live {
		t.Fatalf("expected live provenance, got %s", q.Provenance)
	}
	if q.PriceCents != 4201 {
		t.Fatalf("expected 4201 cents, got %d", q.PriceCents)
	}
	if q.Symbol != "MSFT" {
		t.Fatalf("expected normalized symbol, got %s", q.Symbol)
	}
	if primary.calls.Load() != 1 || tertiary.calls.Load() != 0 {
		t.Fatalf("unexpected call counts: primary=%d tertiary=%d", primary.calls.Load(), tertiary.calls.Load())
	}
}

func TestAdapter_TimeoutFallsBackToStub(t *testing.T) {
	a := NewAdapter(zerolog.Nop(), 50*time.Millisecond, blockingProvider{})

	start := time.Now()
	q, err := a.Fetch(context.Background(), "IBM")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout was not enforced")
	}
	if !q.IsStub() || q.PriceCents != 14567 {
		t.Fatalf("expected IBM stub, got %+v", q)
	}
}

func TestAdapter_InvalidSymbol(t *testing.T) {
	a := NewAdapter(zerolog.Nop(), time.Second, &staticProvider{name: "p", price: "1"})
	for _, s := range []string{"", "   ", "AA PL", "../etc", "ABCDEFGHIJKLMNOP"} {
		if _, err := a.Fetch(context.Background(), s); !errors.Is(err, ErrInvalidSymbol) {
			t.Fatalf("Fetch(%q): expected ErrInvalidSymbol, got %v", s, err)
		}
	}
}

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{"aapl": "AAPL", "  brk.b ": "BRK.B", "^gspc": "^GSPC", "eurusd=x": "EURUSD=X"}
	for in, want := range cases {
		got, err := NormalizeSymbol(in)
		if err != nil {
			t.Fatalf("NormalizeSymbol(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPercentChange(t *testing.T) {
	got := percentChange(decimal.RequireFromString("110"), decimal.RequireFromString("100"))
	if !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected 10, got %s", got)
	}
	if !percentChange(decimal.NewFromInt(5), decimal.Zero).IsZero() {
		t.Fatal("expected zero change for zero previous close")
	}
}

func TestAdapter_CancelledCallerGetsNoStub(t *testing.T) {
	a := NewAdapter(zerolog.Nop(), 5*time.Second, &slowProvider{delay: time.Second, price: "10"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q, err := a.Fetch(ctx, "AAPL")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if q.IsStub() {
		t.Fatal("a cancelled caller must not be handed a stub")
	}
}
