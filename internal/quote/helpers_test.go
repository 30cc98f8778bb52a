package quote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingFetcher returns a price that grows with every call so a re-fetch
// is visible in the returned value.
type countingFetcher struct {
	calls atomic.Int32
	delay time.Duration
}

func (f *countingFetcher) Fetch(ctx context.Context, symbol string) (Quote, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	price := decimal.NewFromInt(100 + int64(n))
	return Quote{Symbol: symbol, Price: price, PriceCents: price.Shift(2).IntPart(), Provenance: Live}, nil
}

type staticProvider struct {
	name  string
	price string
	calls atomic.Int32
}

func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) Fetch(ctx context.Context, symbol string) (Quote, error) {
	p.calls.Add(1)
	return Quote{Symbol: symbol, Price: decimal.RequireFromString(p.price), ChangePercent: decimal.RequireFromString("1.5")}, nil
}

type failingProvider struct {
	name  string
	calls atomic.Int32
}

func (p *failingProvider) Name() string { return p.name }

func (p *failingProvider) Fetch(ctx context.Context, symbol string) (Quote, error) {
	p.calls.Add(1)
	return Quote{}, errors.New("upstream down")
}

// blockingProvider waits for its context to expire.
type blockingProvider struct{}

func (blockingProvider) Name() string { return "slow" }

func (blockingProvider) Fetch(ctx context.Context, symbol string) (Quote, error) {
	<-ctx.Done()
	return Quote{}, ctx.Err()
}

// slowProvider answers after delay unless its context ends first.
type slowProvider struct {
	delay time.Duration
	price string
	calls atomic.Int32
}

func (p *slowProvider) Name() string { return "slow-live" }

func (p *slowProvider) Fetch(ctx context.Context, symbol string) (Quote, error) {
	p.calls.Add(1)
	select {
	case <-time.After(p.delay):
		return Quote{Symbol: symbol, Price: decimal.RequireFromString(p.price)}, nil
	case <-ctx.Done():
		return Quote{}, ctx.Err()
	}
}
