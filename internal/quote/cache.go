package quote

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/kjannette/stonks-backend/internal/metrics"
)

const DefaultTTL = 15 * time.Second

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	quote     Quote
	fetchedAt time.Time
}

// Cache memoizes quotes per symbol for ttl. An entry whose age reaches ttl
// is treated as absent. Entries are immutable and swapped atomically per
// key; concurrent misses on one symbol share a single upstream call.
type Cache struct {
	fetcher Fetcher
	clock   Clock
	ttl     time.Duration
	log     zerolog.Logger

	entries sync.Map // string -> *cacheEntry
	group   singleflight.Group
}

func NewCache(fetcher Fetcher, clock Clock, ttl time.Duration, log zerolog.Logger) *Cache {
	if clock == nil {
		clock = SystemClock{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		fetcher: fetcher,
		clock:   clock,
		ttl:     ttl,
		log:     log.With().Str("component", "quote-cache").Logger(),
	}
}

// Get returns a fresh cached quote or fetches a new one. The only error is
// ErrInvalidSymbol.
func (c *Cache) Get(ctx context.Context, symbol string) (Quote, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return Quote{}, err
	}

	if q, ok := c.fresh(sym); ok {
		metrics.QuoteCacheRequests.WithLabelValues("hit").Inc()
		return q, nil
	}
	metrics.QuoteCacheRequests.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(sym, func() (any, error) {
		if q, ok := c.fresh(sym); ok {
			return q, nil
		}
		// shared by every waiter, so one caller going away must not cut it
		// short; the adapter's per-provider timeout bounds it
		q, err := c.fetcher.Fetch(context.WithoutCancel(ctx), sym)
		if err != nil {
			return Quote{}, err
		}
		c.entries.Store(sym, &cacheEntry{quote: q, fetchedAt: c.clock.Now()})
		return q, nil
	})
	if err != nil {
		return Quote{}, err
	}
	return v.(Quote), nil
}

// Peek returns the cached quote regardless of age, without fetching.
func (c *Cache) Peek(symbol string) (Quote, time.Time, bool) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return Quote{}, time.Time{}, false
	}
	v, ok := c.entries.Load(sym)
	if !ok {
		return Quote{}, time.Time{}, false
	}
	e := v.(*cacheEntry)
	return e.quote, e.fetchedAt, true
}

func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep drops stale entries and reports how many were removed.
func (c *Cache) Sweep() int {
	now := c.clock.Now()
	removed := 0
	c.entries.Range(func(k, v any) bool {
		if now.Sub(v.(*cacheEntry).fetchedAt) >= c.ttl {
			c.entries.CompareAndDelete(k, v)
			removed++
		}
		return true
	})
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (c *Cache) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.log.Debug().Int("removed", n).Int("remaining", c.Len()).Msg("swept stale quotes")
			}
		}
	}
}

func (c *Cache) fresh(sym string) (Quote, bool) {
	v, ok := c.entries.Load(sym)
	if !ok {
		return Quote{}, false
	}
	e := v.(*cacheEntry)
	if c.clock.Now().Sub(e.fetchedAt) >= c.ttl {
		return Quote{}, false
	}
	return e.quote, true
}
