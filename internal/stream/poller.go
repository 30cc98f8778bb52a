// Package stream pushes a user's watchlist quotes to long-lived clients on
// a fixed interval, over Server-Sent Events or WebSocket.
package stream

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/stonks-backend/internal/watchlist"
)

const DefaultInterval = 10 * time.Second

// Source is satisfied by *watchlist.Service. It reads through the quote
// cache and takes no ledger locks.
type Source interface {
	Market(ctx context.Context, userID int64) ([]watchlist.Row, error)
}

type Poller struct {
	src      Source
	interval time.Duration
	log      zerolog.Logger
}

func NewPoller(src Source, interval time.Duration, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		src:      src,
		interval: interval,
		log:      log.With().Str("component", "stream").Logger(),
	}
}

// Run emits a snapshot right away and then once per interval until ctx is
// done or emit fails.
func (p *Poller) Run(ctx context.Context, userID int64, emit func([]watchlist.Row) error) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		rows, err := p.src.Market(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := emit(rows); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
