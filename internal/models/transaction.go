package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is one immutable ledger entry. Shares is signed:
// positive for a buy, negative for a sell.
type Transaction struct {
	ID         int64     `json:"id"`
	TradeID    uuid.UUID `json:"tradeId"`
	UserID     int64     `json:"userId"`
	Symbol     string    `json:"symbol"`
	Shares     int64     `json:"shares"`
	PriceCents int64     `json:"price"`
	Timestamp  time.Time `json:"timestamp"`
}

// Side reports "buy" or "sell" from the sign of Shares.
func (t Transaction) Side() string {
	if t.Shares < 0 {
		return "sell"
	}
	return "buy"
}

// Holding is the net share count for one symbol, derived from the
// transaction log on every read.
type Holding struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

type WatchlistEntry struct {
	UserID    int64     `json:"userId"`
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"createdAt"`
}
