package repository

import (
	"context"
	"errors"

	"github.com/kjannette/stonks-backend/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")

	errNegativeCash = errors.New("cash balance cannot go negative")
)

// UserTx is the view of one user's ledger inside a WithUser unit. Writes
// become visible only if the unit's callback returns nil.
type UserTx interface {
	Cash(ctx context.Context) (int64, error)
	SetCash(ctx context.Context, cents int64) error
	SumShares(ctx context.Context, symbol string) (int64, error)
	AppendTransaction(ctx context.Context, t *models.Transaction) error
}

// LedgerStore persists cash balances and the append-only transaction log.
// WithUser serializes all units for the same user.
type LedgerStore interface {
	WithUser(ctx context.Context, userID int64, fn func(UserTx) error) error
	Cash(ctx context.Context, userID int64) (int64, error)
	SumShares(ctx context.Context, userID int64, symbol string) (int64, error)
	Holdings(ctx context.Context, userID int64) ([]models.Holding, error)
	// Snapshot reads cash and holdings as of one point in time.
	Snapshot(ctx context.Context, userID int64) (int64, []models.Holding, error)
	Transactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, username string, cash int64) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type WatchlistStore interface {
	AddWatch(ctx context.Context, userID int64, symbol string) error
	RemoveWatch(ctx context.Context, userID int64, symbol string) error
	WatchedSymbols(ctx context.Context, userID int64) ([]string, error)
}

type Store interface {
	UserStore
	LedgerStore
	WatchlistStore
	Ping(ctx context.Context) error
	// Kind names the backend, "postgres" or "memory".
	Kind() string
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}
