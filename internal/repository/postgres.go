package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the pgx-backed Store.
type PostgresStore struct {
	*UserRepo
	*LedgerRepo
	*WatchlistRepo
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		UserRepo:      NewUserRepo(pool),
		LedgerRepo:    NewLedgerRepo(pool),
		WatchlistRepo: NewWatchlistRepo(pool),
		pool:          pool,
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Kind() string { return "postgres" }
