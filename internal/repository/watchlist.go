package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type WatchlistRepo struct {
	pool *pgxpool.Pool
}

func NewWatchlistRepo(pool *pgxpool.Pool) *WatchlistRepo {
	return &WatchlistRepo{pool: pool}
}

// AddWatch is idempotent.
func (r *WatchlistRepo) AddWatch(ctx context.Context, userID int64, symbol string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO watchlist (user_id, symbol) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, symbol,
	)
	return err
}

func (r *WatchlistRepo) RemoveWatch(ctx context.Context, userID int64, symbol string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM watchlist WHERE user_id = $1 AND symbol = $2`, userID, symbol)
	return err
}

func (r *WatchlistRepo) WatchedSymbols(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT symbol FROM watchlist WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
