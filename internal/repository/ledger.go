package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/stonks-backend/internal/models"
)

type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// WithUser runs fn inside a transaction holding the user's row lock, so a
// concurrent unit for the same user blocks until this one commits or rolls
// back. Any error from fn rolls back every write.
func (r *LedgerRepo) WithUser(ctx context.Context, userID int64, fn func(UserTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var cash int64
	err = tx.QueryRow(ctx, `SELECT cash FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&cash)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user %d: %w", userID, err)
	}

	if err := fn(&pgUserTx{tx: tx, userID: userID, cash: cash}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *LedgerRepo) Cash(ctx context.Context, userID int64) (int64, error) {
	var cash int64
	err := r.pool.QueryRow(ctx, `SELECT cash FROM users WHERE id = $1`, userID).Scan(&cash)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return cash, err
}

func (r *LedgerRepo) SumShares(ctx context.Context, userID int64, symbol string) (int64, error) {
	return sumShares(ctx, r.pool, userID, symbol)
}

// Holdings returns symbols with a positive net share count, by symbol.
func (r *LedgerRepo) Holdings(ctx context.Context, userID int64) ([]models.Holding, error) {
	return holdings(ctx, r.pool, userID)
}

// Snapshot reads cash and holdings in one read-only repeatable-read
// transaction, so a trade committing in between is either fully visible or
// not at all.
func (r *LedgerRepo) Snapshot(ctx context.Context, userID int64) (int64, []models.Holding, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return 0, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var cash int64
	err = tx.QueryRow(ctx, `SELECT cash FROM users WHERE id = $1`, userID).Scan(&cash)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, ErrUserNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("cash: %w", err)
	}
	hs, err := holdings(ctx, tx, userID)
	if err != nil {
		return 0, nil, fmt.Errorf("holdings: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, nil, fmt.Errorf("commit: %w", err)
	}
	return cash, hs, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func holdings(ctx context.Context, q querier, userID int64) ([]models.Holding, error) {
	rows, err := q.Query(ctx,
		`SELECT symbol, SUM(shares)::bigint
		 FROM transactions WHERE user_id = $1
		 GROUP BY symbol HAVING SUM(shares) > 0
		 ORDER BY symbol`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Holding
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.Symbol, &h.Shares); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Transactions returns the user's log newest first. limit <= 0 means all.
func (r *LedgerRepo) Transactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	query := `SELECT id, trade_id, user_id, symbol, shares, price, timestamp
		 FROM transactions WHERE user_id = $1
		 ORDER BY timestamp DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func sumShares(ctx context.Context, q queryRower, userID int64, symbol string) (int64, error) {
	var n int64
	err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(shares), 0)::bigint FROM transactions WHERE user_id = $1 AND symbol = $2`,
		userID, symbol,
	).Scan(&n)
	return n, err
}

type pgUserTx struct {
	tx     pgx.Tx
	userID int64
	cash   int64
}

func (u *pgUserTx) Cash(ctx context.Context) (int64, error) {
	return u.cash, nil
}

func (u *pgUserTx) SetCash(ctx context.Context, cents int64) error {
	if cents < 0 {
		return fmt.Errorf("user %d: %w", u.userID, errNegativeCash)
	}
	if _, err := u.tx.Exec(ctx, `UPDATE users SET cash = $1 WHERE id = $2`, cents, u.userID); err != nil {
		return fmt.Errorf("set cash: %w", err)
	}
	u.cash = cents
	return nil
}

func (u *pgUserTx) SumShares(ctx context.Context, symbol string) (int64, error) {
	return sumShares(ctx, u.tx, u.userID, symbol)
}

func (u *pgUserTx) AppendTransaction(ctx context.Context, t *models.Transaction) error {
	if t.TradeID == uuid.Nil {
		t.TradeID = uuid.New()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	t.UserID = u.userID
	row := u.tx.QueryRow(ctx,
		`INSERT INTO transactions (trade_id, user_id, symbol, shares, price, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, timestamp`,
		t.TradeID, t.UserID, t.Symbol, t.Shares, t.PriceCents, t.Timestamp,
	)
	if err := row.Scan(&t.ID, &t.Timestamp); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func collectTransactions(rows rowsIter) ([]models.Transaction, error) {
	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.TradeID, &t.UserID, &t.Symbol, &t.Shares, &t.PriceCents, &t.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
