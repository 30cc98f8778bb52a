package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/stonks-backend/internal/models"
)

const pgUniqueViolation = "23505"

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) CreateUser(ctx context.Context, username string, cash int64) (*models.User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, cash) VALUES ($1, $2)
		 RETURNING id, username, cash, created_at`,
		username, cash,
	)
	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, cash, created_at FROM users WHERE id = $1`, id)
	return r.one(row)
}

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, cash, created_at FROM users WHERE username = $1`, username)
	return r.one(row)
}

func (r *UserRepo) one(row scannable) (*models.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func scanUser(row scannable) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Cash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
