package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"payment-service/internal/domain"
)

type PostgresUserRepository struct {
	db *sqlx.DB
}

func NewPostgresUserRepository(db *sqlx.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// CreateOrFetch inserts the user, or returns the existing identity with the
// same email. Two near-simultaneous provisioning attempts both end up with
// the same user id: the insert is ON CONFLICT DO NOTHING and the loser falls
// through to the select.
func (r *PostgresUserRepository) CreateOrFetch(ctx context.Context, u domain.User) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const insert = `
        INSERT INTO users (id, email, name, phone, password_hash)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (email) DO NOTHING
        RETURNING id, email, name, phone, password_hash, created_at;
    `
	var created domain.User
	err := r.db.GetContext(ctx, &created, insert, u.ID, u.Email, u.Name, u.Phone, u.PasswordHash)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("failed to insert user: %w", err)
	}

	return r.GetByEmail(ctx, u.Email)
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	var u domain.User
	const query = `SELECT id, email, name, phone, password_hash, created_at FROM users WHERE email = $1`
	if err := r.db.GetContext(ctx, &u, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("failed to load user by email: %w", err)
	}
	return u, nil
}
