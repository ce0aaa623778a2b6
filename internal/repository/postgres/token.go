package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fisschl/auth/internal/domain"
	"github.com/fisschl/auth/internal/repository"
	apperrors "github.com/fisschl/auth/pkg/errors"
)

// TokenRepository implements repository.TokenRepository using PostgreSQL.
type TokenRepository struct {
	db repository.DB
}

// NewTokenRepository creates a new PostgreSQL-backed token repository.
func NewTokenRepository(db repository.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Insert persists a new session token for the user and returns the stored row.
func (r *TokenRepository) Insert(ctx context.Context, userID, value string) (*domain.Token, error) {
	query := `
		INSERT INTO tokens (token, user_id)
		VALUES ($1, $2)
		RETURNING token, user_id, created_at`

	var t domain.Token
	err := r.db.QueryRow(ctx, query, value, userID).Scan(
		&t.Value,
		&t.UserID,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.TokenCreationFailed()
		}
		return nil, fmt.Errorf("insert token: %w", err)
	}

	return &t, nil
}

// GetByValue retrieves a token row by its value.
func (r *TokenRepository) GetByValue(ctx context.Context, value string) (*domain.Token, error) {
	query := `
		SELECT token, user_id, created_at
		FROM tokens
		WHERE token = $1`

	var t domain.Token
	err := r.db.QueryRow(ctx, query, value).Scan(
		&t.Value,
		&t.UserID,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}

	return &t, nil
}

// Delete removes a single token. Deleting an absent token is a no-op.
func (r *TokenRepository) Delete(ctx context.Context, value string) error {
	query := `DELETE FROM tokens WHERE token = $1`

	if _, err := r.db.Exec(ctx, query, value); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}

	return nil
}

// ListOlderThan returns up to limit token values created before the cutoff,
// oldest first.
func (r *TokenRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		SELECT token
		FROM tokens
		WHERE created_at < $1
		ORDER BY created_at
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired tokens: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan token value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token rows: %w", err)
	}

	return values, nil
}

// DeleteBatch removes the given token values in a single statement and
// reports how many rows were deleted.
func (r *TokenRepository) DeleteBatch(ctx context.Context, values []string) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}

	query := `DELETE FROM tokens WHERE token = ANY($1)`

	ct, err := r.db.Exec(ctx, query, values)
	if err != nil {
		return 0, fmt.Errorf("delete token batch: %w", err)
	}

	return ct.RowsAffected(), nil
}
