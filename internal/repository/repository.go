package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fisschl/auth/internal/domain"
)

// DB is the subset of *pgxpool.Pool the repositories depend on. pgxmock's
// pool interface satisfies it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user into the store.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update modifies an existing user in the store.
	Update(ctx context.Context, user *domain.User) error

	// Delete removes a user; the store cascades the deletion to the
	// user's tokens.
	Delete(ctx context.Context, id string) error
}

// TokenRepository defines the interface for session token persistence.
type TokenRepository interface {
	// Insert persists a new token for the user and returns the stored
	// row. A write the store does not persist surfaces as a token
	// creation failure.
	Insert(ctx context.Context, userID, value string) (*domain.Token, error)

	// GetByValue retrieves a token row by its value.
	GetByValue(ctx context.Context, value string) (*domain.Token, error)

	// Delete removes a single token. Deleting an absent token is a
	// no-op.
	Delete(ctx context.Context, value string) error

	// ListOlderThan returns up to limit token values created before the
	// cutoff.
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]string, error)

	// DeleteBatch removes the given token values in one statement and
	// reports how many rows were deleted.
	DeleteBatch(ctx context.Context, values []string) (int64, error)
}
