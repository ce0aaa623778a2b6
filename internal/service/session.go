package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fisschl/auth/internal/cache"
	"github.com/fisschl/auth/internal/domain"
	"github.com/fisschl/auth/internal/repository"
	"github.com/fisschl/auth/internal/token"
	apperrors "github.com/fisschl/auth/pkg/errors"
)

var cacheLookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_cache_lookups_total",
		Help: "Identity cache lookups partitioned by cache and result.",
	},
	[]string{"cache", "result"},
)

// Sessions resolves bearer credentials to users through a two-level
// in-process cache backed by the token and user stores.
//
// The first level maps token values to user IDs, the second maps user IDs
// to their public view. Both levels expire entries a fixed TTL after the
// write; a cache hit never extends the TTL.
type Sessions struct {
	users  repository.UserRepository
	tokens repository.TokenRepository

	userCache  *cache.Cache[string, domain.UserView]
	tokenCache *cache.Cache[string, string]

	logger *slog.Logger
}

// NewSessions creates the session resolver with its two cache levels.
func NewSessions(
	users repository.UserRepository,
	tokens repository.TokenRepository,
	userCache *cache.Cache[string, domain.UserView],
	tokenCache *cache.Cache[string, string],
	logger *slog.Logger,
) *Sessions {
	return &Sessions{
		users:      users,
		tokens:     tokens,
		userCache:  userCache,
		tokenCache: tokenCache,
		logger:     logger,
	}
}

// ResolveUserByID returns the public view of the user with the given ID,
// consulting the user cache before the store. An unknown ID resolves to
// (nil, nil); absence is never cached.
func (s *Sessions) ResolveUserByID(ctx context.Context, userID string) (*domain.UserView, error) {
	if userID == "" {
		return nil, nil
	}

	if view, ok := s.userCache.Get(userID); ok {
		cacheLookups.WithLabelValues("user", "hit").Inc()
		return &view, nil
	}
	cacheLookups.WithLabelValues("user", "miss").Inc()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}

	view := user.View()
	s.userCache.Set(userID, view)

	return &view, nil
}

// ResolveUserByToken resolves a bearer token to the public view of its
// owner. The token cache is consulted before the token store; a token that
// neither knows resolves to (nil, nil). The token mapping is cached only
// once the owning user has resolved.
func (s *Sessions) ResolveUserByToken(ctx context.Context, value string) (*domain.UserView, error) {
	if value == "" {
		return nil, nil
	}

	if userID, ok := s.tokenCache.Get(value); ok {
		cacheLookups.WithLabelValues("token", "hit").Inc()
		return s.ResolveUserByID(ctx, userID)
	}
	cacheLookups.WithLabelValues("token", "miss").Inc()

	t, err := s.tokens.GetByValue(ctx, value)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get token: %w", err)
	}

	view, err := s.ResolveUserByID(ctx, t.UserID)
	if err != nil {
		return nil, err
	}
	if view == nil {
		// A token whose owner is gone must not earn a cache entry.
		return nil, nil
	}

	s.tokenCache.Set(value, t.UserID)

	return view, nil
}

// IssueToken mints a fresh opaque token for the user, persists it, and
// primes the token cache so the next resolution needs no store read.
func (s *Sessions) IssueToken(ctx context.Context, userID string) (*domain.Token, error) {
	value, err := token.New()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	t, err := s.tokens.Insert(ctx, userID, value)
	if err != nil {
		return nil, err
	}

	s.tokenCache.Set(t.Value, userID)

	s.logger.DebugContext(ctx, "session token issued",
		slog.String("user_id", userID),
	)

	return t, nil
}

// RevokeToken removes a token from the store and the token cache. Revoking
// an unknown token is a no-op.
func (s *Sessions) RevokeToken(ctx context.Context, value string) error {
	if value == "" {
		return nil
	}

	if err := s.tokens.Delete(ctx, value); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	s.tokenCache.Delete(value)

	return nil
}

// PrimeUser writes a fresh user view through to the user cache.
func (s *Sessions) PrimeUser(view domain.UserView) {
	s.userCache.Set(view.ID, view)
}

// EvictUser drops a user from the user cache.
func (s *Sessions) EvictUser(userID string) {
	s.userCache.Delete(userID)
}

// EvictToken drops a token from the token cache.
func (s *Sessions) EvictToken(value string) {
	s.tokenCache.Delete(value)
}
