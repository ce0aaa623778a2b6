package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fisschl/auth/internal/domain"
	"github.com/fisschl/auth/internal/event"
	"github.com/fisschl/auth/internal/repository"
	apperrors "github.com/fisschl/auth/pkg/errors"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// minPasswordLength is the minimum password length required.
const minPasswordLength = 8

// Users implements the business logic for account operations.
type Users struct {
	repo     repository.UserRepository
	sessions *Sessions
	sweeper  *Sweeper
	producer *event.Producer
	logger   *slog.Logger
}

// NewUsers creates a new user service.
func NewUsers(
	repo repository.UserRepository,
	sessions *Sessions,
	sweeper *Sweeper,
	producer *event.Producer,
	logger *slog.Logger,
) *Users {
	return &Users{
		repo:     repo,
		sessions: sessions,
		sweeper:  sweeper,
		producer: producer,
		logger:   logger,
	}
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	UserName string
	Email    string
	Password string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string
	Password string
}

// UpdateInput holds the parameters for updating a user. Nil fields are
// left unchanged.
type UpdateInput struct {
	UserName *string
	Email    *string
	Password *string
	Role     *string
}

// Register creates a new account and issues its first session token.
func (s *Users) Register(ctx context.Context, input RegisterInput) (*domain.UserView, *domain.Token, error) {
	if input.UserName == "" {
		return nil, nil, apperrors.InvalidInput("user name is required")
	}
	if input.Email == "" {
		return nil, nil, apperrors.InvalidInput("email is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("generate user id: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           id.String(),
		UserName:     input.UserName,
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	token, err := s.sessions.IssueToken(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	view := user.View()
	s.sessions.PrimeUser(view)

	// Publish registration event (non-blocking on failure).
	if err := s.producer.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return &view, token, nil
}

// Login authenticates a user with email and password and issues a fresh
// session token. A successful login also schedules a throttled sweep of
// expired tokens.
func (s *Users) Login(ctx context.Context, input LoginInput) (*domain.UserView, *domain.Token, error) {
	if input.Email == "" {
		return nil, nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, nil, apperrors.InvalidInput("password is required")
	}

	user, err := s.repo.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.Unauthorized("invalid email or password")
		}
		return nil, nil, fmt.Errorf("get user by email: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, nil, apperrors.Unauthorized("invalid email or password")
	}

	token, err := s.sessions.IssueToken(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	view := user.View()
	s.sessions.PrimeUser(view)

	s.sweeper.Trigger()

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return &view, token, nil
}

// Logout revokes the presented session token. Unknown tokens revoke
// cleanly.
func (s *Users) Logout(ctx context.Context, tokenValue string) error {
	return s.sessions.RevokeToken(ctx, tokenValue)
}

// Get returns the target user's public view. A target ID different from
// the actor's requires the SUPER_ADMIN role.
func (s *Users) Get(ctx context.Context, actor *domain.UserView, targetID string) (*domain.UserView, error) {
	targetID, err := s.resolveTarget(actor, targetID)
	if err != nil {
		return nil, err
	}

	if targetID == actor.ID {
		return actor, nil
	}

	user, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	view := user.View()
	return &view, nil
}

// Update modifies the target user and writes the fresh view through to the
// identity cache, so stale data is never served afterwards.
func (s *Users) Update(ctx context.Context, actor *domain.UserView, targetID string, input UpdateInput) (*domain.UserView, error) {
	targetID, err := s.resolveTarget(actor, targetID)
	if err != nil {
		return nil, err
	}

	if input.Role != nil {
		if actor.Role != domain.RoleSuperAdmin {
			return nil, apperrors.Forbidden("only administrators may change roles")
		}
		if !domain.IsValidRole(*input.Role) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("unknown role %q", *input.Role))
		}
	}

	user, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("get user for update: %w", err)
	}

	if input.UserName != nil {
		user.UserName = *input.UserName
	}
	if input.Email != nil {
		user.Email = *input.Email
	}
	if input.Role != nil {
		user.Role = *input.Role
	}
	if input.Password != nil {
		if err := validatePassword(*input.Password); err != nil {
			return nil, err
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(*input.Password), bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hashed)
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	view := user.View()
	s.sessions.PrimeUser(view)

	if err := s.producer.PublishUserUpdated(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.updated event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user updated",
		slog.String("user_id", user.ID),
	)

	return &view, nil
}

// Delete removes the target user and evicts them from the identity cache.
// The store cascades the deletion to the user's tokens; cached token
// entries for the user resolve to nothing once the user view is gone.
func (s *Users) Delete(ctx context.Context, actor *domain.UserView, targetID string) error {
	targetID, err := s.resolveTarget(actor, targetID)
	if err != nil {
		return err
	}

	user, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return fmt.Errorf("get user for delete: %w", err)
	}

	if err := s.repo.Delete(ctx, targetID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	s.sessions.EvictUser(targetID)

	if err := s.producer.PublishUserDeleted(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.deleted event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user deleted",
		slog.String("user_id", user.ID),
	)

	return nil
}

// resolveTarget decides which user an operation applies to. An empty
// target means the actor themselves; targeting another user requires the
// SUPER_ADMIN role.
func (s *Users) resolveTarget(actor *domain.UserView, targetID string) (string, error) {
	if actor == nil {
		return "", apperrors.Unauthorized("authentication required")
	}
	if targetID == "" || targetID == actor.ID {
		return actor.ID, nil
	}
	if actor.Role != domain.RoleSuperAdmin {
		return "", apperrors.Forbidden("insufficient permissions")
	}
	return targetID, nil
}

// validatePassword enforces the minimum password policy.
func validatePassword(password string) error {
	if password == "" {
		return apperrors.InvalidInput("password is required")
	}
	if len(password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	return nil
}
