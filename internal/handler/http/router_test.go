package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fisschl/auth/internal/cache"
	"github.com/fisschl/auth/internal/domain"
	"github.com/fisschl/auth/internal/event"
	"github.com/fisschl/auth/internal/service"
	apperrors "github.com/fisschl/auth/pkg/errors"
	"github.com/fisschl/auth/pkg/health"
	pkgkafka "github.com/fisschl/auth/pkg/kafka"
)

// ============================================================================
// Mock Repositories
// ============================================================================

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockTokenRepo struct {
	mock.Mock
}

func (m *mockTokenRepo) Insert(ctx context.Context, userID, value string) (*domain.Token, error) {
	args := m.Called(ctx, userID, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

func (m *mockTokenRepo) GetByValue(ctx context.Context, value string) (*domain.Token, error) {
	args := m.Called(ctx, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

func (m *mockTokenRepo) Delete(ctx context.Context, value string) error {
	args := m.Called(ctx, value)
	return args.Error(0)
}

func (m *mockTokenRepo) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockTokenRepo) DeleteBatch(ctx context.Context, values []string) (int64, error) {
	args := m.Called(ctx, values)
	return args.Get(0).(int64), args.Error(1)
}

// ============================================================================
// Fixture
// ============================================================================

type routerFixture struct {
	handler   http.Handler
	sessions  *service.Sessions
	userRepo  *mockUserRepo
	tokenRepo *mockTokenRepo
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	userRepo := new(mockUserRepo)
	tokenRepo := new(mockTokenRepo)

	userCache, err := cache.New[string, domain.UserView](1024, 24*time.Hour)
	require.NoError(t, err)
	tokenCache, err := cache.New[string, string](6144, 24*time.Hour)
	require.NoError(t, err)

	sessions := service.NewSessions(userRepo, tokenRepo, userCache, tokenCache, logger)
	sweeper := service.NewSweeper(tokenRepo, sessions, 60*24*time.Hour, 60*time.Second, 1024, logger)

	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	producer := event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)

	users := service.NewUsers(userRepo, sessions, sweeper, producer, logger)

	handler := NewRouter(users, sessions, "development", health.NewHandler(), logger, CORSConfig{
		AllowedOrigins: []string{"*"},
		Environment:    "development",
	})

	return &routerFixture{
		handler:   handler,
		sessions:  sessions,
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
	}
}

func (f *routerFixture) do(t *testing.T, method, url string, body any, modify func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	r := httptest.NewRequest(method, url, &buf)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if modify != nil {
		modify(r)
	}

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, target any) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NoError(t, json.Unmarshal(resp.Data, target))
}

func routerTestUser(t *testing.T, password string) *domain.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return &domain.User{
		ID:           "0190a8f0-0000-7000-8000-000000000001",
		UserName:     "alice",
		Email:        "alice@example.com",
		PasswordHash: string(hashed),
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ============================================================================
// Register / Login / Logout
// ============================================================================

func TestRouter_Register_IssuesSessionCookie(t *testing.T) {
	f := newRouterFixture(t)

	f.userRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	f.tokenRepo.On("Insert", mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Return(&domain.Token{Value: "tok-new", UserID: "u-1", CreatedAt: time.Now().UTC()}, nil).Once()

	w := f.do(t, http.MethodPost, "/api/user/register", map[string]string{
		"user_name": "alice",
		"email":     "alice@example.com",
		"password":  "correct horse",
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var auth AuthResponse
	decodeData(t, w, &auth)
	assert.Equal(t, "tok-new", auth.Token)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "token", cookies[0].Name)
	assert.Equal(t, "tok-new", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestRouter_Register_ValidationError(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodPost, "/api/user/register", map[string]string{
		"user_name": "alice",
		"email":     "not-an-email",
		"password":  "correct horse",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.userRepo.AssertNotCalled(t, "Create")
}

func TestRouter_RegisterThenGetUser_NoTokenStoreRead(t *testing.T) {
	f := newRouterFixture(t)

	f.userRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	f.tokenRepo.On("Insert", mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Return(&domain.Token{Value: "tok-new", UserID: "u-1", CreatedAt: time.Now().UTC()}, nil).Once()

	w := f.do(t, http.MethodPost, "/api/user/register", map[string]string{
		"user_name": "alice",
		"email":     "alice@example.com",
		"password":  "correct horse",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var auth AuthResponse
	decodeData(t, w, &auth)

	// The register path primed both cache levels, so the follow-up read
	// needs neither store.
	w = f.do(t, http.MethodGet, "/api/user", nil, withBearer(auth.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view domain.UserView
	decodeData(t, w, &view)
	assert.Equal(t, "alice@example.com", view.Email)

	f.tokenRepo.AssertNotCalled(t, "GetByValue")
	f.userRepo.AssertNotCalled(t, "GetByID")
}

func TestRouter_Login_WrongPassword(t *testing.T) {
	f := newRouterFixture(t)
	u := routerTestUser(t, "correct horse")

	f.userRepo.On("GetByEmail", mock.Anything, u.Email).Return(u, nil).Once()

	w := f.do(t, http.MethodPost, "/api/user/login", map[string]string{
		"email":    u.Email,
		"password": "wrong password",
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Result().Cookies())
	f.tokenRepo.AssertNotCalled(t, "Insert")
}

func TestRouter_Login_Success(t *testing.T) {
	f := newRouterFixture(t)
	u := routerTestUser(t, "correct horse")

	f.userRepo.On("GetByEmail", mock.Anything, u.Email).Return(u, nil).Once()
	f.tokenRepo.On("Insert", mock.Anything, u.ID, mock.AnythingOfType("string")).
		Return(&domain.Token{Value: "tok-login", UserID: u.ID, CreatedAt: time.Now().UTC()}, nil).Once()
	f.tokenRepo.On("ListOlderThan", mock.Anything, mock.Anything, 1024).
		Return([]string{}, nil).Maybe()

	w := f.do(t, http.MethodPost, "/api/user/login", map[string]string{
		"email":    u.Email,
		"password": "correct horse",
	}, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var auth AuthResponse
	decodeData(t, w, &auth)
	assert.Equal(t, "tok-login", auth.Token)
}

func TestRouter_Logout_RevokesTokenAndClearsCookie(t *testing.T) {
	f := newRouterFixture(t)
	u := routerTestUser(t, "correct horse")

	f.tokenRepo.On("GetByValue", mock.Anything, "tok-1").
		Return(&domain.Token{Value: "tok-1", UserID: u.ID}, nil).Once()
	f.userRepo.On("GetByID", mock.Anything, u.ID).Return(u, nil).Once()
	f.tokenRepo.On("Delete", mock.Anything, "tok-1").Return(nil).Once()

	w := f.do(t, http.MethodPost, "/api/user/logout", nil, withBearer("tok-1"))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)

	f.tokenRepo.AssertExpectations(t)
}

// ============================================================================
// Authenticated user endpoints
// ============================================================================

func TestRouter_GetUser_NoCredential(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodGet, "/api/user", nil, nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_GetUser_UnknownToken(t *testing.T) {
	f := newRouterFixture(t)

	f.tokenRepo.On("GetByValue", mock.Anything, "bogus").Return(nil, apperrors.ErrNotFound).Once()

	w := f.do(t, http.MethodGet, "/api/user", nil, withBearer("bogus"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_GetUser_ViaCookie(t *testing.T) {
	f := newRouterFixture(t)
	u := routerTestUser(t, "correct horse")

	f.tokenRepo.On("GetByValue", mock.Anything, "tok-1").
		Return(&domain.Token{Value: "tok-1", UserID: u.ID}, nil).Once()
	f.userRepo.On("GetByID", mock.Anything, u.ID).Return(u, nil).Once()

	w := f.do(t, http.MethodGet, "/api/user", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "token", Value: "tok-1"})
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view domain.UserView
	decodeData(t, w, &view)
	assert.Equal(t, u.ID, view.ID)
	assert.Equal(t, u.Email, view.Email)
}

func TestRouter_GetUser_ResponseOmitsPassword(t *testing.T) {
	f := newRouterFixture(t)
	u := routerTestUser(t, "correct horse")

	f.tokenRepo.On("GetByValue", mock.Anything, "tok-1").
		Return(&domain.Token{Value: "tok-1", UserID: u.ID}, nil).Once()
	f.userRepo.On("GetByID", mock.Anything, u.ID).Return(u, nil).Once()

	w := f.do(t, http.MethodGet, "/api/user", nil, withBearer("tok-1"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	assert.NotContains(t, w.Body.String(), u.PasswordHash)
}

func TestRouter_UpdateUser_PrimesCache(t *testing.T) {
	f := newRouterFixture(t)
	u := routerTestUser(t, "correct horse")

	f.tokenRepo.On("GetByValue", mock.Anything, "tok-1").
		Return(&domain.Token{Value: "tok-1", UserID: u.ID}, nil).Once()
	f.userRepo.On("GetByID", mock.Anything, u.ID).Return(u, nil).Twice()
	f.userRepo.On("Update", mock.Anything, mock.Anything).Return(nil).Once()

	w := f.do(t, http.MethodPut, "/api/user", map[string]string{
		"user_name": "alice-renamed",
	}, withBearer("tok-1"))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view domain.UserView
	decodeData(t, w, &view)
	assert.Equal(t, "alice-renamed", view.UserName)

	// A follow-up read is served from the primed cache.
	w = f.do(t, http.MethodGet, "/api/user", nil, withBearer("tok-1"))
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &view)
	assert.Equal(t, "alice-renamed", view.UserName)
	f.userRepo.AssertNumberOfCalls(t, "GetByID", 2)
}

func TestRouter_UpdateUser_RoleChangeForbidden(t *testing.T) {
	f := newRouterFixture(t)
	u := routerTestUser(t, "correct horse")

	f.tokenRepo.On("GetByValue", mock.Anything, "tok-1").
		Return(&domain.Token{Value: "tok-1", UserID: u.ID}, nil).Once()
	f.userRepo.On("GetByID", mock.Anything, u.ID).Return(u, nil).Once()

	w := f.do(t, http.MethodPut, "/api/user", map[string]string{
		"role": domain.RoleSuperAdmin,
	}, withBearer("tok-1"))

	assert.Equal(t, http.StatusForbidden, w.Code)
	f.userRepo.AssertNotCalled(t, "Update")
}

func TestRouter_DeleteUser(t *testing.T) {
	f := newRouterFixture(t)
	u := routerTestUser(t, "correct horse")

	f.tokenRepo.On("GetByValue", mock.Anything, "tok-1").
		Return(&domain.Token{Value: "tok-1", UserID: u.ID}, nil).Once()
	f.userRepo.On("GetByID", mock.Anything, u.ID).Return(u, nil).Twice()
	f.userRepo.On("Delete", mock.Anything, u.ID).Return(nil).Once()

	w := f.do(t, http.MethodDelete, "/api/user", nil, withBearer("tok-1"))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.userRepo.AssertExpectations(t)
}

// ============================================================================
// Middleware context helpers
// ============================================================================

func TestUserFromContext_Empty(t *testing.T) {
	assert.Nil(t, UserFromContext(context.Background()))
	assert.Empty(t, TokenFromContext(context.Background()))
}
