package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fisschl/auth/internal/service"
	"github.com/fisschl/auth/pkg/validator"
)

// AuthHandler handles HTTP requests for session endpoints.
type AuthHandler struct {
	service     *service.Users
	environment string
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.Users, environment string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, environment: environment, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration.
type RegisterRequest struct {
	UserName string `json:"user_name" validate:"required,min=1,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// --- Response types ---

// AuthResponse wraps the user view with the issued session token.
type AuthResponse struct {
	User  any    `json:"user"`
	Token string `json:"token"`
}

// --- Handlers ---

// Register handles POST /api/user/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	input := service.RegisterInput{
		UserName: req.UserName,
		Email:    req.Email,
		Password: req.Password,
	}

	user, token, err := h.service.Register(r.Context(), input)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	setSessionCookie(w, token.Value, h.environment)
	writeJSON(w, http.StatusCreated, response{
		Data: AuthResponse{
			User:  user,
			Token: token.Value,
		},
	})
}

// Login handles POST /api/user/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	input := service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	}

	user, token, err := h.service.Login(r.Context(), input)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	setSessionCookie(w, token.Value, h.environment)
	writeJSON(w, http.StatusOK, response{
		Data: AuthResponse{
			User:  user,
			Token: token.Value,
		},
	})
}

// Logout handles POST /api/user/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), loginToken(r)); err != nil {
		writeAppError(w, r, err)
		return
	}

	clearSessionCookie(w, h.environment)
	writeJSON(w, http.StatusOK, response{Data: map[string]string{"status": "logged_out"}})
}
