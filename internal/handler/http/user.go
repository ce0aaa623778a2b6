package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fisschl/auth/internal/service"
	apperrors "github.com/fisschl/auth/pkg/errors"
	"github.com/fisschl/auth/pkg/validator"
)

// UserHandler handles HTTP requests for account endpoints.
type UserHandler struct {
	service *service.Users
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc *service.Users) *UserHandler {
	return &UserHandler{service: svc}
}

// --- Request DTOs ---

// UpdateUserRequest is the JSON request body for updating a user. Nil
// fields are left unchanged. Changing the role requires the SUPER_ADMIN
// role on the caller.
type UpdateUserRequest struct {
	UserName *string `json:"user_name" validate:"omitempty,min=1,max=100"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=8"`
	Role     *string `json:"role" validate:"omitempty,oneof=USER SUPER_ADMIN"`
}

// --- Handlers ---

// Get handles GET /api/user
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor := UserFromContext(r.Context())

	user, err := h.service.Get(r.Context(), actor, r.URL.Query().Get("user_id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: user})
}

// Update handles PUT /api/user
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor := UserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req UpdateUserRequest
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

	input := service.UpdateInput{
		UserName: req.UserName,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	}

	user, err := h.service.Update(r.Context(), actor, r.URL.Query().Get("user_id"), input)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: user})
}

// Delete handles DELETE /api/user
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := UserFromContext(r.Context())

	if err := h.service.Delete(r.Context(), actor, r.URL.Query().Get("user_id")); err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]string{"status": "deleted"}})
}

// --- Shared response helpers ---

type response struct {
	Data  any            `json:"data,omitempty"`
	Error *errorResponse `json:"error,omitempty"`
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

func writeAppError(w http.ResponseWriter, _ *http.Request, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Status, response{
			Error: &errorResponse{Code: appErr.Code, Message: appErr.Message},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	code := "INTERNAL_ERROR"
	message := "an internal error occurred"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code = "NOT_FOUND"
		message = "resource not found"
	case errors.Is(err, apperrors.ErrAlreadyExists):
		code = "ALREADY_EXISTS"
		message = "resource already exists"
	case errors.Is(err, apperrors.ErrInvalidInput):
		code = "INVALID_INPUT"
		message = err.Error()
	case errors.Is(err, apperrors.ErrTokenCreation):
		code = "TOKEN_CREATION_FAILED"
		message = "failed to create session token"
	case errors.Is(err, apperrors.ErrUnauthorized):
		code = "UNAUTHORIZED"
		message = err.Error()
	case errors.Is(err, apperrors.ErrForbidden):
		code = "FORBIDDEN"
		message = err.Error()
	}

	writeJSON(w, status, response{
		Error: &errorResponse{Code: code, Message: message},
	})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	writeJSON(w, http.StatusBadRequest, response{
		Error: &errorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}
