package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/credential-store/api"
	"github.com/ruteri/credential-store/credentials"
	"github.com/ruteri/credential-store/interfaces"
)

// maxBodySize is the maximum allowed request body size (64KB).
const maxBodySize = 64 * 1024

// Handler serves the user API on top of a credential store.
type Handler struct {
	store interfaces.CredentialStore
	log   *slog.Logger
}

// NewHandler creates a new HTTP request handler.
func NewHandler(store interfaces.CredentialStore, log *slog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log,
	}
}

// HandleCreateUser creates a user record.
//
// URL format: POST /api/users
// Request body: {"username": "...", "password": "...", "admin": true|false (optional)}
func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req api.CreateUserRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Password == "" {
		h.writeError(w, badRequest("password is required"))
		return
	}

	if _, err := h.store.Update(r.Context(), req.Username, req.Password, interfaces.NewAdminFlag(req.Admin), false); err != nil {
		h.log.Error("Failed to create user", "err", err, slog.String("username", req.Username))
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, api.UserResponse{Username: req.Username, Status: "created"})
}

// HandleUpdateUser rewrites the password, and optionally the admin flag, of an
// existing user.
//
// URL format: PUT /api/users/{username}
// Request body: {"password": "...", "admin": true|false (optional)}
func (h *Handler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req api.UpdateUserRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Password == "" {
		h.writeError(w, badRequest("password is required"))
		return
	}

	if _, err := h.store.Update(r.Context(), username, req.Password, interfaces.NewAdminFlag(req.Admin), true); err != nil {
		h.log.Error("Failed to update user", "err", err, slog.String("username", username))
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.UserResponse{Username: username, Status: "updated"})
}

// HandleDeleteUser removes a user record and everything below it.
//
// URL format: DELETE /api/users/{username}
func (h *Handler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	// Users created before this process started are only known to the store.
	exists, err := h.store.Exists(r.Context(), username)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !exists {
		h.writeError(w, fmt.Errorf("%w: %s", interfaces.ErrUserNotFound, username))
		return
	}

	if _, err := h.store.Remove(r.Context(), username); err != nil {
		h.log.Error("Failed to remove user", "err", err, slog.String("username", username))
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.UserResponse{Username: username, Status: "removed"})
}

// HandleVerify checks a password. Unknown users verify as invalid.
//
// URL format: POST /api/users/{username}/verify
// Request body: {"password": "..."}
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req api.VerifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	resp := api.VerifyResponse{Username: username}

	valid, err := h.store.Verify(r.Context(), username, req.Password)
	if err != nil && !errors.Is(err, interfaces.ErrUserNotFound) {
		h.writeError(w, err)
		return
	}
	resp.Valid = valid

	if valid {
		admin, err := h.store.IsAdmin(r.Context(), username)
		if err != nil {
			h.writeError(w, err)
			return
		}
		resp.Admin = admin
	}

	writeJSON(w, http.StatusOK, resp)
}

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func badRequest(msg string) *RequestError {
	return &RequestError{StatusCode: http.StatusBadRequest, Err: errors.New(msg)}
}

// statusFor maps store errors onto HTTP statuses.
func statusFor(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, interfaces.ErrInvalidUsername):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrUserNotFound):
		return http.StatusNotFound
	case credentials.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrRemoteStore), errors.Is(err, interfaces.ErrBackendUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusConflict {
		msg = "user already exists"
	}
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid request body: %w", err)}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
