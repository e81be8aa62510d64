package handler

// Every API error has the same shape:
//
//	{"error": "not_found", "message": "diagram not found with id abc123"}
//
// so clients can always read the same two fields whatever the status.

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/auth"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
)

// maxBodySize caps JSON request bodies. Diagram code is the largest field.
const maxBodySize = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// CallerResolver turns the user ID the auth middleware stored into the
// identity services act for.
type CallerResolver interface {
	Caller(ctx context.Context, userID string) (model.Caller, error)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are gone already; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status. Errors that are not
// *apperror.AppError never reach the client verbatim: they may carry SQL or
// file paths.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		slog.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	errorType := "internal_error"
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, errorType = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		status, errorType = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrForbidden):
		status, errorType = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		status, errorType = http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrExpired):
		status, errorType = http.StatusGone, "expired"
	case errors.Is(err, apperror.ErrUnauthorized):
		status, errorType = http.StatusUnauthorized, "unauthorized"
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return apperror.ValidationFailed("body", "request body is too large")
	}
	return apperror.ValidationFailed("body", "invalid JSON body")
}

// callerFrom resolves the request's caller. Anonymous requests get a guest.
func callerFrom(r *http.Request, callers CallerResolver) (model.Caller, error) {
	userID, _ := auth.UserIDFromContext(r.Context())
	return callers.Caller(r.Context(), userID)
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(key, key+" must be an integer")
	}
	return n, nil
}

// queryBool parses an optional boolean query parameter; nil means absent.
// "1" and "0" are accepted alongside true and false.
func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperror.ValidationFailed(key, key+" must be a boolean")
	}
	return &b, nil
}

// successResponse is the {success: true} body of mutations with nothing
// else to return.
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
