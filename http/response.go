package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sagarc03/strongbox"
)

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is checked in order. Capability errors come first because
// a malformed capability also wraps ErrInvalidInput.
var errorMappings = []errorMapping{
	{strongbox.ErrCapabilityMalformed, http.StatusForbidden, "access_denied", "Access denied"},
	{strongbox.ErrCapabilityInvalid, http.StatusForbidden, "access_denied", "Access denied"},
	{strongbox.ErrCapabilityExpired, http.StatusForbidden, "access_denied", "Access denied"},
	{strongbox.ErrInvalidInput, http.StatusBadRequest, "invalid_input", "Invalid input"},
	{strongbox.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "Authentication required"},
	{strongbox.ErrForbidden, http.StatusForbidden, "forbidden", "Bucket belongs to another owner"},
	{strongbox.ErrNotFound, http.StatusNotFound, "not_found", "Not found"},
	{strongbox.ErrAlreadyExists, http.StatusConflict, "already_exists", "Bucket name is taken"},
	{strongbox.ErrBucketNotEmpty, http.StatusConflict, "bucket_not_empty", "Bucket still holds objects"},
}

func lookupError(err error) (errorMapping, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m, true
		}
	}
	return errorMapping{}, false
}

func statusFor(err error) int {
	if m, ok := lookupError(err); ok {
		return m.status
	}
	return http.StatusInternalServerError
}

func isCapabilityError(err error) bool {
	return errors.Is(err, strongbox.ErrCapabilityMalformed) ||
		errors.Is(err, strongbox.ErrCapabilityInvalid) ||
		errors.Is(err, strongbox.ErrCapabilityExpired)
}

// HandleError writes appropriate error response based on error type. The
// error text itself is logged, never returned to the client.
func HandleError(w http.ResponseWriter, err error) {
	if m, ok := lookupError(err); ok {
		slog.Debug("request rejected", "status", m.status, "error", err)
		WriteError(w, m.status, m.code, m.message)
		return
	}

	slog.Error("request error", "error", err)
	WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}
