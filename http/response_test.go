package http_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sagarc03/strongbox"
	strongboxhttp "github.com/sagarc03/strongbox/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"not found", strongbox.ErrNotFound, http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("read object: %w", strongbox.ErrNotFound), http.StatusNotFound, "not_found"},
		{"invalid input", strongbox.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
		{"unauthorized", strongbox.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", strongbox.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"already exists", strongbox.ErrAlreadyExists, http.StatusConflict, "already_exists"},
		{"bucket not empty", strongbox.ErrBucketNotEmpty, http.StatusConflict, "bucket_not_empty"},
		{"capability malformed", strongbox.ErrCapabilityMalformed, http.StatusForbidden, "access_denied"},
		{"capability invalid", strongbox.ErrCapabilityInvalid, http.StatusForbidden, "access_denied"},
		{"capability expired", strongbox.ErrCapabilityExpired, http.StatusForbidden, "access_denied"},
		{"persistence", fmt.Errorf("commit: %w: %w", strongbox.ErrPersistence, errors.New("db gone")), http.StatusInternalServerError, "internal_error"},
		{"storage", strongbox.ErrStorage, http.StatusInternalServerError, "internal_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			strongboxhttp.HandleError(rec, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body strongboxhttp.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantErr, body.Error)
		})
	}
}

func TestHandleError_HidesInternalText(t *testing.T) {
	rec := httptest.NewRecorder()

	strongboxhttp.HandleError(rec, fmt.Errorf("%w: pq: password authentication failed for user admin", strongbox.ErrPersistence))

	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "admin")
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()

	err := strongboxhttp.WriteJSON(rec, http.StatusCreated, map[string]string{"key": "value"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"key":"value"}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()

	strongboxhttp.WriteError(rec, http.StatusTeapot, "teapot", "I'm a teapot")

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.JSONEq(t, `{"error":"teapot","message":"I'm a teapot"}`, rec.Body.String())
}
