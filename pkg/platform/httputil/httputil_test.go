package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "chapel/pkg/domain-errors"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error hides message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeInternal, "db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "INTERNAL_ERROR", body.Code)
		assert.Equal(t, "Internal server error", body.Error)
	})

	t.Run("validation error keeps message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeValidation, "title is required"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "VALIDATION_ERROR", body.Code)
		assert.Equal(t, "title is required", body.Error)
	})

	t.Run("uncoded error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("boom"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "INTERNAL_ERROR", decodeError(t, w).Code)
	})
}

type subscribeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"max=5"`
}

func (r *subscribeRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	return ValidateStruct(r)
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"  member@church.kr "}`))
		w := httptest.NewRecorder()

		req, ok := DecodeAndPrepare[subscribeRequest](w, r, logger, ctx, "req-1")
		require.True(t, ok)
		assert.Equal(t, "member@church.kr", req.Email)
	})

	t.Run("empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(nil))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[subscribeRequest](w, r, logger, ctx, "req-2")
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "request body is required", decodeError(t, w).Error)
	})

	t.Run("malformed json", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[subscribeRequest](w, r, logger, ctx, "req-3")
		require.False(t, ok)
		assert.Equal(t, "BAD_REQUEST", decodeError(t, w).Code)
	})

	t.Run("validation uses json field names", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"not-an-email"}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[subscribeRequest](w, r, logger, ctx, "req-4")
		require.False(t, ok)
		body := decodeError(t, w)
		assert.Equal(t, "VALIDATION_ERROR", body.Code)
		assert.Equal(t, "email must be a valid email address", body.Error)
	})

	t.Run("body over limit", func(t *testing.T) {
		payload := `{"email":"a@b.co","name":"` + strings.Repeat("x", 64) + `"}`
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepareLimit[subscribeRequest](w, r, logger, ctx, "req-5", 16)
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeError(t, w).Code)
	})
}
