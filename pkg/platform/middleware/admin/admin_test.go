package admin

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const secret = "maintenance-secret"

func newGuarded(t *testing.T, configured string) (http.Handler, *bool) {
	t.Helper()
	called := false
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := RequireSharedSecret(configured, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	return h, &called
}

func TestRequireSharedSecret(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		wantStatus int
		wantCalled bool
	}{
		{name: "matching secret", configured: secret, header: "Bearer " + secret, wantStatus: http.StatusOK, wantCalled: true},
		{name: "missing header", configured: secret, wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", configured: secret, header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", configured: secret, header: "Basic " + secret, wantStatus: http.StatusUnauthorized},
		{name: "disabled when unset", configured: "", header: "Bearer ", wantStatus: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, called := newGuarded(t, tt.configured)
			req := httptest.NewRequest(http.MethodPost, "/api/admin/promote", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, *called)
		})
	}
}
