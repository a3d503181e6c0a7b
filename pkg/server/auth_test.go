package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
)

func TestAuthMiddleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	verifier := func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
		if rawIDToken == "valid-token" {
			return &oidc.IDToken{Subject: "user@example.com"}, nil
		}
		return nil, assert.AnError
	}

	t.Run("No Verifier Configured", func(t *testing.T) {
		srv := &Server{}
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/sites", nil)

		srv.authMiddleware(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Missing Header", func(t *testing.T) {
		srv := &Server{verifier: verifier}
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/sites", nil)

		srv.authMiddleware(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "missing authorization header")
	})

	t.Run("Wrong Scheme", func(t *testing.T) {
		srv := &Server{verifier: verifier}
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/sites", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

		srv.authMiddleware(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Invalid Token", func(t *testing.T) {
		srv := &Server{verifier: verifier}
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/sites", nil)
		req.Header.Set("Authorization", "Bearer nope")

		srv.authMiddleware(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid auth token")
	})

	t.Run("Valid Token", func(t *testing.T) {
		srv := &Server{verifier: verifier}
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/sites", nil)
		req.Header.Set("Authorization", "Bearer valid-token")

		srv.authMiddleware(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Healthz Stays Open", func(t *testing.T) {
		srv := newTestServer(&mockDatabase{})
		srv.verifier = verifier
		handler := srv.setupHandler()

		req := httptest.NewRequest("GET", "/healthz", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("API Gated", func(t *testing.T) {
		srv := newTestServer(&mockDatabase{})
		srv.verifier = verifier
		handler := srv.setupHandler()

		req := httptest.NewRequest("GET", "/api/sites", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
