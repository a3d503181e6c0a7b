package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ratewriter/ratewriter/pkg/metrics"
	"github.com/ratewriter/ratewriter/pkg/notify"
	"github.com/ratewriter/ratewriter/pkg/storage"
	"github.com/stretchr/testify/assert"
)

// 32-byte key for AES-256
const testEncryptionKey = "01234567890123456789012345678901"

func newTestServer(db storage.Database) *Server {
	reg := metrics.NewRegistry()
	return &Server{
		storage:       db,
		notifications: notify.NewRegistry(),
		metrics:       metrics.NewCollector(reg),
		gatherer:      reg,
		listenAddr:    ":8080",
		encryptionKey: testEncryptionKey,
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&mockDatabase{})
	handler := srv.setupHandler()

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(&mockDatabase{})
	handler := srv.setupHandler()

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "max-age=63072000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
}

func TestServerHeader(t *testing.T) {
	srv := newTestServer(&mockDatabase{})
	srv.serverName = "ratewriter-rev1"
	handler := srv.setupHandler()

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "ratewriter-rev1", w.Header().Get("Server"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&mockDatabase{})
	srv.metrics.ObservePush(true, 1, time.Millisecond)
	handler := srv.setupHandler()

	t.Run("Exposes Metrics", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/metrics", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "go_goroutines", "runtime collectors should be registered")
		assert.Contains(t, body, `ratewriter_push_total{outcome="success"} 1`)
	})

	t.Run("Compresses When Accepted", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/metrics", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	})
}

func TestRouting(t *testing.T) {
	srv := newTestServer(&mockDatabase{})
	handler := srv.setupHandler()

	t.Run("Unknown API Path", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/nope", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Wrong Method", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/push", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}
