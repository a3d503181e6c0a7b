package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ratewriter/ratewriter/pkg/log"
	"github.com/ratewriter/ratewriter/pkg/metrics"
	"github.com/ratewriter/ratewriter/pkg/notify"
	"github.com/ratewriter/ratewriter/pkg/storage"
	"github.com/ratewriter/ratewriter/pkg/teslemetry"
)

// tokenVerifier is a function that validates an OIDC ID token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// Server handles the HTTP API for the RateWriter system. It manages the
// site registry and runs tariff pushes against the vendor API.
type Server struct {
	vendor        *teslemetry.Factory
	storage       storage.Database
	notifications *notify.Registry
	metrics       *metrics.Collector
	gatherer      prometheus.Gatherer

	listenAddr string
	httpServer *http.Server
	serverName string

	verifier      tokenVerifier
	encryptionKey string

	// pushSleep overrides the push pipeline's sleeps, for tests.
	pushSleep func(ctx context.Context, d time.Duration)
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(vendor *teslemetry.Factory, db storage.Database) *Server {
	reg := metrics.NewRegistry()
	srv := &Server{
		vendor:        vendor,
		storage:       db,
		notifications: notify.NewRegistry(),
		metrics:       metrics.NewCollector(reg),
		gatherer:      reg,
		serverName:    "ratewriter",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	oidcIssuer := lflag.String("auth-oidc-issuer", "", "OIDC issuer URL for bearer-token auth (empty leaves the API open)")
	oidcClientID := lflag.String("auth-oidc-client-id", "", "OIDC audience/client ID to validate")
	encryptionKey := lflag.RequiredString("token-encryption-key", "Key for sealing site API tokens at rest (32 bytes)")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr

		if *oidcIssuer != "" {
			if *oidcClientID == "" {
				log.Ctx(context.Background()).Error("auth-oidc-client-id is required when auth-oidc-issuer is set")
				os.Exit(1)
			}
			provider, err := oidc.NewProvider(context.Background(), *oidcIssuer)
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize OIDC provider", slog.Any("error", err))
				os.Exit(1)
			}
			srv.verifier = provider.Verifier(&oidc.Config{ClientID: *oidcClientID}).Verify
		}

		if len(*encryptionKey) != 32 {
			log.Ctx(context.Background()).Error("token-encryption-key must be 32 characters")
			os.Exit(1)
		}
		srv.encryptionKey = *encryptionKey
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/push", s.handlePush)
	apiMux.HandleFunc("POST /api/sites/{siteID}/push", s.handleSitePush)
	apiMux.HandleFunc("PUT /api/sites/{siteID}", s.handleUpsertSite)
	apiMux.HandleFunc("GET /api/sites/{siteID}", s.handleGetSite)
	apiMux.HandleFunc("DELETE /api/sites/{siteID}", s.handleDeleteSite)
	apiMux.HandleFunc("GET /api/sites", s.handleListSites)
	apiMux.HandleFunc("GET /api/notifications", s.handleListNotifications)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	// health and metrics are never gated behind auth
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler(s.gatherer))
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully. Pushes in flight get a
		// grace window covering a full retry sequence's worth of backoff.
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
