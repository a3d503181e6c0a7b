package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ratewriter/ratewriter/pkg/log"
)

// authMiddleware gates the API behind OIDC bearer tokens when a verifier is
// configured. Without one the API is open, which is only appropriate for
// local development.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("reqPath", r.URL.Path)))

		if s.verifier == nil {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Ctx(ctx).WarnContext(ctx, "unauthenticated request")
			writeJSONError(w, "missing authorization header", http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			log.Ctx(ctx).ErrorContext(ctx, "invalid auth header")
			writeJSONError(w, "invalid auth header", http.StatusBadRequest)
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		idToken, err := s.verifier(ctx, token)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "auth token validation failed", slog.Any("error", err))
			writeJSONError(w, "invalid auth token", http.StatusUnauthorized)
			return
		}

		var claims struct {
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err == nil && claims.Email != "" {
			ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("authEmail", claims.Email)))
		}

		log.Ctx(ctx).DebugContext(ctx, "authenticated request", slog.String("subject", idToken.Subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
