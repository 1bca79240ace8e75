package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"taskhive/server/internal/auth"
	"taskhive/server/internal/db"
)

type ctxKey int

const ctxKeyUser ctxKey = iota

func userFrom(ctx context.Context) (*db.User, bool) {
	u, ok := ctx.Value(ctxKeyUser).(*db.User)
	return u, ok
}

// requireAuth verifies the bearer token and loads the caller. Every token
// failure mode answers 401 uniformly, with no body leakage.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		claims, err := s.deps.Tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		user, err := s.deps.Auth.GetUser(claims.UserID)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		if user.Banned {
			respondError(w, http.StatusForbidden, "USER_BANNED", "account is banned")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyUser, user)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFrom(r.Context())
		if !ok || user.Role != auth.RoleAdmin {
			respondError(w, http.StatusForbidden, "FORBIDDEN", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.deps.Log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
