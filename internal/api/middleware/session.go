// Package middleware provides HTTP middleware for the bsqa API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/bsqa/internal/events"
	"github.com/hugo-lorenzo-mato/bsqa/internal/logging"
	"github.com/hugo-lorenzo-mato/bsqa/internal/session"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const sessionContextKey contextKey = "formSession"

// SessionPool looks up open form sessions.
type SessionPool interface {
	Get(id string) (*session.ConfigFormSession, bool)
}

// GetSession retrieves the form session from the request context.
// Returns nil if no session is set.
func GetSession(ctx context.Context) *session.ConfigFormSession {
	s, _ := ctx.Value(sessionContextKey).(*session.ConfigFormSession)
	return s
}

// WithSession adds a form session to the request context and tags the
// context so published events carry its id.
func WithSession(ctx context.Context, s *session.ConfigFormSession) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, s)
	if s != nil {
		ctx = events.WithSessionID(ctx, s.ID())
	}
	return ctx
}

// SessionContextMiddleware creates middleware that extracts sessionID from
// the URL and loads the corresponding form session from the pool.
//
// Error responses:
//   - 400 Bad Request: sessionID missing from URL
//   - 404 Not Found: session was never opened or is already closed
func SessionContextMiddleware(pool SessionPool, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			if sessionID == "" {
				logger.Warn("session middleware: sessionID missing from URL",
					"path", r.URL.Path,
					"method", r.Method,
				)
				writeJSONError(w, http.StatusBadRequest, "INVALID_FIELD", "sessionID is required")
				return
			}

			s, ok := pool.Get(sessionID)
			if !ok {
				logger.Debug("session middleware: unknown session",
					"session_id", sessionID,
					"path", r.URL.Path,
				)
				writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "form session not found: "+sessionID)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// RequireSession rejects requests that reach a handler without a form
// session in their context.
//
// This should be used after SessionContextMiddleware.
func RequireSession(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetSession(r.Context()) == nil {
				logger.Error("require session: no form session in request",
					"path", r.URL.Path,
					"method", r.Method,
					"hint", "ensure SessionContextMiddleware is applied before RequireSession",
				)
				writeJSONError(w, http.StatusInternalServerError, "INTERNAL", "form session not initialized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
