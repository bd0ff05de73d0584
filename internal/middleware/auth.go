package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/simonkvalheim/fjord-ledger/internal/auth"
	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

// ContextKey is the type for context keys to avoid collisions
type ContextKey string

// ActorKey is the context key for the authenticated actor
const ActorKey ContextKey = "actor"

// AuthMiddleware validates bearer tokens and adds the resolved actor to the context
type AuthMiddleware struct {
	provider auth.Provider
	log      logrus.FieldLogger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(provider auth.Provider, log logrus.FieldLogger) *AuthMiddleware {
	return &AuthMiddleware{provider: provider, log: log}
}

// RequireAuth is middleware that requires a valid access token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeUnauthorized(w, "Missing authorization header")
			return
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			writeUnauthorized(w, "Invalid authorization header format")
			return
		}

		actor, err := m.provider.Authenticate(strings.TrimSpace(parts[1]))
		if err != nil {
			m.log.WithField("path", r.URL.Path).WithError(err).Debug("rejected bearer token")
			writeUnauthorized(w, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// WithActor returns a copy of ctx carrying actor
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// ActorFromContext extracts the authenticated actor.
// ok is false if RequireAuth did not run for this request.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(model.Actor)
	return actor, ok
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error": "` + message + `"}`))
}
