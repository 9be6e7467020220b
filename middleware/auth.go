package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"minesweeperAPI/internal/user"
)

type contextKey string

const userKey contextKey = "user"

// LegacyTokenHeader is accepted for clients that predate bearer tokens.
const LegacyTokenHeader = "x-access-token"

// SessionResolver turns a raw token into the account it belongs to.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*user.User, error)
}

// Authenticate resolves the request's token and stores the user in the context.
// Requests without a valid token are rejected with 401.
func Authenticate(resolver SessionResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractToken(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Token is missing")
				return
			}

			u, err := resolver.ResolveSession(r.Context(), token)
			if err != nil {
				logger.Debug("token rejected", zap.String("path", r.URL.Path), zap.Error(err))
				respondWithError(w, http.StatusUnauthorized, "Token is invalid")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequireRole admits only users with the given role. It must run after
// Authenticate and never looks at the token itself.
func RequireRole(role user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "User not authenticated")
				return
			}
			if u.Role != role {
				respondWithError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		token := strings.TrimPrefix(h, "Bearer ")
		if token == h || strings.TrimSpace(token) == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	if token := strings.TrimSpace(r.Header.Get(LegacyTokenHeader)); token != "" {
		return token, true
	}
	return "", false
}

func WithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the user stored by Authenticate.
func UserFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(userKey).(*user.User)
	return u, ok && u != nil
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
