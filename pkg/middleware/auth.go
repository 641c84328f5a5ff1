package middleware

import (
	"net/http"
	"strings"

	"github.com/canopyhq/canopy/pkg/auth"
	"github.com/canopyhq/canopy/pkg/contextkeys"
	"github.com/canopyhq/canopy/pkg/httputil"
)

// AuthMiddleware resolves Bearer tokens to caller identities
type AuthMiddleware struct {
	tokens   *auth.TokenStore
	optional bool
}

// NewAuthMiddleware creates authentication middleware. With optional set,
// requests without an Authorization header pass through as anonymous;
// requests that do present a token are still rejected if it is invalid.
func NewAuthMiddleware(tokens *auth.TokenStore, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:   tokens,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		identity, err := m.tokens.ValidateToken(r.Context(), parts[1])
		if err != nil {
			// A presented-but-invalid token is rejected even in optional
			// mode rather than silently downgraded to anonymous
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity rejects anonymous requests. Used on routes that make no
// sense without a caller, such as token management.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.IdentityFromContext(r.Context()) == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
