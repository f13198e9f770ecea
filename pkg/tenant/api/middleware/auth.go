// Package middleware provides HTTP middleware for the management API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/groundplane/groundplane/pkg/tenant/api/auth"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// claimsContextKey is the context key under which validated JWT claims are
// stored.
const claimsContextKey contextKey = "jwt_claims"

// GetClaimsFromContext returns the JWT claims stored in the context by
// JWTAuth, or nil if the request was not authenticated.
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// extractBearerToken extracts the token from an Authorization header of the
// form "Bearer <token>". The scheme comparison is case-insensitive.
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

// JWTAuth returns middleware that requires a valid access token on every
// request. Validated claims are stored in the request context for handlers
// to read via GetClaimsFromContext.
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r)
			if !ok {
				writeProblem(w, http.StatusUnauthorized, "Unauthorized", "Missing or malformed Authorization header")
				return
			}

			claims, err := jwtService.ValidateAccessToken(token)
			if err != nil {
				writeProblem(w, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin returns middleware that requires the authenticated identity
// to carry the admin role. Must run after JWTAuth.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				writeProblem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
				return
			}
			if !claims.IsAdmin() {
				writeProblem(w, http.StatusForbidden, "Forbidden", "Admin role required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeProblem writes an RFC 7807 problem response. The middleware package
// cannot import the handlers package (handlers import this one), so it
// carries its own copy of the encoding.
func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "about:blank",
		"title":  title,
		"status": status,
		"detail": detail,
	})
}
