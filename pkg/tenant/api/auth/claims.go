// Package auth provides JWT authentication for the management API.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenType indicates whether a token is an access token or refresh token.
type TokenType string

const (
	// TokenTypeAccess is a short-lived token used for API authorization.
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh is a long-lived token used to obtain new access tokens.
	TokenTypeRefresh TokenType = "refresh"
)

// RoleAdmin is the only role the management API issues today. The platform
// has a single operator identity configured at deployment time; the role
// claim exists so tokens stay valid if finer-grained roles are added.
const RoleAdmin = "admin"

// Claims represents the JWT claims carried by management API tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Username is the authenticated operator's username.
	Username string `json:"username"`

	// Role is the operator's role.
	Role string `json:"role"`

	// TokenType indicates whether this is an access or refresh token.
	TokenType TokenType `json:"token_type"`
}

// IsAccessToken returns true if this is an access token.
func (c *Claims) IsAccessToken() bool {
	return c.TokenType == TokenTypeAccess
}

// IsRefreshToken returns true if this is a refresh token.
func (c *Claims) IsRefreshToken() bool {
	return c.TokenType == TokenTypeRefresh
}

// IsAdmin returns true if the claims carry the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}
