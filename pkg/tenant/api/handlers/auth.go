package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/groundplane/groundplane/pkg/tenant/api/auth"
	"github.com/groundplane/groundplane/pkg/tenant/api/middleware"
)

// AuthHandler handles authentication-related API endpoints.
//
// The platform runs with a single operator identity configured at deployment
// time (username plus bcrypt password hash), so there is no user store behind
// these endpoints.
type AuthHandler struct {
	username     string
	passwordHash string
	jwtService   *auth.JWTService
}

// NewAuthHandler creates a new AuthHandler for the configured operator.
func NewAuthHandler(username, passwordHash string, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{
		username:     username,
		passwordHash: passwordHash,
		jwtService:   jwtService,
	}
}

// LoginRequest is the request body for POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response body for POST /api/v1/auth/login.
type LoginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         UserResponse `json:"user"`
}

// UserResponse is a sanitized identity representation for API responses.
type UserResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// RefreshRequest is the request body for POST /api/v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login handles POST /api/v1/auth/login.
// Authenticates operator credentials and returns a JWT token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		BadRequest(w, "Username and password are required")
		return
	}

	if req.Username != h.username || !auth.VerifyPassword(req.Password, h.passwordHash) {
		Unauthorized(w, "Invalid username or password")
		return
	}

	tokenPair, err := h.jwtService.GenerateTokenPair(h.username, auth.RoleAdmin)
	if err != nil {
		InternalServerError(w, "Failed to generate token")
		return
	}

	WriteJSONOK(w, loginResponse(tokenPair, h.username))
}

// Refresh handles POST /api/v1/auth/refresh.
// Returns a new token pair using a valid refresh token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.RefreshToken == "" {
		BadRequest(w, "Refresh token is required")
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			Unauthorized(w, "Refresh token has expired")
			return
		}
		Unauthorized(w, "Invalid refresh token")
		return
	}

	// The operator identity lives in configuration; a token minted for a
	// previously configured username stops refreshing after a rename.
	if claims.Username != h.username {
		Unauthorized(w, "Unknown identity")
		return
	}

	tokenPair, err := h.jwtService.GenerateTokenPair(h.username, auth.RoleAdmin)
	if err != nil {
		InternalServerError(w, "Failed to generate token")
		return
	}

	WriteJSONOK(w, loginResponse(tokenPair, h.username))
}

// Me handles GET /api/v1/auth/me.
// Returns the current authenticated identity.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	WriteJSONOK(w, UserResponse{
		Username: claims.Username,
		Role:     claims.Role,
	})
}

// loginResponse builds the token response for login and refresh.
func loginResponse(pair *auth.TokenPair, username string) LoginResponse {
	return LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		ExpiresAt:    pair.ExpiresAt,
		User: UserResponse{
			Username: username,
			Role:     auth.RoleAdmin,
		},
	}
}
