// Package middleware provides HTTP middleware for the gateway
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zavolah/marketplace/infra/supabase"
	"github.com/zavolah/marketplace/internal/errors"
	internalhttputil "github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
)

type tokenKey struct{}

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Claims represents the claims of a Supabase-issued access token.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 access tokens locally with the project JWT secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a local verifier.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify validates signature and expiry.
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.InvalidToken(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "invalid claims")
	}

	return &Identity{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// IdentityVerifier asks the identity provider to resolve the token.
type IdentityVerifier struct {
	auth *supabase.AuthClient
}

// NewIdentityVerifier creates a remote verifier.
func NewIdentityVerifier(auth *supabase.AuthClient) *IdentityVerifier {
	return &IdentityVerifier{auth: auth}
}

// Verify calls the identity provider.
func (v *IdentityVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	user, err := v.auth.GetUser(ctx, token)
	if err != nil {
		if supabase.IsUnauthorized(err) {
			return nil, errors.InvalidToken(err)
		}
		return nil, errors.Upstream("verify token", err)
	}
	return &Identity{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// AuthMiddleware resolves bearer tokens into the request context.
type AuthMiddleware struct {
	verifier     TokenVerifier
	logger       *logging.Logger
	skipPaths    map[string]bool
	skipPrefixes []string
	required     bool
}

// NewAuthMiddleware creates a new authentication middleware. When required
// is false, requests without a token pass through anonymously; a token that
// is present but invalid is always rejected.
func NewAuthMiddleware(verifier TokenVerifier, logger *logging.Logger, required bool, skipPaths []string) *AuthMiddleware {
	m := &AuthMiddleware{
		verifier:  verifier,
		logger:    logger,
		skipPaths: make(map[string]bool),
		required:  required,
	}
	for _, path := range skipPaths {
		if strings.HasSuffix(path, "/*") {
			m.skipPrefixes = append(m.skipPrefixes, strings.TrimSuffix(path, "*"))
			continue
		}
		m.skipPaths[path] = true
	}
	return m
}

func (m *AuthMiddleware) skip(path string) bool {
	if m.skipPaths[path] {
		return true
	}
	for _, p := range m.skipPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || m.skip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := extractToken(r)
		if err != nil {
			m.respondError(w, r, err)
			return
		}
		if tokenString == "" {
			if m.required {
				m.respondError(w, r, errors.Unauthorized("Missing Authorization header"))
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.verifier.Verify(r.Context(), tokenString)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("Token validation failed")
			m.respondError(w, r, err)
			return
		}

		ctx := logging.WithUserID(r.Context(), identity.UserID)
		if identity.Role != "" {
			ctx = logging.WithRole(ctx, identity.Role)
		}
		ctx = context.WithValue(ctx, tokenKey{}, tokenString)

		m.logger.WithContext(ctx).Debug("Authentication successful")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken reads the bearer token. Browsers cannot set headers on a
// WebSocket handshake, so access_token in the query is accepted as well.
func extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return r.URL.Query().Get("access_token"), nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.Unauthorized("Invalid Authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// respondError sends an error response
func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("Authentication failed")
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetAccessToken returns the verified bearer token, if any.
func GetAccessToken(ctx context.Context) string {
	v, _ := ctx.Value(tokenKey{}).(string)
	return v
}
