package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/upb/identity-gateway/internal/auth"
	"github.com/upb/identity-gateway/internal/observability"
	"github.com/upb/identity-gateway/jwks"
	"github.com/upb/identity-gateway/utils"
	"go.uber.org/zap"
)

// Client-facing messages of the bearer path.
const (
	MsgNotAuthenticated  = "Not authenticated"
	MsgPublicKeyNotFound = "Public key not found."
	MsgInvalidToken      = "Invalid token"
)

// TokenVerifier defines the interface for verifying bearer tokens
type TokenVerifier interface {
	// Verify validates a token and returns its claims
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// AuthMiddleware provides bearer token authentication
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(verifier TokenVerifier, logger *zap.Logger, metrics *observability.Metrics) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// RequireAuth is a middleware that requires a valid bearer token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractBearerToken(r)
		if token == "" {
			m.logger.Warn("missing bearer token",
				zap.String("request_id", requestID))
			_ = utils.WriteBearerUnauthorized(w, MsgNotAuthenticated)
			return
		}

		claims, err := m.verifier.Verify(ctx, token)
		if err != nil {
			m.writeVerifyError(w, requestID, err)
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", claims.Subject))

		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

// RequireRole is a middleware that requires a specific role in the token's
// roles claim. It must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				m.logger.Error("claims not found in context",
					zap.String("request_id", GetRequestIDFromContext(r.Context())))
				_ = utils.WriteBearerUnauthorized(w, MsgNotAuthenticated)
				return
			}
			if !gate(w, r, role, claims, m.logger, m.metrics) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *AuthMiddleware) writeVerifyError(w http.ResponseWriter, requestID string, err error) {
	var invalid *jwks.InvalidTokenError
	switch {
	case errors.Is(err, jwks.ErrKeyFetch):
		m.logger.Error("signing keys unavailable",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
	case errors.Is(err, jwks.ErrKeyNotFound):
		m.logger.Warn("token signed with unknown key",
			zap.String("request_id", requestID))
		_ = utils.WriteBearerUnauthorized(w, MsgPublicKeyNotFound)
	case errors.As(err, &invalid):
		m.logger.Warn("token validation failed",
			zap.String("request_id", requestID),
			zap.String("reason", invalid.Reason))
		_ = utils.WriteBearerUnauthorized(w, MsgInvalidToken+": "+invalid.Reason)
	default:
		m.logger.Warn("token validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBearerUnauthorized(w, MsgInvalidToken)
	}
}

// gate writes a 403 and returns false when holder lacks role.
func gate[T auth.RoleHolder](w http.ResponseWriter, r *http.Request, role string, holder T, logger *zap.Logger, metrics *observability.Metrics) bool {
	if _, err := auth.RequireRole(role, holder); err != nil {
		metrics.RecordRoleCheck(role, false)
		logger.Warn("insufficient permissions",
			zap.String("request_id", GetRequestIDFromContext(r.Context())),
			zap.String("required_role", role),
			zap.Strings("roles", holder.RoleList()))
		_ = utils.WriteForbidden(w, err.Error())
		return false
	}

	metrics.RecordRoleCheck(role, true)
	logger.Debug("role check passed",
		zap.String("request_id", GetRequestIDFromContext(r.Context())),
		zap.String("required_role", role))
	return true
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	// Check if it starts with "Bearer "
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
