package middleware

import (
	"context"

	"github.com/upb/identity-gateway/internal/auth"
	"github.com/upb/identity-gateway/internal/shared"
	"github.com/upb/identity-gateway/principal"
)

// Context key type to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for verified token claims
	ClaimsKey contextKey = "claims"

	// PrincipalKey is the context key for the decoded client principal
	PrincipalKey contextKey = "principal"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	return shared.RequestID(ctx)
}

// GetClaimsFromContext retrieves verified claims from context
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds verified claims to the context
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetPrincipalFromContext retrieves the client principal from context
func GetPrincipalFromContext(ctx context.Context) *principal.Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if p, ok := val.(*principal.Principal); ok {
			return p
		}
	}
	return nil
}

// WithPrincipal adds the client principal to the context
func WithPrincipal(ctx context.Context, p *principal.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}
