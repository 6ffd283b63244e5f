package middleware

import (
	"errors"
	"net/http"

	"github.com/upb/identity-gateway/internal/observability"
	"github.com/upb/identity-gateway/principal"
	"github.com/upb/identity-gateway/utils"
	"go.uber.org/zap"
)

// Client-facing messages of the principal path.
const (
	MsgMissingPrincipal   = "Missing client principal header"
	MsgMalformedPrincipal = "Malformed client principal header"
)

// PrincipalMiddleware resolves the caller from a trusted principal source
type PrincipalMiddleware struct {
	source  principal.Source
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewPrincipalMiddleware creates a new PrincipalMiddleware
func NewPrincipalMiddleware(source principal.Source, logger *zap.Logger, metrics *observability.Metrics) *PrincipalMiddleware {
	return &PrincipalMiddleware{
		source:  source,
		logger:  logger,
		metrics: metrics,
	}
}

// RequirePrincipal is a middleware that requires a decodable client principal
func (m *PrincipalMiddleware) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		p, err := m.source.Principal(r)
		if err != nil {
			m.logger.Warn("client principal rejected",
				zap.String("request_id", requestID),
				zap.Error(err))
			if errors.Is(err, principal.ErrMissingPrincipal) {
				_ = utils.WriteUnauthorized(w, MsgMissingPrincipal)
				return
			}
			_ = utils.WriteUnauthorized(w, MsgMalformedPrincipal)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
	})
}

// RequireRole is a middleware that requires a "roles" claim with the given
// value. It must run after RequirePrincipal.
func (m *PrincipalMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipalFromContext(r.Context())
			if p == nil {
				m.logger.Error("principal not found in context",
					zap.String("request_id", GetRequestIDFromContext(r.Context())))
				_ = utils.WriteUnauthorized(w, MsgMissingPrincipal)
				return
			}
			if !gate(w, r, role, p, m.logger, m.metrics) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
