package jwks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/identity-gateway/internal/auth"
	"github.com/upb/identity-gateway/internal/observability"
	"go.uber.org/zap"
)

// KeyProvider supplies the current signing key set.
type KeyProvider interface {
	Get(ctx context.Context) (*KeySet, error)
}

// VerifierConfig holds configuration for Verifier
type VerifierConfig struct {
	Audience string
	Issuer   string
	// Leeway tolerates clock skew on exp, nbf and iat.
	Leeway time.Duration
}

// Verifier validates RS256 bearer tokens against a KeyProvider.
type Verifier struct {
	keys    KeyProvider
	parser  *jwt.Parser
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewVerifier creates a token verifier. Only RS256 is accepted regardless of
// the alg the token announces.
func NewVerifier(keys KeyProvider, cfg VerifierConfig, logger *zap.Logger, metrics *observability.Metrics) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuedAt(),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}

	return &Verifier{
		keys:    keys,
		parser:  jwt.NewParser(opts...),
		logger:  logger,
		metrics: metrics,
	}
}

// Verify validates tokenString and returns its claims.
//
// Errors:
//   - ErrKeyFetch when the key set cannot be obtained
//   - ErrKeyNotFound (together with ErrInvalidToken) for an unknown kid
//   - *InvalidTokenError for every other rejection
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*auth.Claims, error) {
	keys, err := v.keys.Get(ctx)
	if err != nil {
		v.metrics.RecordVerification(observability.ResultKeyFetchError)
		return nil, err
	}

	mapClaims := jwt.MapClaims{}
	_, err = v.parser.ParseWithClaims(tokenString, mapClaims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errMissingKid
		}
		key, ok := keys.Lookup(kid)
		if !ok {
			return nil, ErrKeyNotFound
		}
		return key, nil
	})
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			v.metrics.RecordVerification(observability.ResultKeyNotFound)
			v.logger.Debug("token signed with unknown key", zap.Error(err))
			return nil, &InvalidTokenError{Reason: ErrKeyNotFound.Error(), Err: ErrKeyNotFound}
		}
		v.metrics.RecordVerification(observability.ResultInvalid)
		v.logger.Debug("token rejected", zap.Error(err))
		return nil, &InvalidTokenError{Reason: reason(err), Err: err}
	}

	// Every identity must name its subject.
	if sub, ok := mapClaims[auth.ClaimSubject].(string); !ok || sub == "" {
		v.metrics.RecordVerification(observability.ResultInvalid)
		v.logger.Debug("token rejected", zap.String("reason", "missing sub claim"))
		err := fmt.Errorf("%w: sub", jwt.ErrTokenRequiredClaimMissing)
		return nil, &InvalidTokenError{Reason: reason(err), Err: err}
	}

	v.metrics.RecordVerification(observability.ResultSuccess)
	return auth.NewClaims(mapClaims), nil
}

var errMissingKid = errors.New("kid header not found")

// reason turns a parser error into a short client-facing message.
func reason(err error) string {
	switch {
	case errors.Is(err, errMissingKid):
		return errMissingKid.Error()
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "token is malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature is invalid"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token has expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "token is not valid yet"
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return "token used before issued"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "invalid audience"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "invalid issuer"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "token is missing required claim"
	default:
		return err.Error()
	}
}
