package app

import (
	"context"
	"fmt"

	"github.com/upb/identity-gateway/config"
	"github.com/upb/identity-gateway/internal/observability"
	"github.com/upb/identity-gateway/jwks"
	"github.com/upb/identity-gateway/middleware"
	"github.com/upb/identity-gateway/principal"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics // nil when metrics are disabled

	// Bearer mode
	KeyCache       *jwks.KeySetCache
	Verifier       *jwks.Verifier
	AuthMiddleware *middleware.AuthMiddleware

	// Principal mode
	PrincipalSource     principal.Source
	PrincipalMiddleware *middleware.PrincipalMiddleware
}

// NewDependencies creates and wires up all application dependencies.
// Only the components of the configured auth mode are built.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	switch cfg.Auth.Mode {
	case config.AuthModeBearer:
		deps.initBearer(ctx, cfg)
	case config.AuthModePrincipal:
		deps.initPrincipal(cfg)
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("auth_mode", string(cfg.Auth.Mode)),
		zap.Bool("metrics_enabled", deps.Metrics != nil))
	return deps, nil
}

// initBearer builds the key cache, the token verifier and the bearer middleware
func (d *Dependencies) initBearer(ctx context.Context, cfg *config.Config) {
	d.KeyCache = jwks.NewKeySetCache(jwks.CacheConfig{
		URL:         cfg.Auth.JWKSURL,
		TTL:         cfg.Auth.JWKSCacheTTL,
		HTTPTimeout: cfg.Auth.JWKSFetchTimeout,
	}, d.Logger.Named("jwks"), d.Metrics)

	d.Verifier = jwks.NewVerifier(d.KeyCache, jwks.VerifierConfig{
		Audience: cfg.Auth.Audience,
		Issuer:   cfg.Auth.Issuer,
		Leeway:   cfg.Auth.Leeway,
	}, d.Logger.Named("verifier"), d.Metrics)

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Verifier, d.Logger, d.Metrics)

	d.Logger.Info("bearer authentication initialized",
		zap.String("jwks_url", cfg.Auth.JWKSURL),
		zap.String("issuer", cfg.Auth.Issuer),
		zap.String("audience", cfg.Auth.Audience),
		zap.Duration("jwks_cache_ttl", cfg.Auth.JWKSCacheTTL))

	if cfg.Auth.JWKSPrefetch {
		// A failed prefetch is not fatal; the first request retries the fetch.
		if err := d.KeyCache.Warm(ctx); err != nil {
			d.Logger.Warn("signing key prefetch failed", zap.Error(err))
		}
	}
}

// initPrincipal builds the header source and the principal middleware
func (d *Dependencies) initPrincipal(cfg *config.Config) {
	d.PrincipalSource = principal.HeaderSource{Header: cfg.Auth.PrincipalHeader}
	d.PrincipalMiddleware = middleware.NewPrincipalMiddleware(d.PrincipalSource, d.Logger, d.Metrics)

	d.Logger.Warn("principal authentication trusts the client principal header; "+
		"the gateway must only be reachable through the platform that sets it",
		zap.String("header", cfg.Auth.PrincipalHeader))
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	if d.KeyCache != nil {
		d.KeyCache.Close()
	}

	// Sync logger
	_ = d.Logger.Sync()

	return nil
}
