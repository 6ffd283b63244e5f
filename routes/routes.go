package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/identity-gateway/app"
	"github.com/upb/identity-gateway/config"
	"github.com/upb/identity-gateway/handlers"
	"github.com/upb/identity-gateway/internal/auth"
	"github.com/upb/identity-gateway/internal/observability"
	"github.com/upb/identity-gateway/internal/shared"
	"github.com/upb/identity-gateway/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Core middleware
	r.Use(observability.RequestLogger(deps.Logger, deps.Metrics))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{shared.RequestIDHeader},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	// Health check endpoints
	health := handlers.NewHealthHandler(keyStats(deps), deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// Public routes
	r.Get("/", handlers.HandleHello)

	switch cfg.Auth.Mode {
	case config.AuthModeBearer:
		bearerRoutes(r, deps)
	case config.AuthModePrincipal:
		principalRoutes(r, deps)
	}

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteMethodNotAllowed(w, "")
	})

	return r
}

// bearerRoutes mounts the routes protected by bearer tokens
func bearerRoutes(r chi.Router, deps *app.Dependencies) {
	identity := handlers.NewIdentityHandler(deps.Logger)
	authn := deps.AuthMiddleware

	r.Group(func(r chi.Router) {
		r.Use(authn.RequireAuth)
		r.Get("/whoami", identity.HandleWhoAmI)
		r.With(authn.RequireRole(auth.RoleRead)).Get("/read-data", identity.HandleReadData)
		r.With(authn.RequireRole(auth.RoleWrite)).Post("/write-data", identity.HandleWriteData)
	})
}

// principalRoutes mounts the routes protected by the client principal header
func principalRoutes(r chi.Router, deps *app.Dependencies) {
	identity := handlers.NewIdentityHandler(deps.Logger)
	principals := handlers.NewPrincipalHandler(deps.Logger)
	authn := deps.PrincipalMiddleware

	r.Group(func(r chi.Router) {
		r.Use(authn.RequirePrincipal)
		r.Get("/secure-endpoint", principals.HandleSecureEndpoint)
		r.Get("/whoami", principals.HandleWhoAmI)
		r.With(authn.RequireRole(auth.RoleRead)).Get("/read-data", identity.HandleReadData)
		r.With(authn.RequireRole(auth.RoleWrite)).Post("/write-data", identity.HandleWriteData)
	})
}

// keyStats avoids handing a typed nil cache to the health handler.
func keyStats(deps *app.Dependencies) handlers.KeyStats {
	if deps.KeyCache == nil {
		return nil
	}
	return deps.KeyCache
}
