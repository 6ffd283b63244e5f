package handlers

import (
	"net/http"
	"time"

	"github.com/upb/identity-gateway/jwks"
	"github.com/upb/identity-gateway/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   string            `json:"timestamp"`
	Checks      map[string]string `json:"checks,omitempty"`
	SigningKeys *jwks.CacheStats  `json:"signing_keys,omitempty"`
}

// KeyStats reports the state of the signing key cache
type KeyStats interface {
	Stats() jwks.CacheStats
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	keys   KeyStats
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. keys is nil in principal mode.
func NewHealthHandler(keys KeyStats, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		keys:   keys,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteJSON(w, http.StatusOK, response)
}

// HandleReadiness handles GET /readyz
// The key cache is lazy, so an empty cache is ready until a fetch has failed.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    map[string]string{},
	}
	httpStatus := http.StatusOK

	if h.keys != nil {
		stats := h.keys.Stats()
		response.SigningKeys = &stats
		switch {
		case stats.Cached:
			response.Checks["signing_keys"] = "healthy"
		case stats.LastError != "":
			h.logger.Warn("signing key readiness check failed", zap.String("last_error", stats.LastError))
			response.Checks["signing_keys"] = "unhealthy"
			response.Status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		default:
			response.Checks["signing_keys"] = "not_loaded"
		}
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
