package handlers

import (
	"net/http"

	"github.com/upb/identity-gateway/middleware"
	"github.com/upb/identity-gateway/principal"
	"github.com/upb/identity-gateway/utils"
	"go.uber.org/zap"
)

// SecureEndpointResponse wraps the decoded principal document
type SecureEndpointResponse struct {
	User *principal.Principal `json:"user"`
}

// PrincipalHandler serves the routes behind the client principal header
type PrincipalHandler struct {
	logger *zap.Logger
}

// NewPrincipalHandler creates a new PrincipalHandler
func NewPrincipalHandler(logger *zap.Logger) *PrincipalHandler {
	return &PrincipalHandler{logger: logger}
}

// HandleSecureEndpoint handles GET /secure-endpoint
func (h *PrincipalHandler) HandleSecureEndpoint(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, SecureEndpointResponse{User: p})
}

// HandleWhoAmI handles GET /whoami
func (h *PrincipalHandler) HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, p.Identity())
}

func (h *PrincipalHandler) principal(w http.ResponseWriter, r *http.Request) (*principal.Principal, bool) {
	p := middleware.GetPrincipalFromContext(r.Context())
	if p == nil {
		h.logger.Error("principal not found in context",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
		_ = utils.WriteUnauthorized(w, middleware.MsgMissingPrincipal)
		return nil, false
	}
	return p, true
}
