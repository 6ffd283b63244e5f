package handlers

import (
	"net/http"

	"github.com/upb/identity-gateway/middleware"
	"github.com/upb/identity-gateway/utils"
	"go.uber.org/zap"
)

// WhoAmIResponse is the bearer variant's view of the caller
type WhoAmIResponse struct {
	Sub    string                 `json:"sub"`
	Name   *string                `json:"name"`
	Email  *string                `json:"email"`
	Roles  []string               `json:"roles"`
	Claims map[string]interface{} `json:"claims"`
}

// IdentityHandler serves the routes behind bearer authentication
type IdentityHandler struct {
	logger *zap.Logger
}

// NewIdentityHandler creates a new IdentityHandler
func NewIdentityHandler(logger *zap.Logger) *IdentityHandler {
	return &IdentityHandler{logger: logger}
}

// HandleWhoAmI handles GET /whoami
func (h *IdentityHandler) HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		h.logger.Error("claims not found in context",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
		_ = utils.WriteUnauthorized(w, middleware.MsgNotAuthenticated)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, WhoAmIResponse{
		Sub:    claims.Subject,
		Name:   claims.Name,
		Email:  claims.Email,
		Roles:  claims.RoleList(),
		Claims: claims.Raw(),
	})
}

// HandleReadData handles GET /read-data
func (h *IdentityHandler) HandleReadData(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteMessage(w, "You have READ access.")
}

// HandleWriteData handles POST /write-data
func (h *IdentityHandler) HandleWriteData(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteMessage(w, "You have WRITE access.")
}
