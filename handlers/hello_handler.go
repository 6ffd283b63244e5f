package handlers

import (
	"net/http"

	"github.com/upb/identity-gateway/utils"
)

// HandleHello handles GET /
func HandleHello(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteMessage(w, "Hello, World!")
}
