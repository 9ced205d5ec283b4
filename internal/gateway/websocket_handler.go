package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler is the HTTP entry point for client sockets.
type WebSocketHandler struct {
	manager *ConnectionManager
}

func NewWebSocketHandler(manager *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{manager: manager}
}

// HandleWebSocket upgrades the request and registers the connection.
// TODO: replace the user_id query param with JWT validation once the auth
// service issues tokens.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")

	if err := h.manager.UpgradeConnection(w, r, userID); err != nil {
		log.Error().Err(err).Msg("failed to establish WebSocket connection")
		http.Error(w, "Failed to establish WebSocket connection", http.StatusInternalServerError)
		return
	}
}
