package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/chronicle/go/internal/auth"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for timer subscriptions
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleTimerConnection upgrades the request and optionally joins the timer named by timer_id
func (h *WebSocketHandler) HandleTimerConnection(w http.ResponseWriter, r *http.Request) {
	var timerID uuid.UUID
	if raw := r.URL.Query().Get("timer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid timer_id format", http.StatusBadRequest)
			return
		}
		timerID = id
	}

	userID := connectionUserID(r)

	conn, err := h.connectionManager.UpgradeConnection(w, r, userID)
	if err != nil {
		// The upgrader has already replied to the client
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	if timerID != uuid.Nil {
		h.connectionManager.Subscribe(conn, timerID)
	}
}

// connectionUserID labels a connection for logging. Browsers cannot set headers on a
// WebSocket upgrade, so the user_id query parameter is accepted on this route only.
func connectionUserID(r *http.Request) string {
	if userID := auth.UserIDFromRequest(r); userID != "" {
		return userID
	}
	if userID := strings.TrimSpace(r.URL.Query().Get("user_id")); userID != "" {
		return userID
	}
	return "anonymous"
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/timer", h.HandleTimerConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
