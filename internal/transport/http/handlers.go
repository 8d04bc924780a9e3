package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/core"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/utils"
)

// ServerName identifies this service in health responses.
const ServerName = "greentech-relay"

// APIHandlers serves the small HTTP surface next to the WebSocket endpoints.
type APIHandlers struct {
	hub     *core.Hub
	started time.Time
	log     *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(hub *core.Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		hub:     hub,
		started: time.Now(),
		log:     logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	Server        string `json:"server"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// PresenceListResponse is returned by GET /api/presence.
type PresenceListResponse struct {
	OnlineUsers []string `json:"online_users"`
	Count       int      `json:"count"`
}

// UserPresenceResponse is returned by GET /api/presence/:user_id.
type UserPresenceResponse struct {
	UserID           string `json:"user_id"`
	Online           bool   `json:"online"`
	LocalConnections int    `json:"local_connections"`
}

// Health reports liveness.
// GET /health
func (h *APIHandlers) Health(c *gin.Context) {
	now := time.Now()
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Server:        ServerName,
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
	})
}

// Ping answers with a constant body.
// GET /ping
func (h *APIHandlers) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pong": true})
}

// OnlineUsers lists users with a live connection.
// GET /api/presence
func (h *APIHandlers) OnlineUsers(c *gin.Context) {
	ids, err := h.hub.OnlineUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list online users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	users := make([]string, 0, len(ids))
	for _, id := range ids {
		users = append(users, utils.FormatUserID(id))
	}
	c.JSON(http.StatusOK, PresenceListResponse{OnlineUsers: users, Count: len(users)})
}

// UserPresence reports whether one user is online.
// GET /api/presence/:user_id
func (h *APIHandlers) UserPresence(c *gin.Context) {
	userID, ok := utils.ParseUserID(c.Param("user_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	online, err := h.hub.IsOnline(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to check presence")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, UserPresenceResponse{
		UserID:           utils.FormatUserID(userID),
		Online:           online,
		LocalConnections: h.hub.LocalConnections(userID),
	})
}
