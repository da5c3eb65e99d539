package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"collab-engine/internal/middleware"
	"collab-engine/internal/response"
	"collab-engine/internal/session"
	"collab-engine/internal/websocket"
)

// WSHandler attaches websocket connections to existing sessions. Browsers
// cannot set Authorization headers on websocket upgrades, so the token rides
// in the query string.
type WSHandler struct {
	gateway  *websocket.Gateway
	sessions *session.Manager
	secret   string
	logger   *zap.Logger
}

func NewWSHandler(gateway *websocket.Gateway, sessions *session.Manager, secret string, logger *zap.Logger) *WSHandler {
	return &WSHandler{gateway: gateway, sessions: sessions, secret: secret, logger: logger}
}

// Handle upgrades GET /ws?token=...&session_id=... to a websocket.
func (h *WSHandler) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Token required")
		return
	}
	userID, err := middleware.ParseToken(token, h.secret)
	if err != nil {
		response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Invalid token")
		return
	}

	sessionID, err := uuid.Parse(c.Query("session_id"))
	if err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid session ID")
		return
	}

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	if sess.UserID != userID {
		response.SendError(c, http.StatusForbidden, response.ErrCodePermissionDenied, "Session belongs to another user")
		return
	}

	if err := h.gateway.Attach(c.Writer, c.Request, userID, sessionID); err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
	}
}
