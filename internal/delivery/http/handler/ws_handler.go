package handler

import (
	"github.com/ammar0101/campus-security-system/internal/platform/realtime"
	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type WSHandler struct {
	hub            *realtime.Hub
	originPatterns []string
	logger         *zap.Logger
}

func NewWSHandler(hub *realtime.Hub, originPatterns []string, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, originPatterns: originPatterns, logger: logger}
}

// Serve ouvre la connexion temps réel de l'utilisateur authentifié.
func (h *WSHandler) Serve(c *gin.Context) {
	id := identity(c)
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", id.UserID), zap.Error(err))
		return
	}

	if err := h.hub.Serve(c.Request.Context(), conn, id.UserID, realtime.RoomsFor(id)); err != nil {
		h.logger.Debug("websocket closed", zap.String("user_id", id.UserID), zap.Error(err))
	}
}
