package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/ws
// Upgrades to a websocket that receives every push for the logged user.
func ServeWebsocket(c *gin.Context) {
	user, ok := GetUserLogged(c)
	if !ok {
		RespondError(c, "unauthorized", http.StatusUnauthorized)
		return
	}
	hub := HubInstance(c)
	if hub == nil {
		RespondError(c, "realtime indisponível", http.StatusServiceUnavailable)
		return
	}
	if err := hub.Serve(c.Writer, c.Request, user.ID); err != nil {
		zap.L().Debug("ws: upgrade failed", zap.Int64("user", user.ID), zap.Error(err))
	}
}
