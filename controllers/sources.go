package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// GET /api/clients/:clientId/sources
// Channels the client has been reached on; {"sources":["internal"]} when none.
func GetClientSources(c *gin.Context) {
	app, ok := requireApp(c)
	if !ok {
		return
	}
	clientID := strings.TrimSpace(c.Param("clientId"))
	if clientID == "" {
		RespondError(c, "clientId é obrigatório", http.StatusBadRequest)
		return
	}
	set, err := app.Bridge.GetConnectedChatSources(c.Request.Context(), clientID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"client_id": clientID, "sources": set})
}
