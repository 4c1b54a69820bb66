package controllers

import (
	"net/http"
	"strings"

	"chatbridge/models"
	"chatbridge/services"

	"github.com/gin-gonic/gin"
)

func messageViews(msgs []models.Message) []models.MessageView {
	out := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.View())
	}
	return out
}

// GET /api/chats/:id/messages?limit=50&before=<seq>
func ListChatMessages(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	thread, ok := loadThreadFor(c, app, user)
	if !ok {
		return
	}
	limit, ok := QueryInt(c, "limit", services.DEFAULT_PAGE_SIZE)
	if !ok {
		return
	}
	before, ok := QueryInt(c, "before", 0)
	if !ok {
		return
	}

	msgs, err := app.Threads.ListMessages(c.Request.Context(), thread.ID, int(limit), before)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, messageViews(msgs))
}

// POST /api/chats/:id/messages
// Bridged chats relay to WhatsApp first; a provider failure stores nothing
// and answers 502.
func SendChatMessage(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	var req services.OutgoingMessage
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := app.Bridge.SendToThread(c.Request.Context(), c.Param("id"), user, req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg.View())
}

type editMessageReq struct {
	Content string `json:"content"`
}

// PUT /api/messages/:id
func EditChatMessage(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	var req editMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	msg, err := app.Threads.EditMessage(c.Request.Context(), strings.TrimSpace(c.Param("id")), user.ID, req.Content)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, msg.View())
}

// POST /api/messages/:id/important
func ToggleImportantMessage(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	msg, err := app.Threads.GetMessage(ctx, strings.TrimSpace(c.Param("id")))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	thread, err := app.Threads.GetThread(ctx, msg.ThreadID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if !user.IsAdmin() && !thread.HasParticipant(user.ID) {
		RespondError(c, "sem acesso a este chat", http.StatusForbidden)
		return
	}

	msg, err = app.Threads.ToggleImportant(ctx, msg.ID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, msg.View())
}
