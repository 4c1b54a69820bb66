package controllers

import (
	"chatbridge/models"

	"github.com/gin-gonic/gin"
)

// GET /api/notifications?limit=50
func ListNotifications(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	limit, ok := QueryInt(c, "limit", 50)
	if !ok {
		return
	}
	list, err := app.Notifications.List(c.Request.Context(), user.ID, int(limit))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	RespondSuccess(c, list)
}

// POST /api/notifications/read
func MarkNotificationsRead(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	if err := app.Notifications.MarkAllRead(c.Request.Context(), user.ID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, true)
}
