package router

import (
	"net/http"

	"chatbridge/config"
	"chatbridge/controllers"
	"chatbridge/middleware"
	"chatbridge/realtime"
	"chatbridge/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Initialize wires all routes and middlewares: public routes, authenticated
// routes ("validated" once Authorizer passes) and the admin group.
func Initialize(r *gin.Engine, cfg config.Configuration, app *services.App, hub *realtime.Hub) {
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(cfg.Cors.AllowedOrigins))
	r.Use(controllers.SetAppToContext(app, hub))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// Webhook (WhatsApp Cloud API)
	api.GET("/webhook", Logger(), controllers.WebhookVerify)
	api.POST("/webhook", Logger(), controllers.WebhookUpdate)

	// Authenticated routes (token required + active user)
	validated := api.Group("")
	validated.Use(controllers.AuthRequired(), Authorizer())

	// Chats
	validated.GET("/chats", Logger(), controllers.ListChats)
	validated.POST("/chats/groups", Logger(), controllers.CreateGroupChat)
	validated.POST("/chats/direct", Logger(), controllers.CreateDirectChat)
	validated.POST("/chats/clients", Logger(), controllers.CreateClientChat)
	validated.GET("/chats/:id", Logger(), controllers.GetChat)
	validated.DELETE("/chats/:id", Logger(), controllers.DeleteChat)
	validated.POST("/chats/:id/read", Logger(), controllers.MarkChatRead)
	validated.POST("/chats/:id/whatsapp", Logger(), controllers.LinkChatWhatsApp)

	// Participants
	validated.POST("/chats/:id/participants", Logger(), controllers.AddChatParticipant)
	validated.DELETE("/chats/:id/participants/:userId", Logger(), controllers.RemoveChatParticipant)
	validated.POST("/chats/:id/participants/:userId/promote", Logger(), controllers.PromoteChatParticipant)

	// Messages
	validated.GET("/chats/:id/messages", Logger(), controllers.ListChatMessages)
	validated.POST("/chats/:id/messages", Logger(), controllers.SendChatMessage)
	validated.PUT("/messages/:id", Logger(), controllers.EditChatMessage)
	validated.POST("/messages/:id/important", Logger(), controllers.ToggleImportantMessage)

	// CRM client channels
	validated.GET("/clients/:clientId/sources", Logger(), controllers.GetClientSources)

	// Notifications
	validated.GET("/notifications", Logger(), controllers.ListNotifications)
	validated.POST("/notifications/read", Logger(), controllers.MarkNotificationsRead)

	// Realtime (sem Logger: a conexão fica aberta)
	validated.GET("/ws", controllers.ServeWebsocket)

	// Admin routes
	admin := validated.Group("")
	admin.Use(Adminizer())

	// WhatsApp integration (admin)
	admin.GET("/whatsapp/config", Logger(), controllers.GetWhatsAppConfig)
	admin.PUT("/whatsapp/config", Logger(), controllers.UpsertWhatsAppConfig)
	admin.POST("/whatsapp/disconnect", Logger(), controllers.DisconnectWhatsApp)
	admin.POST("/whatsapp/webhook-token", Logger(), controllers.RotateWebhookToken)
	admin.POST("/whatsapp/request-code", Logger(), controllers.WhatsAppRequestCode)
	admin.POST("/whatsapp/register", Logger(), controllers.WhatsAppRegister)
	admin.POST("/whatsapp/subscribe", Logger(), controllers.WhatsAppSubscribe)
	admin.POST("/whatsapp/test", Logger(), controllers.WhatsAppTestMessage)

	zap.L().Info("router: routes initialized")
}
