package controllers

import (
	"net/http"
	"strings"

	"chatbridge/models"
	"chatbridge/services"

	"github.com/gin-gonic/gin"
)

// integrationView never exposes the API key itself.
type integrationView struct {
	Configured bool                      `json:"configured"`
	HasAPIKey  bool                      `json:"has_api_key"`
	Config     *models.IntegrationConfig `json:"config"`
}

func newIntegrationView(ic *models.IntegrationConfig) integrationView {
	if ic == nil {
		return integrationView{}
	}
	return integrationView{Configured: true, HasAPIKey: strings.TrimSpace(ic.APIKey) != "", Config: ic}
}

// GET /api/whatsapp/config (admin)
func GetWhatsAppConfig(c *gin.Context) {
	app, ok := requireApp(c)
	if !ok {
		return
	}
	ic, err := app.Registry.Current(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, newIntegrationView(ic))
}

// PUT /api/whatsapp/config (admin)
// Only the fields present in the body change. Credentials are not checked
// against Meta here; use /api/whatsapp/test for that.
func UpsertWhatsAppConfig(c *gin.Context) {
	app, ok := requireApp(c)
	if !ok {
		return
	}

	var patch services.IntegrationPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	ic, err := app.Registry.UpsertIntegration(c.Request.Context(), patch)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, newIntegrationView(ic))
}

// POST /api/whatsapp/disconnect (admin)
// Returns only true.
func DisconnectWhatsApp(c *gin.Context) {
	app, ok := requireApp(c)
	if !ok {
		return
	}
	if err := app.Registry.Deactivate(c.Request.Context()); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, true)
}

// POST /api/whatsapp/webhook-token (admin)
// Generates and stores a new verify token.
func RotateWebhookToken(c *gin.Context) {
	app, ok := requireApp(c)
	if !ok {
		return
	}
	token, err := app.Registry.RotateWebhookToken(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"webhook_verify_token": token})
}

type requestCodeReq struct {
	CodeMethod string `json:"code_method"` // SMS | VOICE
	Language   string `json:"language"`    // pt_BR
}

// POST /api/whatsapp/request-code (admin)
// Requests a verification code to the business phone number.
// Returns only true.
func WhatsAppRequestCode(c *gin.Context) {
	app, ok := requireApp(c)
	if !ok {
		return
	}

	var req requestCodeReq
	_ = c.ShouldBindJSON(&req) // optional body

	if err := app.Onboarding.RequestCode(c.Request.Context(), req.CodeMethod, req.Language); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, true)
}

type registerReq struct {
	Pin string `json:"pin"`
}

// POST /api/whatsapp/register (admin)
// Registers the business phone number in Cloud API using the PIN.
// Returns only true.
func WhatsAppRegister(c *gin.Context) {
	app, ok := requireApp(c)
	if !ok {
		return
	}

	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Pin) == "" {
		RespondError(c, "pin é obrigatório", http.StatusBadRequest)
		return
	}

	if err := app.Onboarding.Register(c.Request.Context(), req.Pin); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, true)
}

// POST /api/whatsapp/subscribe (admin)
// Subscribes the app to the business account webhooks.
func WhatsAppSubscribe(c *gin.Context) {
	app, ok := requireApp(c)
	if !ok {
		return
	}
	if err := app.Onboarding.SubscribeApp(c.Request.Context()); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, true)
}

type testMessageReq struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// POST /api/whatsapp/test (admin)
// Sends a text through the active integration.
func WhatsAppTestMessage(c *gin.Context) {
	app, ok := requireApp(c)
	if !ok {
		return
	}

	var req testMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.To) == "" {
		RespondError(c, "to é obrigatório", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		req.Message = "Teste de integração WhatsApp"
	}

	res, err := app.Dispatcher.SendMessage(c.Request.Context(), req.To, req.Message, "")
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, res)
}
