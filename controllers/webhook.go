package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"chatbridge/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// verifyMetaSignature validates the request body against Meta's signature header.
//
// WhatsApp/Graph Webhooks send: X-Hub-Signature-256: sha256=<hex>
// The secret is the Meta App Secret, NOT the WhatsApp access token.
func verifyMetaSignature(c *gin.Context, rawBody []byte, secret string) (bool, string) {
	sig := strings.TrimSpace(c.GetHeader("X-Hub-Signature-256"))
	if sig == "" {
		return false, "missing X-Hub-Signature-256"
	}
	if !strings.HasPrefix(sig, "sha256=") {
		return false, "invalid X-Hub-Signature-256 format"
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil {
		return false, "invalid signature hex"
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return false, "signature mismatch"
	}
	return true, ""
}

func tokenMatches(given string, accepted []string) bool {
	if given == "" {
		return false
	}
	for _, t := range accepted {
		if subtle.ConstantTimeCompare([]byte(given), []byte(t)) == 1 {
			return true
		}
	}
	return false
}

// GET /api/webhook
// Meta calls ?hub.mode=subscribe&hub.verify_token=...&hub.challenge=...
func WebhookVerify(c *gin.Context) {
	app, ok := requireApp(c)
	if !ok {
		return
	}

	accepted := app.Registry.VerifyTokens(c.Request.Context(), app.Config.WhatsApp.VerifyToken)
	if len(accepted) == 0 {
		RespondError(c, "webhook verify token not configured", http.StatusInternalServerError)
		return
	}

	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	matched := tokenMatches(token, accepted)
	zap.L().Info("webhook: verify", zap.String("mode", mode), zap.Bool("token_ok", matched))

	if mode == "subscribe" && matched && challenge != "" {
		c.String(http.StatusOK, "%s", challenge)
		return
	}
	RespondError(c, "forbidden", http.StatusForbidden)
}

// POST /api/webhook
func WebhookUpdate(c *gin.Context) {
	app, ok := requireApp(c)
	if !ok {
		return
	}

	// Read raw body once so we can validate Meta signature.
	raw, err := c.GetRawData()
	if err != nil {
		RespondError(c, "failed to read body", http.StatusBadRequest)
		return
	}

	if secret := strings.TrimSpace(app.Config.WhatsApp.AppSecret); secret != "" {
		if ok, reason := verifyMetaSignature(c, raw, secret); !ok {
			RespondError(c, "forbidden: "+reason, http.StatusForbidden)
			return
		}
	}

	payload, err := services.Parse(raw)
	if err != nil {
		RespondError(c, "invalid json", http.StatusBadRequest)
		return
	}

	// responde rápido pro Meta
	c.String(http.StatusOK, "EVENT_RECEIVED")

	app.Webhooks.Dispatch(payload)
}
