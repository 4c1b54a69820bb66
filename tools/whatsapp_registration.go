package tools

import (
	"context"
	"strings"
)

// RequestCode requests a verification code via SMS/VOICE.
func (c WhatsAppClient) RequestCode(ctx context.Context, method string, language string) error {
	if strings.TrimSpace(method) == "" {
		method = "SMS"
	}
	if strings.TrimSpace(language) == "" {
		language = "pt_BR"
	}
	return c.post(ctx, "request_code", map[string]any{
		"code_method": strings.ToUpper(method),
		"language":    language,
	}, nil)
}

// Register registers the phone number in Cloud API using the PIN received by the user.
func (c WhatsAppClient) Register(ctx context.Context, pin string) error {
	return c.post(ctx, "register", map[string]any{
		"messaging_product": "whatsapp",
		"pin":               pin,
	}, nil)
}
