package models

import (
	"strings"
	"time"
)

const (
	WHATSAPP_STATUS_PENDING    = "pending"
	WHATSAPP_STATUS_REGISTERED = "registered"
)

const DEFAULT_API_VERSION = "v24.0"

// IntegrationConfig stores the WhatsApp Business API credentials of the tenant.
// Only one row may be active at a time; disconnecting flips IsActive and keeps
// everything else for a later reconnect.
type IntegrationConfig struct {
	ID                   int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	APIKey               string     `gorm:"column:api_key;type:text" json:"-"`
	PhoneNumberID        string     `gorm:"column:phone_number_id" json:"phone_number_id"`
	BusinessAccountID    string     `gorm:"column:business_account_id" json:"business_account_id"`
	ApiVersion           string     `gorm:"column:api_version" json:"api_version"`
	IsActive             bool       `gorm:"column:is_active;index" json:"is_active"`
	WebhookVerifyToken   string     `gorm:"column:webhook_verify_token" json:"webhook_verify_token"`
	AutoResponderEnabled bool       `gorm:"column:auto_responder_enabled" json:"auto_responder_enabled"`
	AutoResponderMessage string     `gorm:"column:auto_responder_message;type:text" json:"auto_responder_message"`
	LastWebhookReceived  *time.Time `gorm:"column:last_webhook_received" json:"last_webhook_received"`
	Status               string     `gorm:"column:status" json:"status"`
	CreatedAt            *time.Time `json:"created_at"`
	UpdatedAt            *time.Time `json:"updated_at"`
}

// HasCredentials reports whether both the API key and the sending phone id are set.
func (ic IntegrationConfig) HasCredentials() bool {
	return strings.TrimSpace(ic.APIKey) != "" && strings.TrimSpace(ic.PhoneNumberID) != ""
}

// Version is the Graph API version to call: the one saved on the integration,
// else fallback (from configuration), else DEFAULT_API_VERSION.
func (ic IntegrationConfig) Version(fallback string) string {
	if v := strings.TrimSpace(ic.ApiVersion); v != "" {
		return v
	}
	if v := strings.TrimSpace(fallback); v != "" {
		return v
	}
	return DEFAULT_API_VERSION
}

// AutoReply returns the configured auto-responder text, or "" when disabled.
func (ic IntegrationConfig) AutoReply() string {
	if !ic.AutoResponderEnabled {
		return ""
	}
	return strings.TrimSpace(ic.AutoResponderMessage)
}
