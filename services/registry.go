package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatbridge/models"
	"chatbridge/tools"

	"github.com/jinzhu/gorm"
)

// IntegrationPatch carries the fields an admin wants to change. Nil pointers
// are left untouched.
type IntegrationPatch struct {
	APIKey               *string `json:"api_key"`
	PhoneNumberID        *string `json:"phone_number_id"`
	BusinessAccountID    *string `json:"business_account_id"`
	ApiVersion           *string `json:"api_version"`
	IsActive             *bool   `json:"is_active"`
	WebhookVerifyToken   *string `json:"webhook_verify_token"`
	AutoResponderEnabled *bool   `json:"auto_responder_enabled"`
	AutoResponderMessage *string `json:"auto_responder_message"`
}

func (p IntegrationPatch) empty() bool {
	return p.APIKey == nil && p.PhoneNumberID == nil && p.BusinessAccountID == nil &&
		p.ApiVersion == nil && p.IsActive == nil && p.WebhookVerifyToken == nil &&
		p.AutoResponderEnabled == nil && p.AutoResponderMessage == nil
}

// Registry owns the single WhatsApp integration record of the tenant.
type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Current returns the integration record whether or not it is active, or nil
// when it was never configured.
func (r *Registry) Current(ctx context.Context) (*models.IntegrationConfig, error) {
	var ic models.IntegrationConfig
	err := r.db.Order("id desc").First(&ic).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: load integration: %w", err)
	}
	return &ic, nil
}

// GetActiveIntegration returns the active integration or nil when none is
// configured or it was disconnected.
func (r *Registry) GetActiveIntegration(ctx context.Context) (*models.IntegrationConfig, error) {
	var ic models.IntegrationConfig
	err := r.db.Where("is_active = ?", true).Order("id desc").First(&ic).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: load active integration: %w", err)
	}
	return &ic, nil
}

// UpsertIntegration creates the record on first use and afterwards changes only
// the fields present in patch. Credentials are not checked against the provider.
func (r *Registry) UpsertIntegration(ctx context.Context, patch IntegrationPatch) (*models.IntegrationConfig, error) {
	current, err := r.Current(ctx)
	if err != nil {
		return nil, err
	}

	if current == nil {
		// sem api_version explícita segue a configuração (whatsapp.api_version)
		ic := models.IntegrationConfig{Status: models.WHATSAPP_STATUS_PENDING}
		applyPatch(&ic, patch)
		if err := r.db.Create(&ic).Error; err != nil {
			return nil, fmt.Errorf("registry: create integration: %w", err)
		}
		return &ic, nil
	}

	if patch.empty() {
		return current, nil
	}

	updates := patchUpdates(patch)
	// novo número precisa ser registrado de novo
	if patch.PhoneNumberID != nil && strings.TrimSpace(*patch.PhoneNumberID) != strings.TrimSpace(current.PhoneNumberID) {
		updates["status"] = models.WHATSAPP_STATUS_PENDING
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		if patch.IsActive != nil && *patch.IsActive {
			if err := tx.Model(&models.IntegrationConfig{}).
				Where("id <> ? AND is_active = ?", current.ID, true).
				Updates(map[string]any{"is_active": false}).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.IntegrationConfig{}).Where("id = ?", current.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, fmt.Errorf("registry: update integration: %w", err)
	}

	var saved models.IntegrationConfig
	if err := r.db.First(&saved, current.ID).Error; err != nil {
		return nil, fmt.Errorf("registry: reload integration: %w", err)
	}
	return &saved, nil
}

func applyPatch(ic *models.IntegrationConfig, p IntegrationPatch) {
	if p.APIKey != nil {
		ic.APIKey = strings.TrimSpace(*p.APIKey)
	}
	if p.PhoneNumberID != nil {
		ic.PhoneNumberID = strings.TrimSpace(*p.PhoneNumberID)
	}
	if p.BusinessAccountID != nil {
		ic.BusinessAccountID = strings.TrimSpace(*p.BusinessAccountID)
	}
	if p.ApiVersion != nil && strings.TrimSpace(*p.ApiVersion) != "" {
		ic.ApiVersion = strings.TrimSpace(*p.ApiVersion)
	}
	if p.IsActive != nil {
		ic.IsActive = *p.IsActive
	}
	if p.WebhookVerifyToken != nil {
		ic.WebhookVerifyToken = strings.TrimSpace(*p.WebhookVerifyToken)
	}
	if p.AutoResponderEnabled != nil {
		ic.AutoResponderEnabled = *p.AutoResponderEnabled
	}
	if p.AutoResponderMessage != nil {
		ic.AutoResponderMessage = *p.AutoResponderMessage
	}
}

// patchUpdates uses a map so that false and "" are written too.
func patchUpdates(p IntegrationPatch) map[string]any {
	updates := map[string]any{}
	if p.APIKey != nil {
		updates["api_key"] = strings.TrimSpace(*p.APIKey)
	}
	if p.PhoneNumberID != nil {
		updates["phone_number_id"] = strings.TrimSpace(*p.PhoneNumberID)
	}
	if p.BusinessAccountID != nil {
		updates["business_account_id"] = strings.TrimSpace(*p.BusinessAccountID)
	}
	if p.ApiVersion != nil && strings.TrimSpace(*p.ApiVersion) != "" {
		updates["api_version"] = strings.TrimSpace(*p.ApiVersion)
	}
	if p.IsActive != nil {
		updates["is_active"] = *p.IsActive
	}
	if p.WebhookVerifyToken != nil {
		updates["webhook_verify_token"] = strings.TrimSpace(*p.WebhookVerifyToken)
	}
	if p.AutoResponderEnabled != nil {
		updates["auto_responder_enabled"] = *p.AutoResponderEnabled
	}
	if p.AutoResponderMessage != nil {
		updates["auto_responder_message"] = *p.AutoResponderMessage
	}
	return updates
}

// GenerateWebhookToken returns a fresh verification token. It is not stored.
func (r *Registry) GenerateWebhookToken() string {
	return tools.TimeToken(time.Now())
}

// RotateWebhookToken generates a token and saves it on the integration.
func (r *Registry) RotateWebhookToken(ctx context.Context) (string, error) {
	token := r.GenerateWebhookToken()
	if _, err := r.UpsertIntegration(ctx, IntegrationPatch{WebhookVerifyToken: &token}); err != nil {
		return "", err
	}
	return token, nil
}

// Deactivate disconnects the integration, keeping its credentials.
func (r *Registry) Deactivate(ctx context.Context) error {
	err := r.db.Model(&models.IntegrationConfig{}).
		Where("is_active = ?", true).
		Updates(map[string]any{"is_active": false}).Error
	if err != nil {
		return fmt.Errorf("registry: deactivate: %w", err)
	}
	return nil
}

// TouchWebhook records when the provider last reached us.
func (r *Registry) TouchWebhook(ctx context.Context, at time.Time) error {
	err := r.db.Model(&models.IntegrationConfig{}).
		Where("is_active = ?", true).
		Updates(map[string]any{"last_webhook_received": at.UTC()}).Error
	if err != nil {
		return fmt.Errorf("registry: touch webhook: %w", err)
	}
	return nil
}

// MarkRegistered flags the phone number as registered on Cloud API.
func (r *Registry) MarkRegistered(ctx context.Context, id int64) error {
	return r.db.Model(&models.IntegrationConfig{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": models.WHATSAPP_STATUS_REGISTERED}).Error
}

// VerifyTokens lists the tokens accepted for the webhook handshake: the one
// stored on the integration first, then the configured fallback.
func (r *Registry) VerifyTokens(ctx context.Context, fallback string) []string {
	var tokens []string
	if ic, err := r.Current(ctx); err == nil && ic != nil && ic.WebhookVerifyToken != "" {
		tokens = append(tokens, ic.WebhookVerifyToken)
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		tokens = append(tokens, fallback)
	}
	return tokens
}
