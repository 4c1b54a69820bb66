package services

import (
	"context"
	"fmt"
	"strings"

	"chatbridge/models"
	"chatbridge/tools"
)

// Onboarding runs the Cloud API phone registration steps for the configured
// integration.
type Onboarding struct {
	registry *Registry
	opts     DispatcherOptions
}

func NewOnboarding(registry *Registry, opts DispatcherOptions) *Onboarding {
	return &Onboarding{registry: registry, opts: opts}
}

func (o *Onboarding) integration(ctx context.Context) (*models.IntegrationConfig, error) {
	ic, err := o.registry.Current(ctx)
	if err != nil {
		return nil, err
	}
	if ic == nil {
		return nil, ErrNotConfigured
	}
	if !ic.HasCredentials() {
		return nil, ErrMissingCredentials
	}
	return ic, nil
}

func (o *Onboarding) client(ic *models.IntegrationConfig) tools.WhatsAppClient {
	return tools.WhatsAppClient{
		BaseURL:       o.opts.BaseURL,
		AccessToken:   ic.APIKey,
		ApiVersion:    ic.Version(o.opts.ApiVersion),
		PhoneNumberID: ic.PhoneNumberID,
		HTTPClient:    o.opts.HTTPClient,
	}
}

// RequestCode asks Meta to send the verification code (SMS or VOICE).
func (o *Onboarding) RequestCode(ctx context.Context, method, language string) error {
	ic, err := o.integration(ctx)
	if err != nil {
		return err
	}
	if err := o.client(ic).RequestCode(ctx, strings.TrimSpace(method), strings.TrimSpace(language)); err != nil {
		return classifySendError(err)
	}
	return nil
}

// Register registers the number with the two-step PIN and marks it registered.
func (o *Onboarding) Register(ctx context.Context, pin string) error {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return fmt.Errorf("%w: pin is required", ErrInvalidInput)
	}
	ic, err := o.integration(ctx)
	if err != nil {
		return err
	}
	if err := o.client(ic).Register(ctx, pin); err != nil {
		return classifySendError(err)
	}
	return o.registry.MarkRegistered(ctx, ic.ID)
}

// SubscribeApp subscribes the app to the business account webhooks.
func (o *Onboarding) SubscribeApp(ctx context.Context) error {
	ic, err := o.integration(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(ic.BusinessAccountID) == "" {
		return fmt.Errorf("%w: business_account_id is required", ErrInvalidInput)
	}
	waba := tools.WabaClient{
		BaseURL:     o.opts.BaseURL,
		AccessToken: ic.APIKey,
		ApiVersion:  ic.Version(o.opts.ApiVersion),
		WabaID:      ic.BusinessAccountID,
		HTTPClient:  o.opts.HTTPClient,
	}
	if err := waba.SubscribeApp(ctx); err != nil {
		return classifySendError(err)
	}
	return nil
}
