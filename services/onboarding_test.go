package services

import (
	"context"
	"net/http"
	"testing"

	"chatbridge/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnboardingRegisterMarksIntegration(t *testing.T) {
	ctx := context.Background()
	graph := newFakeGraph(t, replyWithStatus(http.StatusOK, `{"success":true}`))
	app := newTestApp(t, graph.URL, nil)
	ic := activate(t, app)

	require.NoError(t, app.Onboarding.RequestCode(ctx, "", ""))
	require.NoError(t, app.Onboarding.Register(ctx, "123456"))

	paths, _ := graph.requests()
	assert.Equal(t, []string{"/v24.0/PNID/request_code", "/v24.0/PNID/register"}, paths)

	current, err := app.Registry.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, ic.ID, current.ID)
	assert.Equal(t, models.WHATSAPP_STATUS_REGISTERED, current.Status)

	assert.ErrorIs(t, app.Onboarding.Register(ctx, " "), ErrInvalidInput)
}

func TestOnboardingUsesConfiguredApiVersion(t *testing.T) {
	graph := newFakeGraph(t, replyWithStatus(http.StatusOK, `{"success":true}`))
	conf := testConfig(graph.URL)
	conf.WhatsApp.ApiVersion = "v99.0"
	app := NewApp(newTestDB(t), conf, nil)
	activate(t, app)

	require.NoError(t, app.Onboarding.RequestCode(context.Background(), "sms", "en_US"))

	paths, _ := graph.requests()
	assert.Equal(t, []string{"/v99.0/PNID/request_code"}, paths)
}

func TestOnboardingSubscribeNeedsBusinessAccount(t *testing.T) {
	ctx := context.Background()
	graph := newFakeGraph(t, replyWithStatus(http.StatusOK, `{"success":true}`))
	app := newTestApp(t, graph.URL, nil)

	assert.ErrorIs(t, app.Onboarding.SubscribeApp(ctx), ErrNotConfigured)

	activate(t, app)
	assert.ErrorIs(t, app.Onboarding.SubscribeApp(ctx), ErrInvalidInput)

	_, err := app.Registry.UpsertIntegration(ctx, IntegrationPatch{BusinessAccountID: strPtr("WABA")})
	require.NoError(t, err)
	require.NoError(t, app.Onboarding.SubscribeApp(ctx))

	paths, _ := graph.requests()
	assert.Equal(t, []string{"/v24.0/WABA/subscribed_apps"}, paths)
}

func TestOnboardingProviderError(t *testing.T) {
	ctx := context.Background()
	graph := newFakeGraph(t, replyWithStatus(http.StatusBadRequest, `{"error":{"message":"Invalid PIN"}}`))
	app := newTestApp(t, graph.URL, nil)
	activate(t, app)

	err := app.Onboarding.Register(ctx, "000000")
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Invalid PIN", perr.Message)

	current, err := app.Registry.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.WHATSAPP_STATUS_PENDING, current.Status)
}
