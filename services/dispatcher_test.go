package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageNotConfiguredMakesNoCall(t *testing.T) {
	graph := newFakeGraph(t, replyWithID("wamid"))
	app := newTestApp(t, graph.URL, nil)

	_, err := app.Dispatcher.SendMessage(context.Background(), "5511999999999", "hi", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, int32(0), graph.calls.Load())
}

func TestSendMessageMissingCredentials(t *testing.T) {
	graph := newFakeGraph(t, replyWithID("wamid"))
	app := newTestApp(t, graph.URL, nil)
	_, err := app.Registry.UpsertIntegration(context.Background(), IntegrationPatch{PhoneNumberID: strPtr("PNID"), IsActive: boolPtr(true)})
	require.NoError(t, err)

	_, err = app.Dispatcher.SendMessage(context.Background(), "5511999999999", "hi", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Equal(t, int32(0), graph.calls.Load())
}

func TestSendMessageNormalizesRecipient(t *testing.T) {
	graph := newFakeGraph(t, replyWithID("wamid"))
	app := newTestApp(t, graph.URL, nil)
	activate(t, app)

	res, err := app.Dispatcher.SendMessage(context.Background(), "+1 (555) 123-4567", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "wamid-1", res.MessageID)

	paths, bodies := graph.requests()
	require.Len(t, bodies, 1)
	assert.Equal(t, "/v24.0/PNID/messages", paths[0])
	assert.JSONEq(t, `{"messaging_product":"whatsapp","recipient_type":"individual","to":"15551234567","type":"text","text":{"body":"hi"}}`, bodies[0])
}

func TestSendMessageUsesConfiguredApiVersion(t *testing.T) {
	ctx := context.Background()
	graph := newFakeGraph(t, replyWithID("wamid"))
	conf := testConfig(graph.URL)
	conf.WhatsApp.ApiVersion = "v99.0"
	app := NewApp(newTestDB(t), conf, nil)
	activate(t, app)

	_, err := app.Dispatcher.SendMessage(ctx, "5511999999999", "hi", "")
	require.NoError(t, err)

	// a version saved on the integration wins over the configured one
	_, err = app.Registry.UpsertIntegration(ctx, IntegrationPatch{ApiVersion: strPtr("v21.0")})
	require.NoError(t, err)
	_, err = app.Dispatcher.SendMessage(ctx, "5511999999999", "hi", "")
	require.NoError(t, err)

	paths, _ := graph.requests()
	assert.Equal(t, []string{"/v99.0/PNID/messages", "/v21.0/PNID/messages"}, paths)
}

func TestSendMessageMediaPayload(t *testing.T) {
	graph := newFakeGraph(t, replyWithID("wamid"))
	app := newTestApp(t, graph.URL, nil)
	activate(t, app)

	_, err := app.Dispatcher.SendMessage(context.Background(), "5511999999999", "sofa catalog", "https://cdn.example.com/catalog.pdf?x=1")
	require.NoError(t, err)

	_, bodies := graph.requests()
	require.Len(t, bodies, 1)
	assert.JSONEq(t, `{"messaging_product":"whatsapp","recipient_type":"individual","to":"5511999999999","type":"document","document":{"link":"https://cdn.example.com/catalog.pdf?x=1","caption":"sofa catalog"}}`, bodies[0])
}

func TestSendMessageClientErrorIsNotRetried(t *testing.T) {
	graph := newFakeGraph(t, replyWithStatus(http.StatusBadRequest, `{"error":{"message":"Invalid parameter","code":100}}`))
	app := newTestApp(t, graph.URL, nil)
	activate(t, app)

	_, err := app.Dispatcher.SendMessage(context.Background(), "5511999999999", "hi", "")
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Equal(t, "Invalid parameter", perr.Message)
	assert.False(t, perr.Temporary)
	assert.Equal(t, int32(1), graph.calls.Load())
}

func TestSendMessageRetriesServerErrors(t *testing.T) {
	graph := newFakeGraph(t, func(call int32, w http.ResponseWriter) {
		if call < 3 {
			replyWithStatus(http.StatusBadGateway, `{"error":{"message":"upstream"}}`)(call, w)
			return
		}
		replyWithID("wamid")(call, w)
	})
	app := newTestApp(t, graph.URL, nil)
	activate(t, app)

	res, err := app.Dispatcher.SendMessage(context.Background(), "5511999999999", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "wamid-3", res.MessageID)
	assert.Equal(t, int32(3), graph.calls.Load())
}

func TestSendMessageGivesUpAfterMaxAttempts(t *testing.T) {
	graph := newFakeGraph(t, replyWithStatus(http.StatusInternalServerError, `{"error":{"message":"boom"}}`))
	app := newTestApp(t, graph.URL, nil)
	activate(t, app)

	_, err := app.Dispatcher.SendMessage(context.Background(), "5511999999999", "hi", "")
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.Temporary)
	assert.Equal(t, "boom", perr.Message)
	assert.Equal(t, int32(3), graph.calls.Load())
}

func TestSendMessageTimeoutIsTemporary(t *testing.T) {
	release := make(chan struct{})
	graph := newFakeGraph(t, func(call int32, w http.ResponseWriter) {
		<-release
	})
	defer close(release)

	app := newTestApp(t, graph.URL, nil)
	activate(t, app)
	app.Dispatcher = NewDispatcher(app.Registry, DispatcherOptions{
		BaseURL:     graph.URL,
		Timeout:     50 * time.Millisecond,
		MaxAttempts: 2,
		RetryBase:   time.Millisecond,
	})

	_, err := app.Dispatcher.SendMessage(context.Background(), "5511999999999", "hi", "")
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.Temporary)
	assert.Equal(t, "request timed out", perr.Message)
	assert.Equal(t, int32(2), graph.calls.Load())
}

func TestSendMessageMissingIDIsPermanent(t *testing.T) {
	graph := newFakeGraph(t, replyWithStatus(http.StatusOK, `{"messages":[]}`))
	app := newTestApp(t, graph.URL, nil)
	activate(t, app)

	_, err := app.Dispatcher.SendMessage(context.Background(), "5511999999999", "hi", "")
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.False(t, perr.Temporary)
	assert.Equal(t, int32(1), graph.calls.Load())
}
