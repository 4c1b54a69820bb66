package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"chatbridge/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inboundPayload(from, id, name, message string) []byte {
	return []byte(fmt.Sprintf(`{
	  "object": "whatsapp_business_account",
	  "entry": [{
	    "id": "WABA",
	    "changes": [{
	      "field": "messages",
	      "value": {
	        "messaging_product": "whatsapp",
	        "metadata": {"display_phone_number": "551130000000", "phone_number_id": "PNID"},
	        "contacts": [{"wa_id": %q, "profile": {"name": %q}}],
	        "messages": [%s]
	      }
	    }]
	  }]
	}`, from, name, fmt.Sprintf(message, from, id)))
}

const textMessage = `{"from": %q, "id": %q, "timestamp": "1700000000", "type": "text", "text": {"body": "Olá, o sofá ainda está disponível?"}}`

func threadsByNumber(t *testing.T, app *App, number string) []models.ChatThread {
	t.Helper()
	var threads []models.ChatThread
	require.NoError(t, app.DB.Where("whatsapp_number = ?", number).Find(&threads).Error)
	return threads
}

func TestProcessRejectsInvalidJSON(t *testing.T) {
	app := newTestApp(t, "", nil)
	err := app.Webhooks.Process(context.Background(), []byte("{nope"))
	assert.ErrorIs(t, err, ErrParse)
}

func TestWebhookCreatesThreadForNewNumber(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, "", nil)
	activate(t, app)
	admin := seedUser(t, app.DB, "gerente", models.USER_ROLE_ADMIN)

	require.NoError(t, app.Webhooks.Process(ctx, inboundPayload("5511999999999", "wamid.1", "Maria", textMessage)))
	app.Webhooks.Wait()

	threads := threadsByNumber(t, app, "5511999999999")
	require.Len(t, threads, 1)
	thread, err := app.Threads.GetThread(ctx, threads[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.THREAD_TYPE_CLIENT, thread.Type)
	assert.Equal(t, "Maria", thread.Title)
	assert.True(t, thread.IsBridged())
	assert.Equal(t, models.SourceSet{models.CHAT_SOURCE_WHATSAPP}, thread.SourceSet())
	require.Len(t, thread.Participants, 2)
	assert.Equal(t, int64(models.SYSTEM_ACTOR_ID), thread.Participants[0].UserID)
	assert.Equal(t, admin.ID, thread.Participants[1].UserID)
	assert.Equal(t, 1, thread.UnreadCount)

	msgs, err := app.Threads.ListMessages(ctx, thread.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Olá, o sofá ainda está disponível?", msgs[0].Content)
	assert.Equal(t, models.MESSAGE_STATUS_DELIVERED, msgs[0].Status)
	assert.Equal(t, "wamid.1", msgs[0].ProviderID())

	var notes []models.Notification
	require.NoError(t, app.DB.Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, admin.ID, notes[0].UserID)
	assert.Equal(t, "Maria", notes[0].Title)

	ic, err := app.Registry.GetActiveIntegration(ctx)
	require.NoError(t, err)
	assert.NotNil(t, ic.LastWebhookReceived)
}

func TestWebhookWithoutAdminTitlesFromNumber(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, "", nil)

	require.NoError(t, app.Webhooks.Process(ctx, inboundPayload("5511911112222", "wamid.x", "", textMessage)))

	threads := threadsByNumber(t, app, "5511911112222")
	require.Len(t, threads, 1)
	assert.Equal(t, "WhatsApp +5511911112222", threads[0].Title)
	thread, err := app.Threads.GetThread(ctx, threads[0].ID)
	require.NoError(t, err)
	require.Len(t, thread.Participants, 1)
	assert.Equal(t, int64(models.SYSTEM_ACTOR_ID), thread.Participants[0].UserID)
}

func TestWebhookIsIdempotent(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, "", nil)
	raw := inboundPayload("5511999999999", "wamid.dup", "Maria", textMessage)

	require.NoError(t, app.Webhooks.Process(ctx, raw))
	require.NoError(t, app.Webhooks.Process(ctx, raw))

	var count int
	app.DB.Model(&models.Message{}).Where("provider_message_id = ?", "wamid.dup").Count(&count)
	assert.Equal(t, 1, count)

	threads := threadsByNumber(t, app, "5511999999999")
	require.Len(t, threads, 1)
	assert.Equal(t, 1, threads[0].UnreadCount)
}

func TestWebhookConcurrentDeliveriesShareThread(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, "", nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := inboundPayload("5511933334444", fmt.Sprintf("wamid.c%d", i), "João", textMessage)
			assert.NoError(t, app.Webhooks.Process(ctx, raw))
		}(i)
	}
	wg.Wait()

	threads := threadsByNumber(t, app, "5511933334444")
	require.Len(t, threads, 1)
	msgs, err := app.Threads.ListMessages(ctx, threads[0].ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestWebhookConcurrentDuplicateStoredOnce(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, "", nil)
	raw := inboundPayload("5511955556666", "wamid.same", "Ana", textMessage)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, app.Webhooks.Process(ctx, raw))
		}()
	}
	wg.Wait()

	var count int
	app.DB.Model(&models.Message{}).Count(&count)
	assert.Equal(t, 1, count)
}

func TestWebhookAutoResponder(t *testing.T) {
	ctx := context.Background()
	graph := newFakeGraph(t, replyWithID("wamid.out"))
	app := newTestApp(t, graph.URL, nil)
	activate(t, app)
	_, err := app.Registry.UpsertIntegration(ctx, IntegrationPatch{
		AutoResponderEnabled: boolPtr(true),
		AutoResponderMessage: strPtr("Thanks!"),
	})
	require.NoError(t, err)

	require.NoError(t, app.Webhooks.Process(ctx, inboundPayload("5511999999999", "wamid.in", "Maria", textMessage)))
	app.Webhooks.Wait()

	assert.Equal(t, int32(1), graph.calls.Load())
	_, bodies := graph.requests()
	require.Len(t, bodies, 1)
	assert.JSONEq(t, `{"messaging_product":"whatsapp","recipient_type":"individual","to":"5511999999999","type":"text","text":{"body":"Thanks!"}}`, bodies[0])

	threads := threadsByNumber(t, app, "5511999999999")
	require.Len(t, threads, 1)
	msgs, err := app.Threads.ListMessages(ctx, threads[0].ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "wamid.in", msgs[0].ProviderID())
	assert.Equal(t, "Thanks!", msgs[1].Content)
	assert.Equal(t, models.SYSTEM_ACTOR_NAME, msgs[1].Sender().Name)

	// a redelivery of the same message does not trigger another reply
	require.NoError(t, app.Webhooks.Process(ctx, inboundPayload("5511999999999", "wamid.in", "Maria", textMessage)))
	app.Webhooks.Wait()
	assert.Equal(t, int32(1), graph.calls.Load())
}

func TestWebhookAutoResponderFailureKeepsInbound(t *testing.T) {
	ctx := context.Background()
	graph := newFakeGraph(t, replyWithStatus(400, `{"error":{"message":"bad"}}`))
	app := newTestApp(t, graph.URL, nil)
	activate(t, app)
	_, err := app.Registry.UpsertIntegration(ctx, IntegrationPatch{AutoResponderEnabled: boolPtr(true), AutoResponderMessage: strPtr("Thanks!")})
	require.NoError(t, err)

	require.NoError(t, app.Webhooks.Process(ctx, inboundPayload("5511999999999", "wamid.in", "Maria", textMessage)))
	app.Webhooks.Wait()

	var count int
	app.DB.Model(&models.Message{}).Count(&count)
	assert.Equal(t, 1, count)
}

func TestWebhookUnsupportedAndMediaMessages(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, "", nil)

	sticker := `{"from": %q, "id": %q, "timestamp": "1700000000", "type": "sticker", "sticker": {"id": "s1"}}`
	require.NoError(t, app.Webhooks.Process(ctx, inboundPayload("5511900001111", "wamid.s", "", sticker)))
	image := `{"from": %q, "id": %q, "timestamp": "1700000001", "type": "image", "image": {"id": "m1", "caption": "foto do defeito"}}`
	require.NoError(t, app.Webhooks.Process(ctx, inboundPayload("5511900001111", "wamid.i", "", image)))

	threads := threadsByNumber(t, app, "5511900001111")
	require.Len(t, threads, 1)
	msgs, err := app.Threads.ListMessages(ctx, threads[0].ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.MESSAGE_TYPE_UNSUPPORTED, msgs[0].Type)
	assert.Equal(t, "[Unsupported message: sticker]", msgs[0].Content)
	assert.Equal(t, models.MESSAGE_TYPE_IMAGE, msgs[1].Type)
	assert.Equal(t, "foto do defeito", msgs[1].Content)
}

func TestWebhookSkipsOtherFieldsAndBadItems(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, "", nil)

	raw := `{"entry":[{"changes":[
	  {"field":"account_update","value":{"messages":[{"from":"1","id":"a","type":"text","text":{"body":"x"}}]}},
	  {"field":"messages","value":{"messages":[
	    {"from":"","id":"b","type":"text","text":{"body":"no sender"}},
	    {"from":"5511922223333","id":"c","type":"text","text":{"body":"ok"}}
	  ]}}
	]}]}`
	require.NoError(t, app.Webhooks.Process(ctx, []byte(raw)))

	var msgs []models.Message
	require.NoError(t, app.DB.Find(&msgs).Error)
	require.Len(t, msgs, 1)
	assert.Equal(t, "c", msgs[0].ProviderID())
}

func TestWebhookStatusCallbacks(t *testing.T) {
	ctx := context.Background()
	graph := newFakeGraph(t, replyWithID("wamid.out"))
	app := newTestApp(t, graph.URL, nil)
	activate(t, app)
	ana := seedUser(t, app.DB, "ana", models.USER_ROLE_SALES)
	thread, err := app.Threads.CreateClientThread(ctx, "c-1", "Cliente", ana)
	require.NoError(t, err)
	require.NoError(t, app.Bridge.LinkWhatsAppToInternalChat(ctx, thread.ID, "5511999999999"))
	msg, err := app.Bridge.SendToThread(ctx, thread.ID, ana, OutgoingMessage{Content: "oi"})
	require.NoError(t, err)

	statuses := func(list ...string) []byte {
		items := make([]string, 0, len(list))
		for _, s := range list {
			items = append(items, fmt.Sprintf(`{"id":%q,"status":%q,"timestamp":"1700000000","recipient_id":"5511999999999"}`, msg.ProviderID(), s))
		}
		return []byte(`{"entry":[{"changes":[{"field":"messages","value":{"statuses":[` + strings.Join(items, ",") + `]}}]}]}`)
	}

	require.NoError(t, app.Webhooks.Process(ctx, statuses("read", "delivered", "sent")))
	stored, err := app.Threads.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MESSAGE_STATUS_READ, stored.Status)

	require.NoError(t, app.Webhooks.Process(ctx, statuses("failed")))
	stored, err = app.Threads.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MESSAGE_STATUS_READ, stored.Status)
}

func TestInboundMessageVariants(t *testing.T) {
	loc := InboundMessage{From: "1", ID: "l", Type: "location", Location: &InboundLocation{Latitude: -23.5, Longitude: -46.6, Name: "Loja"}}
	data := loc.ToMessageData("")
	assert.Equal(t, models.MESSAGE_TYPE_LOCATION, data.Type)
	assert.Equal(t, "[Location] Loja (-23.500000, -46.600000)", data.Content)

	broken := InboundMessage{From: "1", ID: "t", Type: "text"}
	assert.Equal(t, "[Unsupported message: text]", broken.ToMessageData("").Content)

	doc := InboundMessage{From: "1", ID: "d", Type: "document", Document: &InboundMedia{ID: "m", Filename: "orcamento.pdf", Link: "https://cdn/x.pdf"}}
	data = doc.ToMessageData("")
	assert.Equal(t, "orcamento.pdf", data.Content)
	assert.Equal(t, "https://cdn/x.pdf", data.MediaURL)
}
