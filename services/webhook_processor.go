package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chatbridge/models"
	"chatbridge/tools"

	"go.uber.org/zap"
)

// WebhookProcessor turns WhatsApp webhook events into thread messages and
// status updates.
type WebhookProcessor struct {
	registry         *Registry
	directory        *Directory
	threads          *ThreadService
	bridge           *SyncBridge
	sender           MessageSender
	tracker          *StatusTracker
	notify           NotifyFunc
	locks            *KeyedMutex
	autoReplyTimeout time.Duration

	wg sync.WaitGroup
}

type WebhookProcessorDeps struct {
	Registry         *Registry
	Directory        *Directory
	Threads          *ThreadService
	Bridge           *SyncBridge
	Sender           MessageSender
	Tracker          *StatusTracker
	Notify           NotifyFunc
	Locks            *KeyedMutex
	AutoReplyTimeout time.Duration
}

func NewWebhookProcessor(d WebhookProcessorDeps) *WebhookProcessor {
	if d.AutoReplyTimeout <= 0 {
		d.AutoReplyTimeout = 30 * time.Second
	}
	return &WebhookProcessor{
		registry:         d.Registry,
		directory:        d.Directory,
		threads:          d.Threads,
		bridge:           d.Bridge,
		sender:           d.Sender,
		tracker:          d.Tracker,
		notify:           d.Notify,
		locks:            d.Locks,
		autoReplyTimeout: d.AutoReplyTimeout,
	}
}

// Parse decodes a raw webhook body. Only malformed JSON is an error.
func Parse(raw []byte) (WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return WebhookPayload{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return payload, nil
}

// Process parses raw and handles it synchronously.
func (p *WebhookProcessor) Process(ctx context.Context, raw []byte) error {
	payload, err := Parse(raw)
	if err != nil {
		return err
	}
	return p.HandleWebhook(ctx, payload)
}

// Dispatch handles payload in the background; Wait blocks until it is done.
func (p *WebhookProcessor) Dispatch(payload WebhookPayload) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.HandleWebhook(context.Background(), payload); err != nil {
			zap.L().Error("webhook: processing failed", zap.Error(err))
		}
	}()
}

// Wait blocks until background work (webhook batches and auto-replies) ends.
func (p *WebhookProcessor) Wait() {
	p.wg.Wait()
}

// HandleWebhook applies every message and status of the payload. A failing
// item is logged and skipped, the rest of the batch still runs.
func (p *WebhookProcessor) HandleWebhook(ctx context.Context, payload WebhookPayload) error {
	if err := p.registry.TouchWebhook(ctx, now()); err != nil {
		zap.L().Warn("webhook: touch integration", zap.Error(err))
	}

	autoReply := ""
	if ic, err := p.registry.GetActiveIntegration(ctx); err != nil {
		zap.L().Warn("webhook: load integration", zap.Error(err))
	} else if ic != nil {
		autoReply = ic.AutoReply()
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if strings.TrimSpace(change.Field) != "messages" {
				continue
			}
			names := contactNames(change.Value.Contacts)

			for _, m := range change.Value.Messages {
				data := m.ToMessageData(names[strings.TrimSpace(m.From)])
				if err := p.safeHandleMessage(ctx, data, autoReply); err != nil {
					zap.L().Error("webhook: message dropped",
						zap.String("from", data.From),
						zap.String("id", data.ID),
						zap.Error(err))
				}
			}

			for _, st := range change.Value.Statuses {
				p.handleStatus(ctx, st)
			}
		}
	}
	return nil
}

func (p *WebhookProcessor) safeHandleMessage(ctx context.Context, data WhatsAppMessageData, autoReply string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.handleMessage(ctx, data, autoReply)
}

func (p *WebhookProcessor) handleMessage(ctx context.Context, data WhatsAppMessageData, autoReply string) error {
	data.From = tools.NormalizeWhatsAppTo(data.From)
	if data.From == "" || data.ID == "" {
		return fmt.Errorf("%w: message without sender or id", ErrInvalidInput)
	}

	unlock := p.locks.Lock("number:" + data.From)
	defer unlock()

	seen, err := p.threads.HasProviderMessage(ctx, data.ID)
	if err != nil {
		return err
	}
	if seen {
		zap.L().Debug("webhook: duplicate message ignored", zap.String("id", data.ID))
		return nil
	}

	thread, err := p.resolveThread(ctx, data)
	if err != nil {
		return err
	}

	msg := p.bridge.BuildInternalMessage(thread.ID, data)
	if err := p.threads.AppendMessage(ctx, thread, &msg, true); err != nil {
		if isUniqueViolation(err) {
			zap.L().Debug("webhook: duplicate message ignored", zap.String("id", data.ID))
			return nil
		}
		return err
	}

	p.bridge.NotifyInbound(ctx, thread.ID, msg, p.notify)

	if autoReply != "" {
		p.autoRespond(*thread, data.From, autoReply)
	}
	return nil
}

// resolveThread finds the bridged thread of the sender or opens one. The
// caller holds the number lock.
func (p *WebhookProcessor) resolveThread(ctx context.Context, data WhatsAppMessageData) (*models.ChatThread, error) {
	thread, err := p.threads.FindByNumber(ctx, data.From)
	if err != nil || thread != nil {
		return thread, err
	}

	admin, err := p.directory.FirstAdmin(ctx)
	if err != nil {
		return nil, err
	}
	thread, err = p.threads.CreateBridgedThread(ctx, data.From, data.ContactName, admin)
	if err != nil {
		// outro processo criou antes
		if isUniqueViolation(err) {
			if existing, ferr := p.threads.FindByNumber(ctx, data.From); ferr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	zap.L().Info("webhook: thread opened for new contact", zap.String("from", data.From), zap.String("thread", thread.ID))
	return thread, nil
}

func (p *WebhookProcessor) autoRespond(thread models.ChatThread, to, reply string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.autoReplyTimeout)
		defer cancel()

		res, err := p.sender.SendMessage(ctx, to, reply, "")
		if err != nil {
			zap.L().Warn("webhook: auto-reply failed", zap.String("to", to), zap.Error(err))
			return
		}

		msg := models.Message{
			Content:           reply,
			Type:              models.MESSAGE_TYPE_TEXT,
			Source:            models.CHAT_SOURCE_WHATSAPP,
			Status:            models.MESSAGE_STATUS_SENT,
			ProviderMessageID: &res.MessageID,
		}
		msg.SetSender(models.SystemSender())
		if err := p.threads.AppendMessage(ctx, &thread, &msg, false); err != nil {
			zap.L().Warn("webhook: store auto-reply", zap.String("thread", thread.ID), zap.Error(err))
			return
		}
		p.tracker.ApplyParkedStatuses(ctx, res.MessageID)
	}()
}

func (p *WebhookProcessor) handleStatus(ctx context.Context, st InboundStatus) {
	applied, err := p.tracker.ApplyProviderStatus(ctx, strings.TrimSpace(st.ID), st.Status)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidInput):
		zap.L().Debug("webhook: status ignored", zap.String("id", st.ID), zap.String("status", st.Status), zap.Error(err))
	case err != nil:
		zap.L().Warn("webhook: status update failed", zap.String("id", st.ID), zap.Error(err))
	case applied:
		zap.L().Debug("webhook: status applied", zap.String("id", st.ID), zap.String("status", st.Status))
	}
}
