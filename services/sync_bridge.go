package services

import (
	"context"
	"fmt"
	"strings"

	"chatbridge/models"
	"chatbridge/tools"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

const NOTIFICATION_PREVIEW_RUNES = 50

// OutgoingMessage is what a user writes in the chat UI.
type OutgoingMessage struct {
	Content     string           `json:"content"`
	MediaURL    string           `json:"media_url"`
	ReplyTo     *models.ReplyRef `json:"reply_to"`
	IsImportant bool             `json:"is_important"`
}

func (m OutgoingMessage) empty() bool {
	return strings.TrimSpace(m.Content) == "" && strings.TrimSpace(m.MediaURL) == ""
}

// SyncBridge keeps internal threads and their WhatsApp conversations in step.
type SyncBridge struct {
	db       *gorm.DB
	sender   MessageSender
	threads  *ThreadService
	tracker  *StatusTracker
	simulate bool
}

func NewSyncBridge(db *gorm.DB, sender MessageSender, threads *ThreadService, tracker *StatusTracker, simulate bool) *SyncBridge {
	return &SyncBridge{db: db, sender: sender, threads: threads, tracker: tracker, simulate: simulate}
}

// SyncInternalToWhatsApp relays an internal message to a WhatsApp number.
// Empty messages are rejected before any network call.
func (b *SyncBridge) SyncInternalToWhatsApp(ctx context.Context, phone string, msg OutgoingMessage) (SendResult, error) {
	if msg.empty() {
		return SendResult{}, ErrEmptyMessage
	}
	return b.sender.SendMessage(ctx, phone, msg.Content, msg.MediaURL)
}

// BuildInternalMessage turns inbound WhatsApp data into the message stored in
// chatID. Nothing is written.
func (b *SyncBridge) BuildInternalMessage(chatID string, data WhatsAppMessageData) models.Message {
	providerID := data.ID
	name := data.ContactName
	if name == "" {
		name = "+" + data.From
	}
	msg := models.Message{
		ID:        uuid.NewString(),
		ThreadID:  chatID,
		Content:   data.Content,
		Type:      data.Type,
		MediaURL:  data.MediaURL,
		Source:    models.CHAT_SOURCE_WHATSAPP,
		Status:    models.MESSAGE_STATUS_DELIVERED,
		Timestamp: data.Timestamp,
	}
	if providerID != "" {
		msg.ProviderMessageID = &providerID
	}
	if msg.Type == "" {
		msg.Type = models.MESSAGE_TYPE_TEXT
	}
	msg.SetSender(models.Sender{ID: "whatsapp:" + data.From, Name: name})
	return msg
}

// SyncWhatsAppToInternal builds the internal stub for an inbound message and,
// when notify is given, tells the thread about it. A failing notification
// never fails the sync.
func (b *SyncBridge) SyncWhatsAppToInternal(ctx context.Context, chatID string, data WhatsAppMessageData, notify NotifyFunc) (SendResult, error) {
	msg := b.BuildInternalMessage(chatID, data)
	b.NotifyInbound(ctx, chatID, msg, notify)
	return SendResult{MessageID: msg.ID}, nil
}

// NotifyInbound sends the "new message" notice for msg to the thread.
func (b *SyncBridge) NotifyInbound(ctx context.Context, chatID string, msg models.Message, notify NotifyFunc) {
	if notify == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("bridge: notifier panicked", zap.String("thread", chatID), zap.Any("panic", r))
		}
	}()

	sender := msg.Sender().Name
	n := Notification{
		Title:   sender,
		Message: tools.Truncate(msg.Content, NOTIFICATION_PREVIEW_RUNES),
		Type:    models.NOTIFICATION_TYPE_MESSAGE,
		Link:    "/chat?thread=" + chatID,
		Sender:  sender,
	}
	if err := notify(ctx, chatID, n); err != nil {
		zap.L().Warn("bridge: notification failed", zap.String("thread", chatID), zap.Error(err))
	}
}

// GetConnectedChatSources is the union of the sources of every thread linked
// to clientID, or {internal} when there is nothing on record.
func (b *SyncBridge) GetConnectedChatSources(ctx context.Context, clientID string) (models.SourceSet, error) {
	var raw []string
	err := b.db.Model(&models.ChatThread{}).Where("client_id = ?", strings.TrimSpace(clientID)).Pluck("sources", &raw).Error
	if err != nil {
		return nil, fmt.Errorf("bridge: load sources of %s: %w", clientID, err)
	}
	set := models.SourceSet{}
	for _, r := range raw {
		set = set.Union(models.ParseSourceSet(r))
	}
	if len(set) == 0 {
		return models.NewSourceSet(models.CHAT_SOURCE_INTERNAL), nil
	}
	return set, nil
}

// CreateLinkedClientThread opens a client thread already bridged to number.
// Nothing is written when the number belongs to another thread.
func (b *SyncBridge) CreateLinkedClientThread(ctx context.Context, clientID, clientName string, owner models.User, number string) (*models.ChatThread, error) {
	number = tools.NormalizeWhatsAppTo(number)
	if number == "" {
		return nil, fmt.Errorf("%w: whatsapp number is required", ErrInvalidInput)
	}
	thread, err := clientThread(clientID, clientName)
	if err != nil {
		return nil, err
	}

	unlock := b.threads.locks.Lock("number:" + number)
	defer unlock()

	var taken int
	if err := b.db.Model(&models.ChatThread{}).Where("whatsapp_number = ?", number).Count(&taken).Error; err != nil {
		return nil, fmt.Errorf("bridge: check number: %w", err)
	}
	if taken > 0 {
		return nil, ErrNumberInUse
	}

	thread.WhatsAppNumber = &number
	thread.IsWhatsAppIntegrated = true
	thread.Sources = models.NewSourceSet(models.CHAT_SOURCE_INTERNAL, models.CHAT_SOURCE_WHATSAPP).String()

	created, err := b.threads.create(ctx, &thread, []models.ChatParticipant{models.ParticipantFromUser(owner, models.PARTICIPANT_ROLE_ADMIN)})
	if err != nil {
		// outro processo pode ter ligado o número entre a checagem e o insert
		if isUniqueViolation(err) {
			return nil, ErrNumberInUse
		}
		return nil, err
	}
	zap.L().Info("bridge: client chat opened on whatsapp", zap.String("thread", created.ID), zap.String("number", number))
	return created, nil
}

// LinkWhatsAppToInternalChat bridges chatID to number. Linking the same pair
// again changes nothing.
func (b *SyncBridge) LinkWhatsAppToInternalChat(ctx context.Context, chatID, number string) error {
	number = tools.NormalizeWhatsAppTo(number)
	if number == "" {
		return fmt.Errorf("%w: whatsapp number is required", ErrInvalidInput)
	}

	unlock := b.threads.locks.Lock("number:" + number)
	defer unlock()

	thread, err := b.threads.GetThread(ctx, chatID)
	if err != nil {
		return err
	}
	if thread.Number() == number && thread.IsWhatsAppIntegrated {
		return nil
	}

	var owner models.ChatThread
	err = b.db.Select("id").Where("whatsapp_number = ? AND id <> ?", number, chatID).First(&owner).Error
	if err == nil {
		return ErrNumberInUse
	}
	if !gorm.IsRecordNotFoundError(err) {
		return fmt.Errorf("bridge: check number: %w", err)
	}

	sources := thread.SourceSet().With(models.CHAT_SOURCE_WHATSAPP)
	err = b.db.Model(&models.ChatThread{}).Where("id = ?", chatID).Updates(map[string]any{
		"whatsapp_number":        number,
		"is_whatsapp_integrated": true,
		"sources":                sources.String(),
	}).Error
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNumberInUse
		}
		return fmt.Errorf("bridge: link %s: %w", chatID, err)
	}

	zap.L().Info("bridge: chat linked to whatsapp", zap.String("thread", chatID), zap.String("number", number))
	_, err = b.threads.touched(ctx, chatID)
	return err
}

// SendToThread is the chat UI send action. Bridged threads relay to WhatsApp
// first and only store the message once the provider accepted it; internal
// threads store it and start the simulated delivery.
func (b *SyncBridge) SendToThread(ctx context.Context, threadID string, author models.User, out OutgoingMessage) (*models.Message, error) {
	if out.empty() {
		return nil, ErrEmptyMessage
	}
	thread, err := b.threads.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(author.ID) {
		return nil, fmt.Errorf("%w: not a participant of this chat", ErrForbidden)
	}

	msg := models.Message{
		Content:     out.Content,
		MediaURL:    strings.TrimSpace(out.MediaURL),
		Type:        models.MESSAGE_TYPE_TEXT,
		Source:      models.CHAT_SOURCE_INTERNAL,
		Status:      models.MESSAGE_STATUS_SENT,
		IsImportant: out.IsImportant,
	}
	if msg.MediaURL != "" {
		msg.Type = tools.MediaTypeFromURL(msg.MediaURL)
	}
	msg.SetSender(author.AsSender())
	msg.SetReplyTo(out.ReplyTo)

	if thread.IsBridged() {
		res, err := b.SyncInternalToWhatsApp(ctx, thread.Number(), out)
		if err != nil {
			return nil, err
		}
		msg.ProviderMessageID = &res.MessageID
		if err := b.threads.AppendMessage(ctx, thread, &msg, false); err != nil {
			return nil, err
		}
		b.tracker.ApplyParkedStatuses(ctx, res.MessageID)
		return &msg, nil
	}

	if err := b.threads.AppendMessage(ctx, thread, &msg, false); err != nil {
		return nil, err
	}
	if b.simulate {
		if err := b.tracker.AdvanceStatus(ctx, msg.ID, thread.ID); err != nil {
			zap.L().Warn("bridge: schedule delivery simulation", zap.String("message", msg.ID), zap.Error(err))
		}
	}
	return &msg, nil
}
