package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"chatbridge/models"

	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

const (
	parkedStatusTTL = 2 * time.Minute
	maxParkedIDs    = 1000
)

// StatusTracker moves messages along pending|sent -> delivered -> read (or
// failed) and never backwards.
type StatusTracker struct {
	db             *gorm.DB
	pusher         Pusher
	deliveredAfter time.Duration
	readAfter      time.Duration

	// provider callbacks that arrived before their message was stored
	parkMu sync.Mutex
	parked map[string][]parkedStatus
}

type parkedStatus struct {
	status string
	at     time.Time
}

func NewStatusTracker(db *gorm.DB, pusher Pusher, deliveredAfter, readAfter time.Duration) *StatusTracker {
	if pusher == nil {
		pusher = noopPusher{}
	}
	return &StatusTracker{
		db:             db,
		pusher:         pusher,
		deliveredAfter: deliveredAfter,
		readAfter:      readAfter,
		parked:         map[string][]parkedStatus{},
	}
}

// AdvanceStatus schedules the simulated delivered and read transitions of a
// message that has no provider behind it. The worker applies them.
func (t *StatusTracker) AdvanceStatus(ctx context.Context, messageID, chatID string) error {
	base := now()
	deliveredAt := base.Add(t.deliveredAfter)
	readAt := deliveredAt.Add(t.readAfter)

	jobs := []models.StatusJob{
		{MessageID: messageID, ThreadID: chatID, TargetStatus: models.MESSAGE_STATUS_DELIVERED, Status: models.STATUS_JOB_PENDING, ScheduledAt: &deliveredAt},
		{MessageID: messageID, ThreadID: chatID, TargetStatus: models.MESSAGE_STATUS_READ, Status: models.STATUS_JOB_PENDING, ScheduledAt: &readAt},
	}
	for i := range jobs {
		if err := t.db.Create(&jobs[i]).Error; err != nil {
			return fmt.Errorf("status: schedule %s for %s: %w", jobs[i].TargetStatus, messageID, err)
		}
	}
	return nil
}

// ApplyStatus moves the message to status when that is a forward transition.
// It returns false for duplicates and regressions, which are not errors.
func (t *StatusTracker) ApplyStatus(ctx context.Context, messageID, status string) (bool, error) {
	if !models.IsMessageStatus(status) {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	// a concurrent writer may win between read and update, so re-read and retry
	for i := 0; i < 3; i++ {
		var msg models.Message
		if err := t.db.Where("id = ?", messageID).First(&msg).Error; err != nil {
			if gorm.IsRecordNotFoundError(err) {
				return false, notFound("message", messageID)
			}
			return false, fmt.Errorf("status: load %s: %w", messageID, err)
		}
		if !models.CanTransition(msg.Status, status) {
			return false, nil
		}

		res := t.db.Model(&models.Message{}).
			Where("id = ? AND status = ?", msg.ID, msg.Status).
			Updates(map[string]any{"status": status})
		if res.Error != nil {
			return false, fmt.Errorf("status: update %s: %w", messageID, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}

		ids, err := t.participantIDs(msg.ThreadID)
		if err != nil {
			zap.L().Warn("status: load participants", zap.String("thread", msg.ThreadID), zap.Error(err))
		}
		t.pusher.Push(ids, EVENT_MESSAGE_STATUS, map[string]string{
			"message_id": msg.ID,
			"thread_id":  msg.ThreadID,
			"status":     status,
		})
		return true, nil
	}
	zap.L().Warn("status: transition lost to concurrent updates",
		zap.String("message", messageID),
		zap.String("status", status))
	return false, fmt.Errorf("status: %s -> %s: %w", messageID, status, ErrStatusConflict)
}

// ApplyProviderStatus applies a WhatsApp status callback to the message sent
// with that provider id. A callback for an id not stored yet is kept for a
// while and replayed by ApplyParkedStatuses; the call still reports ErrNotFound.
func (t *StatusTracker) ApplyProviderStatus(ctx context.Context, providerMessageID, providerStatus string) (bool, error) {
	status := strings.ToLower(strings.TrimSpace(providerStatus))
	switch status {
	case models.MESSAGE_STATUS_SENT, models.MESSAGE_STATUS_DELIVERED, models.MESSAGE_STATUS_READ, models.MESSAGE_STATUS_FAILED:
	default:
		return false, fmt.Errorf("%w: provider status %q", ErrInvalidStatus, providerStatus)
	}
	if providerMessageID == "" {
		return false, fmt.Errorf("%w: status without message id", ErrInvalidInput)
	}

	id, found, err := t.lookupProvider(providerMessageID)
	if err != nil {
		return false, err
	}
	if found {
		return t.ApplyStatus(ctx, id, status)
	}

	t.park(providerMessageID, status)
	// o envio pode ter gravado a mensagem entre a busca e o park
	if _, found, err = t.lookupProvider(providerMessageID); err == nil && found {
		return t.ApplyParkedStatuses(ctx, providerMessageID) > 0, nil
	}
	return false, notFound("provider message", providerMessageID)
}

// ApplyParkedStatuses replays the callbacks kept for providerMessageID and
// returns how many moved the message forward. Call it once the message
// carrying that id is stored.
func (t *StatusTracker) ApplyParkedStatuses(ctx context.Context, providerMessageID string) int {
	t.parkMu.Lock()
	pending := t.parked[providerMessageID]
	delete(t.parked, providerMessageID)
	t.parkMu.Unlock()

	id, found, err := t.lookupProvider(providerMessageID)
	if err != nil || !found {
		return 0
	}
	applied := 0
	for _, p := range pending {
		ok, err := t.ApplyStatus(ctx, id, p.status)
		if err != nil {
			zap.L().Warn("status: replay parked status", zap.String("provider_id", providerMessageID), zap.Error(err))
			continue
		}
		if ok {
			applied++
		}
	}
	return applied
}

func (t *StatusTracker) park(providerMessageID, status string) {
	t.parkMu.Lock()
	defer t.parkMu.Unlock()

	cutoff := now().Add(-parkedStatusTTL)
	for id, list := range t.parked {
		if list[len(list)-1].at.Before(cutoff) {
			delete(t.parked, id)
		}
	}
	if _, ok := t.parked[providerMessageID]; !ok && len(t.parked) >= maxParkedIDs {
		zap.L().Warn("status: too many parked callbacks, dropping", zap.String("provider_id", providerMessageID))
		return
	}
	t.parked[providerMessageID] = append(t.parked[providerMessageID], parkedStatus{status: status, at: now()})
}

func (t *StatusTracker) lookupProvider(providerMessageID string) (string, bool, error) {
	var msg models.Message
	err := t.db.Select("id").Where("provider_message_id = ?", providerMessageID).First(&msg).Error
	if gorm.IsRecordNotFoundError(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("status: lookup provider id: %w", err)
	}
	return msg.ID, true, nil
}

func (t *StatusTracker) participantIDs(threadID string) ([]int64, error) {
	var ids []int64
	err := t.db.Model(&models.ChatParticipant{}).
		Where("thread_id = ? AND user_id <> ?", threadID, models.SYSTEM_ACTOR_ID).
		Pluck("user_id", &ids).Error
	return ids, err
}
