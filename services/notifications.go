package services

import (
	"context"
	"fmt"
	"strings"

	"chatbridge/models"

	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

/************************************************
/**** MARK: REALTIME EVENTS ****/
/************************************************/

const EVENT_MESSAGE = "message"
const EVENT_MESSAGE_STATUS = "message_status"
const EVENT_MESSAGE_UPDATED = "message_updated"
const EVENT_THREAD_UPDATED = "thread_updated"
const EVENT_THREAD_DELETED = "thread_deleted"
const EVENT_NOTIFICATION = "notification"

// Pusher delivers a live event to connected users. The websocket hub
// implements it.
type Pusher interface {
	Push(userIDs []int64, event string, payload any)
}

type noopPusher struct{}

func (noopPusher) Push([]int64, string, any) {}

// Notification is the thread-level notice handed to a NotifyFunc.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Link    string `json:"link"`
	Sender  string `json:"sender,omitempty"`
}

// NotifyFunc delivers n to everybody in the thread.
type NotifyFunc func(ctx context.Context, threadID string, n Notification) error

// NotificationDispatcher stores one notification per participant and pushes
// it to whoever is online.
type NotificationDispatcher struct {
	db     *gorm.DB
	pusher Pusher
}

func NewNotificationDispatcher(db *gorm.DB, pusher Pusher) *NotificationDispatcher {
	if pusher == nil {
		pusher = noopPusher{}
	}
	return &NotificationDispatcher{db: db, pusher: pusher}
}

// NotifyThread is a NotifyFunc.
func (n *NotificationDispatcher) NotifyThread(ctx context.Context, threadID string, note Notification) error {
	var participants []models.ChatParticipant
	if err := n.db.Where("thread_id = ? AND user_id <> ?", threadID, models.SYSTEM_ACTOR_ID).Find(&participants).Error; err != nil {
		return fmt.Errorf("notifications: load participants: %w", err)
	}
	if len(participants) == 0 {
		return nil
	}

	kind := strings.TrimSpace(note.Type)
	if kind == "" {
		kind = models.NOTIFICATION_TYPE_MESSAGE
	}

	ids := make([]int64, 0, len(participants))
	for _, p := range participants {
		row := models.Notification{
			UserID:     p.UserID,
			Title:      note.Title,
			Message:    note.Message,
			Type:       kind,
			Link:       note.Link,
			SenderName: note.Sender,
		}
		if err := n.db.Create(&row).Error; err != nil {
			return fmt.Errorf("notifications: store for user %d: %w", p.UserID, err)
		}
		ids = append(ids, p.UserID)
	}

	n.pusher.Push(ids, EVENT_NOTIFICATION, note)
	zap.L().Debug("notifications: delivered", zap.String("thread", threadID), zap.Int("users", len(ids)))
	return nil
}

// List returns the latest notifications of a user, newest first.
func (n *NotificationDispatcher) List(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Notification
	err := n.db.Where("user_id = ?", userID).Order("id desc").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("notifications: list: %w", err)
	}
	return out, nil
}

// MarkAllRead stamps every unread notification of the user.
func (n *NotificationDispatcher) MarkAllRead(ctx context.Context, userID int64) error {
	return n.db.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Updates(map[string]any{"read_at": now()}).Error
}
