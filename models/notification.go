package models

import "time"

const NOTIFICATION_TYPE_MESSAGE = "message"
const NOTIFICATION_TYPE_SYSTEM = "system"

// Notification is addressed to a single user; a thread-wide notification is
// fanned out into one row per participant.
type Notification struct {
	ID         int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	UserID     int64      `gorm:"not null;index" json:"user_id"`
	Title      string     `gorm:"not null" json:"title"`
	Message    string     `gorm:"type:text" json:"message"`
	Type       string     `gorm:"not null;default:'message'" json:"type"`
	Link       string     `json:"link"`
	SenderName string     `gorm:"column:sender_name" json:"sender,omitempty"`
	ReadAt     *time.Time `json:"read_at"`
	CreatedAt  *time.Time `json:"created_at"`
}
