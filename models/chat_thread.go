package models

import (
	"strconv"
	"time"
)

/************************************************
/**** MARK: THREAD TYPES ****/
/************************************************/
const THREAD_TYPE_GROUP = "group"
const THREAD_TYPE_DIRECT = "direct"
const THREAD_TYPE_CLIENT = "client"

/************************************************
/**** MARK: PARTICIPANT ROLES ****/
/************************************************/
const PARTICIPANT_ROLE_ADMIN = "admin"
const PARTICIPANT_ROLE_MEMBER = "member"

// SYSTEM_ACTOR_ID identifies the bridge itself when it owns or writes to a thread.
const SYSTEM_ACTOR_ID = 0
const SYSTEM_ACTOR_NAME = "WhatsApp Bridge"

// ChatThread is a conversation container: an internal group, a 1:1 between two
// users, or a conversation tied to a CRM client (optionally bridged to WhatsApp).
type ChatThread struct {
	ID                   string            `gorm:"primary_key" json:"id"`
	Type                 string            `gorm:"not null;index" json:"type"`
	Title                string            `gorm:"not null;default:''" json:"title"`
	ClientID             string            `gorm:"column:client_id;index" json:"client_id,omitempty"`
	ClientName           string            `gorm:"column:client_name" json:"client_name,omitempty"`
	WhatsAppNumber       *string           `gorm:"column:whatsapp_number;unique_index" json:"whatsapp_number,omitempty"`
	IsWhatsAppIntegrated bool              `gorm:"column:is_whatsapp_integrated" json:"is_whatsapp_integrated"`
	Sources              string            `gorm:"column:sources;not null;default:''" json:"-"`
	UnreadCount          int               `gorm:"column:unread_count;default:0" json:"unread_count"`
	LastActivity         *time.Time        `gorm:"column:last_activity;index" json:"last_activity"`
	Participants         []ChatParticipant `gorm:"foreignkey:ThreadID" json:"participants"`
	CreatedAt            *time.Time        `json:"created_at"`
	UpdatedAt            *time.Time        `json:"updated_at"`
}

func (thread ChatThread) SourceSet() SourceSet {
	return ParseSourceSet(thread.Sources)
}

// MissingFields mirrors the validation style used by the other models.
func (thread ChatThread) MissingFields() string {
	switch thread.Type {
	case THREAD_TYPE_GROUP, THREAD_TYPE_DIRECT:
	case THREAD_TYPE_CLIENT:
		if thread.ClientID == "" {
			return "client_id"
		}
	default:
		return "type"
	}
	return ""
}

// Number returns the linked WhatsApp number or "".
func (thread ChatThread) Number() string {
	if thread.WhatsAppNumber == nil {
		return ""
	}
	return *thread.WhatsAppNumber
}

// IsBridged reports whether outbound messages must be relayed to WhatsApp.
func (thread ChatThread) IsBridged() bool {
	return thread.IsWhatsAppIntegrated && thread.Number() != ""
}

func (thread ChatThread) HasParticipant(userID int64) bool {
	for _, p := range thread.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ParticipantIDs lists real users only (the system actor never gets pushes).
func (thread ChatThread) ParticipantIDs() []int64 {
	ids := make([]int64, 0, len(thread.Participants))
	for _, p := range thread.Participants {
		if p.UserID != SYSTEM_ACTOR_ID {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

type ChatParticipant struct {
	ID        int64      `gorm:"primary_key;AUTO_INCREMENT" json:"-"`
	ThreadID  string     `gorm:"not null;index;unique_index:ux_thread_participant" json:"-"`
	UserID    int64      `gorm:"not null;unique_index:ux_thread_participant" json:"user_id"`
	Name      string     `json:"name"`
	Avatar    string     `json:"avatar"`
	Role      string     `gorm:"not null;default:'member'" json:"role"`
	Position  int        `gorm:"not null;default:0" json:"-"`
	CreatedAt *time.Time `json:"joined_at"`
}

func ParticipantFromUser(user User, role string) ChatParticipant {
	return ChatParticipant{UserID: user.ID, Name: user.Name, Avatar: user.AvatarURL, Role: role}
}

func SystemParticipant() ChatParticipant {
	return ChatParticipant{UserID: SYSTEM_ACTOR_ID, Name: SYSTEM_ACTOR_NAME, Role: PARTICIPANT_ROLE_ADMIN}
}

func formatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}
