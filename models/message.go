package models

import (
	"time"
)

/************************************************
/**** MARK: MESSAGE TYPES ****/
/************************************************/
const MESSAGE_TYPE_TEXT = "text"
const MESSAGE_TYPE_IMAGE = "image"
const MESSAGE_TYPE_DOCUMENT = "document"
const MESSAGE_TYPE_AUDIO = "audio"
const MESSAGE_TYPE_VIDEO = "video"
const MESSAGE_TYPE_LOCATION = "location"
const MESSAGE_TYPE_UNSUPPORTED = "unsupported"

// Sender is the denormalized author snapshot stored with each message.
type Sender struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

func SystemSender() Sender {
	return Sender{ID: formatUserID(SYSTEM_ACTOR_ID), Name: SYSTEM_ACTOR_NAME}
}

// ReplyRef is a snapshot of the message being answered. It is a copy, the
// referenced message may be edited or gone.
type ReplyRef struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Sender  string `json:"sender"`
}

// Message belongs to exactly one ChatThread and is appended in Seq order.
type Message struct {
	ID                string     `gorm:"primary_key" json:"id"`
	ThreadID          string     `gorm:"not null;index" json:"thread_id"`
	Seq               int64      `gorm:"not null;index" json:"seq"`
	Content           string     `gorm:"type:text" json:"content"`
	Type              string     `gorm:"not null;default:'text'" json:"type"`
	MediaURL          string     `gorm:"column:media_url" json:"media_url,omitempty"`
	SenderID          string     `gorm:"column:sender_id;index" json:"-"`
	SenderName        string     `gorm:"column:sender_name" json:"-"`
	SenderAvatar      string     `gorm:"column:sender_avatar" json:"-"`
	Source            string     `gorm:"not null" json:"source"`
	Status            string     `gorm:"not null;index" json:"status"`
	ProviderMessageID *string    `gorm:"column:provider_message_id;unique_index" json:"provider_message_id,omitempty"`
	ReplyToID         string     `gorm:"column:reply_to_id" json:"-"`
	ReplyToContent    string     `gorm:"column:reply_to_content;type:text" json:"-"`
	ReplyToSender     string     `gorm:"column:reply_to_sender" json:"-"`
	IsImportant       bool       `gorm:"column:is_important" json:"is_important"`
	Edited            bool       `gorm:"column:edited" json:"edited"`
	Timestamp         time.Time  `gorm:"not null;index" json:"timestamp"`
	CreatedAt         *time.Time `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at"`
}

func (m Message) Sender() Sender {
	return Sender{ID: m.SenderID, Name: m.SenderName, Avatar: m.SenderAvatar}
}

func (m *Message) SetSender(s Sender) {
	m.SenderID = s.ID
	m.SenderName = s.Name
	m.SenderAvatar = s.Avatar
}

func (m Message) ReplyTo() *ReplyRef {
	if m.ReplyToID == "" {
		return nil
	}
	return &ReplyRef{ID: m.ReplyToID, Content: m.ReplyToContent, Sender: m.ReplyToSender}
}

func (m *Message) SetReplyTo(r *ReplyRef) {
	if r == nil {
		m.ReplyToID, m.ReplyToContent, m.ReplyToSender = "", "", ""
		return
	}
	m.ReplyToID = r.ID
	m.ReplyToContent = r.Content
	m.ReplyToSender = r.Sender
}

func (m Message) ProviderID() string {
	if m.ProviderMessageID == nil {
		return ""
	}
	return *m.ProviderMessageID
}

// MessageView is the JSON shape handed to the chat UI.
type MessageView struct {
	Message
	Sender  Sender    `json:"sender"`
	ReplyTo *ReplyRef `json:"reply_to,omitempty"`
}

func (m Message) View() MessageView {
	return MessageView{Message: m, Sender: m.Sender(), ReplyTo: m.ReplyTo()}
}
