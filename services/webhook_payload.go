package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"chatbridge/models"
)

// WebhookPayload is the body Meta posts for WhatsApp Business events.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         WebhookMetadata  `json:"metadata"`
	Contacts         []WebhookContact `json:"contacts"`
	Messages         []InboundMessage `json:"messages"`
	Statuses         []InboundStatus  `json:"statuses"`
}

type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// InboundMessage is a tagged union: Type says which of the content fields is set.
type InboundMessage struct {
	From      string           `json:"from"`
	ID        string           `json:"id"`
	Timestamp string           `json:"timestamp"`
	Type      string           `json:"type"`
	Text      *InboundText     `json:"text,omitempty"`
	Image     *InboundMedia    `json:"image,omitempty"`
	Video     *InboundMedia    `json:"video,omitempty"`
	Audio     *InboundMedia    `json:"audio,omitempty"`
	Document  *InboundMedia    `json:"document,omitempty"`
	Location  *InboundLocation `json:"location,omitempty"`
}

type InboundText struct {
	Body string `json:"body"`
}

type InboundMedia struct {
	ID       string `json:"id"`
	Link     string `json:"link,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type InboundLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// InboundStatus is a delivery callback for a message we sent.
type InboundStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// WhatsAppMessageData is the normalized form of an inbound message.
type WhatsAppMessageData struct {
	From        string    `json:"from"`
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	Content     string    `json:"content"`
	MediaURL    string    `json:"media_url,omitempty"`
	ContactName string    `json:"contact_name,omitempty"`
}

func contactNames(contacts []WebhookContact) map[string]string {
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		if name := strings.TrimSpace(c.Profile.Name); name != "" {
			names[strings.TrimSpace(c.WaID)] = name
		}
	}
	return names
}

func parseUnix(raw string) time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || sec <= 0 {
		return now()
	}
	return time.Unix(sec, 0).UTC()
}

// ToMessageData derives type, content and media from the variant named by
// m.Type. Unknown or empty variants are kept as unsupported.
func (m InboundMessage) ToMessageData(contactName string) WhatsAppMessageData {
	data := WhatsAppMessageData{
		From:        strings.TrimSpace(m.From),
		ID:          strings.TrimSpace(m.ID),
		Timestamp:   parseUnix(m.Timestamp),
		ContactName: strings.TrimSpace(contactName),
	}

	kind := strings.ToLower(strings.TrimSpace(m.Type))
	switch {
	case kind == "text" && m.Text != nil:
		data.Type = models.MESSAGE_TYPE_TEXT
		data.Content = m.Text.Body
	case kind == "image" && m.Image != nil:
		data.Type = models.MESSAGE_TYPE_IMAGE
		data.Content, data.MediaURL = mediaContent(m.Image, "[Image]")
	case kind == "video" && m.Video != nil:
		data.Type = models.MESSAGE_TYPE_VIDEO
		data.Content, data.MediaURL = mediaContent(m.Video, "[Video]")
	case kind == "audio" && m.Audio != nil:
		data.Type = models.MESSAGE_TYPE_AUDIO
		data.Content, data.MediaURL = mediaContent(m.Audio, "[Audio]")
	case kind == "document" && m.Document != nil:
		data.Type = models.MESSAGE_TYPE_DOCUMENT
		data.Content, data.MediaURL = mediaContent(m.Document, "[Document]")
	case kind == "location" && m.Location != nil:
		data.Type = models.MESSAGE_TYPE_LOCATION
		data.Content = locationContent(*m.Location)
	default:
		if kind == "" {
			kind = "unknown"
		}
		data.Type = models.MESSAGE_TYPE_UNSUPPORTED
		data.Content = fmt.Sprintf("[Unsupported message: %s]", kind)
	}
	return data
}

func mediaContent(media *InboundMedia, placeholder string) (string, string) {
	content := strings.TrimSpace(media.Caption)
	if content == "" {
		content = strings.TrimSpace(media.Filename)
	}
	if content == "" {
		content = placeholder
	}
	return content, strings.TrimSpace(media.Link)
}

func locationContent(loc InboundLocation) string {
	coords := fmt.Sprintf("%.6f, %.6f", loc.Latitude, loc.Longitude)
	label := strings.TrimSpace(strings.Join([]string{strings.TrimSpace(loc.Name), strings.TrimSpace(loc.Address)}, " "))
	if label == "" {
		return "[Location] " + coords
	}
	return fmt.Sprintf("[Location] %s (%s)", label, coords)
}
