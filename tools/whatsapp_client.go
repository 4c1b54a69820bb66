package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DEFAULT_GRAPH_URL = "https://graph.facebook.com"

// WhatsAppAPIError is a non-2xx answer from the Graph API.
type WhatsAppAPIError struct {
	StatusCode int
	Body       string
	Message    string // error.message from the provider, when present
	Code       int
}

func (e WhatsAppAPIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("whatsapp api error: status=%d code=%d message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("whatsapp api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if repeated. Only server
// side failures qualify; 4xx answers (auth, bad number, throttling) do not.
func (e WhatsAppAPIError) Temporary() bool {
	return e.StatusCode >= 500
}

func newAPIError(status int, raw []byte) WhatsAppAPIError {
	apiErr := WhatsAppAPIError{StatusCode: status, Body: string(raw)}
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &parsed) == nil {
		apiErr.Message = strings.TrimSpace(parsed.Error.Message)
		apiErr.Code = parsed.Error.Code
	}
	return apiErr
}

// WhatsAppClient is a thin client for WhatsApp Cloud API calls that are tenant-specific.
type WhatsAppClient struct {
	BaseURL       string // defaults to https://graph.facebook.com
	AccessToken   string
	ApiVersion    string // e.g. v24.0
	PhoneNumberID string
	HTTPClient    *http.Client
}

func (c WhatsAppClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func graphURL(base, version, node, path string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DEFAULT_GRAPH_URL
	}
	version = strings.TrimSpace(version)
	if version == "" {
		version = "v24.0"
	}
	return fmt.Sprintf("%s/%s/%s/%s", base, version, strings.TrimSpace(node), strings.TrimPrefix(path, "/"))
}

// postJSON sends body to url and decodes a 2xx answer into out (when non-nil).
func postJSON(ctx context.Context, hc *http.Client, url, token string, body any, out any) error {
	var b []byte
	if body != nil {
		var err error
		if b, err = json.Marshal(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, raw)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("whatsapp api: decode response: %w", err)
		}
	}
	return nil
}

func (c WhatsAppClient) post(ctx context.Context, path string, body any, out any) error {
	url := graphURL(c.BaseURL, c.ApiVersion, c.PhoneNumberID, path)
	return postJSON(ctx, c.httpClient(), url, c.AccessToken, body, out)
}

type textBody struct {
	Body string `json:"body"`
}

type mediaBody struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

// OutboundMessage is the /messages request body.
type OutboundMessage struct {
	MessagingProduct string     `json:"messaging_product"`
	RecipientType    string     `json:"recipient_type"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Text             *textBody  `json:"text,omitempty"`
	Image            *mediaBody `json:"image,omitempty"`
	Video            *mediaBody `json:"video,omitempty"`
	Audio            *mediaBody `json:"audio,omitempty"`
	Document         *mediaBody `json:"document,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// NewTextMessage builds a plain text payload.
func NewTextMessage(to, body string) OutboundMessage {
	return OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: body},
	}
}

// NewMediaMessage builds a media payload; the kind comes from the link's extension.
// Audio does not accept captions, so the body is dropped there.
func NewMediaMessage(to, link, caption string) OutboundMessage {
	kind := MediaTypeFromURL(link)
	msg := OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             kind,
	}
	media := &mediaBody{Link: link, Caption: caption}
	switch kind {
	case MEDIA_IMAGE:
		msg.Image = media
	case MEDIA_VIDEO:
		msg.Video = media
	case MEDIA_AUDIO:
		media.Caption = ""
		msg.Audio = media
	default:
		msg.Document = media
	}
	return msg
}

// Send posts msg and returns the provider message id (messages[0].id).
func (c WhatsAppClient) Send(ctx context.Context, msg OutboundMessage) (string, error) {
	var resp sendResponse
	if err := c.post(ctx, "messages", msg, &resp); err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 || strings.TrimSpace(resp.Messages[0].ID) == "" {
		return "", fmt.Errorf("whatsapp api: response without message id")
	}
	return resp.Messages[0].ID, nil
}

func (c WhatsAppClient) SendText(ctx context.Context, to, body string) (string, error) {
	return c.Send(ctx, NewTextMessage(to, body))
}
