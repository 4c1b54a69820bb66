package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WabaClient is a thin client for WABA-level Graph API operations.
// Example: /{waba_id}/subscribed_apps
type WabaClient struct {
	BaseURL     string
	AccessToken string
	ApiVersion  string // e.g. v24.0
	WabaID      string
	HTTPClient  *http.Client
}

// SubscribeApp subscribes the current app to receive webhook updates for this WABA.
func (c WabaClient) SubscribeApp(ctx context.Context) error {
	if strings.TrimSpace(c.WabaID) == "" {
		return fmt.Errorf("business_account_id é obrigatório")
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	url := graphURL(c.BaseURL, c.ApiVersion, c.WabaID, "subscribed_apps")
	return postJSON(ctx, hc, url, c.AccessToken, nil, nil)
}
