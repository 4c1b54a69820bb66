package services

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatbridge/config"
	"chatbridge/tools"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MessageSender is what the bridge and the auto-responder need from the
// dispatcher.
type MessageSender interface {
	SendMessage(ctx context.Context, to, body, mediaURL string) (SendResult, error)
}

type SendResult struct {
	MessageID string `json:"message_id"`
}

type DispatcherOptions struct {
	BaseURL       string
	ApiVersion    string // used when the integration has none saved
	Timeout       time.Duration // per attempt
	MaxAttempts   int
	RetryBase     time.Duration
	RatePerSecond float64 // <= 0 disables the limiter
	Burst         int
	HTTPClient    *http.Client
}

func DispatcherOptionsFrom(w config.WhatsApp) DispatcherOptions {
	return DispatcherOptions{
		BaseURL:       w.ApiBaseURL,
		ApiVersion:    w.ApiVersion,
		Timeout:       w.RequestTimeout(),
		MaxAttempts:   w.MaxAttempts,
		RetryBase:     w.RetryBase(),
		RatePerSecond: w.RatePerSecond,
		Burst:         w.RateBurst,
	}
}

// Dispatcher delivers a single message to WhatsApp through the active
// integration. It never touches threads.
type Dispatcher struct {
	registry *Registry
	opts     DispatcherOptions
	limiter  *rate.Limiter
}

func NewDispatcher(registry *Registry, opts DispatcherOptions) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Dispatcher{registry: registry, opts: opts, limiter: rate.NewLimiter(limit, opts.Burst)}
}

// SendMessage sends body (or mediaURL with body as caption) to the number `to`
// and returns the provider message id.
func (d *Dispatcher) SendMessage(ctx context.Context, to, body, mediaURL string) (SendResult, error) {
	ic, err := d.registry.GetActiveIntegration(ctx)
	if err != nil {
		return SendResult{}, err
	}
	if ic == nil {
		return SendResult{}, ErrNotConfigured
	}
	if !ic.HasCredentials() {
		return SendResult{}, ErrMissingCredentials
	}

	to = tools.NormalizeWhatsAppTo(to)
	msg := tools.NewTextMessage(to, body)
	if strings.TrimSpace(mediaURL) != "" {
		msg = tools.NewMediaMessage(to, strings.TrimSpace(mediaURL), body)
	}

	client := tools.WhatsAppClient{
		BaseURL:       d.opts.BaseURL,
		AccessToken:   ic.APIKey,
		ApiVersion:    ic.Version(d.opts.ApiVersion),
		PhoneNumberID: ic.PhoneNumberID,
		HTTPClient:    d.opts.HTTPClient,
	}

	for attempt := 1; ; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return SendResult{}, &ProviderError{Message: "send cancelled", Temporary: true, Err: err}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		id, err := client.Send(attemptCtx, msg)
		cancel()
		if err == nil {
			return SendResult{MessageID: id}, nil
		}

		perr := classifySendError(err)
		if !perr.Temporary || attempt >= d.opts.MaxAttempts || ctx.Err() != nil {
			return SendResult{}, perr
		}

		wait := d.opts.RetryBase << (attempt - 1)
		zap.L().Warn("dispatcher: send failed, retrying",
			zap.String("to", to),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(perr))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return SendResult{}, perr
		case <-timer.C:
		}
	}
}

// classifySendError decides whether a failed attempt may be repeated: server
// errors, timeouts and transport failures yes; everything else no.
func classifySendError(err error) *ProviderError {
	var apiErr tools.WhatsAppAPIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = strings.TrimSpace(apiErr.Body)
		}
		return &ProviderError{StatusCode: apiErr.StatusCode, Message: msg, Temporary: apiErr.Temporary(), Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Message: "request timed out", Temporary: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ProviderError{Message: "request timed out", Temporary: true, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &ProviderError{Message: "network error: " + urlErr.Err.Error(), Temporary: true, Err: err}
	}

	return &ProviderError{Message: err.Error(), Err: err}
}
