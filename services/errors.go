package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotConfigured      = errors.New("whatsapp integration is not configured")
	ErrMissingCredentials = errors.New("whatsapp integration is missing api key or phone number id")
	ErrEmptyMessage       = errors.New("message content is empty")
	ErrParse              = errors.New("invalid webhook payload")
	ErrNotFound           = errors.New("not found")
	ErrNumberInUse        = errors.New("whatsapp number is already linked to another chat")
	ErrInvalidStatus      = errors.New("invalid message status")
	ErrStatusConflict     = errors.New("message status changed concurrently")
	ErrForbidden          = errors.New("operation not allowed")
	ErrInvalidInput       = errors.New("invalid input")
)

// ProviderError is a failed call to the WhatsApp Business API. Message carries
// the provider's own error text when it sent one.
type ProviderError struct {
	StatusCode int
	Message    string
	Temporary  bool
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("whatsapp provider error (status %d): %s", e.StatusCode, msg)
	}
	return "whatsapp provider error: " + msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}

// isUniqueViolation recognises sqlite and postgres unique constraint errors.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
