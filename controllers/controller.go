package controllers

import (
	"errors"
	"net/http"

	"chatbridge/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func RespondError(c *gin.Context, msg string, code int) {
	c.JSON(code, gin.H{"error": msg})
}

func RespondSuccess(c *gin.Context, payload any) {
	c.JSON(200, payload)
}

// RespondServiceError maps service errors to HTTP answers. Provider errors
// carry the message Meta sent back when there is one.
func RespondServiceError(c *gin.Context, err error) {
	var perr *services.ProviderError
	switch {
	case errors.As(err, &perr):
		msg := perr.Message
		if msg == "" {
			msg = "failed to send message"
		}
		RespondError(c, msg, http.StatusBadGateway)
	case errors.Is(err, services.ErrNotFound):
		RespondError(c, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrForbidden):
		RespondError(c, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrNumberInUse), errors.Is(err, services.ErrStatusConflict):
		RespondError(c, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrNotConfigured), errors.Is(err, services.ErrMissingCredentials):
		RespondError(c, err.Error(), http.StatusPreconditionFailed)
	case errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrParse):
		RespondError(c, err.Error(), http.StatusBadRequest)
	default:
		zap.L().Error("controllers: unexpected error", zap.String("path", c.FullPath()), zap.Error(err))
		RespondError(c, "internal error", http.StatusInternalServerError)
	}
}
