package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/consolechannel/internal/api/middleware"
	"github.com/GriffinCanCode/consolechannel/internal/terminal"
	"github.com/GriffinCanCode/consolechannel/internal/wire"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, wire.ErrMalformed), errors.Is(err, terminal.ErrInvalidSize):
		return http.StatusBadRequest
	case errors.Is(err, terminal.ErrCommandNotPermitted):
		return http.StatusForbidden
	case errors.Is(err, terminal.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, terminal.ErrSessionClosed), errors.Is(err, io.EOF):
		return http.StatusGone
	case errors.Is(err, terminal.ErrTooManySessions):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
