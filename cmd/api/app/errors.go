package app

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/mark3748/helpdesk-sla/internal/sla"
)

// Error represents a structured error response.
type Error struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// Envelope wraps successful data or an error.
type Envelope struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

// AbortError records an error and aborts the handler. The response will be
// rendered by the Errors middleware.
func AbortError(c *gin.Context, status int, code, message string, fields map[string]string) {
	c.Set("app_error", &Error{Code: code, Message: message, FieldErrors: fields})
	c.AbortWithStatus(status)
}

// AbortDomainError maps engine and store errors onto HTTP statuses.
func AbortDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sla.ErrTicketNotFound):
		AbortError(c, http.StatusNotFound, "ticket_not_found", "ticket not found", nil)
	case errors.Is(err, sla.ErrPolicyNotFound):
		AbortError(c, http.StatusNotFound, "policy_not_found", "policy not found", nil)
	case errors.Is(err, sla.ErrCalendarNotFound):
		AbortError(c, http.StatusNotFound, "calendar_not_found", "calendar not found", nil)
	case errors.Is(err, sla.ErrPolicyInUse):
		AbortError(c, http.StatusConflict, "policy_in_use", "policy is referenced by tickets; deactivate it instead", nil)
	case errors.Is(err, sla.ErrDuplicateActivePolicy):
		AbortError(c, http.StatusConflict, "duplicate_policy", err.Error(), nil)
	case errors.Is(err, sla.ErrInvalidPolicy), errors.Is(err, sla.ErrInvalidWindow):
		AbortError(c, http.StatusBadRequest, "invalid", err.Error(), nil)
	default:
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
		AbortError(c, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

// AbortBindError renders validator failures as field errors.
func AbortBindError(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := map[string]string{}
		for _, fe := range ve {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}
		AbortError(c, http.StatusBadRequest, "validation_error", "invalid request", fields)
		return
	}
	AbortError(c, http.StatusBadRequest, "invalid_json", "invalid json", nil)
}

// Errors emits a JSON error envelope and structured log entry when an error
// was recorded via AbortError.
func Errors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		v, ok := c.Get("app_error")
		if !ok {
			return
		}
		err, ok := v.(*Error)
		if !ok {
			return
		}
		status := c.Writer.Status()
		logger := log.Ctx(c.Request.Context()).Error().Str("code", err.Code)
		if status < http.StatusInternalServerError {
			logger = log.Ctx(c.Request.Context()).Info().Str("code", err.Code)
		}
		for k, v := range err.FieldErrors {
			logger = logger.Str("field_"+k, v)
		}
		logger.Msg(err.Message)
		c.JSON(status, Envelope{Error: err})
	}
}
