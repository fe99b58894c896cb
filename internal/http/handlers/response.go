// Package handlers provides HTTP handler implementations for the operator API
// and the provider webhook.
//
// This file defines the standard response utilities used across all endpoints:
// the error envelope, fail/failErr for errors, and ok/noContent for success.
// 5xx responses are logged with the request-scoped logger so the log line
// carries request_id and workspace_id.
//
// Example error response:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "already_claimed",
//	  "message": "outbox message not claimable"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-wa-inbox/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"conversation_not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"conversation not found"`
}

// fail aborts with the error envelope and records the code for metrics.
func fail(c *gin.Context, status int, code, msg string) {
	c.Set(middleware.ErrorCodeKey, code)
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// failErr maps a service error through mapError. The raw error of an
// unmapped failure is logged, never returned.
func failErr(c *gin.Context, err error) {
	status, code, msg := mapError(err)
	if code == ErrCodeInternal {
		middleware.LoggerFrom(c).Error().Err(err).Msg("unmapped service error")
	}
	fail(c, status, code, msg)
}

// Fail is the exported variant of fail for router-level handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
