// Package middleware provides the fiber middleware stack.
package middleware

import (
	"errors"
	"runtime/debug"
	"time"

	"voiceout_server/pkg/apperr"
	"voiceout_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ErrorResponse is the JSON envelope every failed request gets.
type ErrorResponse struct {
	Success   bool       `json:"success"`
	Error     *ErrorInfo `json:"error"`
	RequestID string     `json:"request_id,omitempty"`
	Timestamp string     `json:"timestamp"`
}

// ErrorInfo carries the error payload.
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler converts errors returned from handlers into the error
// envelope. AppErrors keep their code and status; everything else becomes a
// 500 without leaking internals.
func ErrorHandler(c *fiber.Ctx, err error) error {
	requestID, _ := c.Locals("request_id").(string)

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		if appErr.Status >= 500 {
			logger.WithError(appErr).WithField("path", c.Path()).Error("Request failed")
		}
		return c.Status(appErr.Status).JSON(ErrorResponse{
			Success: false,
			Error: &ErrorInfo{
				Code:    appErr.Code,
				Message: appErr.Message,
				Details: appErr.Details,
			},
			RequestID: requestID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Success: false,
			Error: &ErrorInfo{
				Code:    mapHTTPStatusToCode(fiberErr.Code),
				Message: fiberErr.Message,
			},
			RequestID: requestID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}

	logger.WithError(err).WithField("path", c.Path()).Error("Unhandled error")
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Success: false,
		Error: &ErrorInfo{
			Code:    apperr.CodeInternalError,
			Message: "internal server error",
		},
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func mapHTTPStatusToCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return apperr.CodeValidation
	case fiber.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case fiber.StatusNotFound:
		return apperr.CodeNotFound
	default:
		return apperr.CodeInternalError
	}
}

// RequestID attaches a request ID to the context and response headers,
// keeping an inbound X-Request-ID when present.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Locals("request_id", requestID)
		c.Set("X-Request-ID", requestID)
		return c.Next()
	}
}

// RequestLogger logs each request with latency, leveled by response status.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		log := logger.WithFields(map[string]any{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": c.Locals("request_id"),
		})

		switch {
		case status >= 500:
			log.Error("Request")
		case status >= 400:
			log.Warn("Request")
		default:
			log.Info("Request")
		}
		return err
	}
}

// Recover turns a handler panic into a 500 instead of killing the process.
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]any{
					"panic": r,
					"path":  c.Path(),
					"stack": string(debug.Stack()),
				}).Error("Panic recovered")
				err = apperr.Internal("")
			}
		}()
		return c.Next()
	}
}
