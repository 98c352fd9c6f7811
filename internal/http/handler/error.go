package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"towerdocs/internal/apperr"
	"towerdocs/internal/http/middleware"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
// code is a short machine-readable value such as "INVALID_ID" or "NOT_FOUND".
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: middleware.GetRequestID(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// writeAppError maps an application error kind to its HTTP status. Only
// validation, not-found and conflict messages reach the client verbatim.
func writeAppError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", apperr.Message(err))
	case errors.Is(err, apperr.ErrUnauthorized):
		return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
	case errors.Is(err, apperr.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", apperr.Message(err)+" not found")
	case errors.Is(err, apperr.ErrConflict):
		return writeError(c, fiber.StatusConflict, "CONFLICT", apperr.Message(err))
	case errors.Is(err, apperr.ErrStorage):
		c.Locals(middleware.ErrorLocalKey, err)
		return writeError(c, fiber.StatusBadGateway, "STORAGE_ERROR", "storage backend unavailable")
	default:
		c.Locals(middleware.ErrorLocalKey, err)
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else {
			c.Locals(middleware.ErrorLocalKey, err)
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusUnauthorized:
			return writeError(c, status, "UNAUTHORIZED", fe.Message)
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "PAYLOAD_TOO_LARGE", "request body too large")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
