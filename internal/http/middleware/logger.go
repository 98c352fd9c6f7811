package middleware

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"towerdocs/internal/logger"
)

// ErrorLocalKey holds an internal error a handler answered with a generic
// message, so the request log still records the cause.
const ErrorLocalKey = "handler_error"

// Logger logs one structured line per request: request_id, method, path,
// route, status and latency in milliseconds. 5xx responses log at error level.
func Logger(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		kv := []any{
			"request_id", GetRequestID(c),
			"method", c.Method(),
			"path", c.Path(),
			"route", c.Route().Path,
			"status", status,
			"latency", float64(time.Since(start).Microseconds()) / 1000,
			"ip", c.IP(),
		}
		if cause, ok := c.Locals(ErrorLocalKey).(error); ok && cause != nil {
			kv = append(kv, "error", cause.Error())
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			log.Error("http_request", kv...)
		case status >= fiber.StatusBadRequest:
			log.Warn("http_request", kv...)
		default:
			log.Info("http_request", kv...)
		}
		return err
	}
}

// LoggerWithWriter writes request logs as JSON lines to w with timestamps in loc.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	return Logger(logger.NewJSON(w, loc))
}
