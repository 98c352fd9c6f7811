package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AdminLocalKey holds the authenticated admin subject.
const AdminLocalKey = "admin"

// TokenVerifier validates a bearer token and returns its subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RequireAdmin rejects requests without a valid "Authorization: Bearer" token.
func RequireAdmin(v TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		subject, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}
		c.Locals(AdminLocalKey, subject)
		return c.Next()
	}
}
