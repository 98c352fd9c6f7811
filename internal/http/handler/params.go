package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// pathID returns the :id parameter, or ok=false after answering 400 when it
// is not a UUID.
func pathID(c *fiber.Ctx) (string, bool, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false, writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	}
	return id, true, nil
}

// pageParams reads limit and offset, answering 400 on malformed values.
func pageParams(c *fiber.Ctx) (limit, offset int, ok bool, err error) {
	limit, convErr := strconv.Atoi(c.Query("limit", "10"))
	if convErr != nil {
		return 0, 0, false, writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
	}
	offset, convErr = strconv.Atoi(c.Query("offset", "0"))
	if convErr != nil {
		return 0, 0, false, writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
	}
	return limit, offset, true, nil
}

// bindJSON decodes the request body into dst, answering 400 when it cannot.
func bindJSON(c *fiber.Ctx, dst any) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
	}
	return true, nil
}
