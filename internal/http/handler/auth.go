package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"towerdocs/internal/service"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges the admin credentials for a bearer token.
//
// @Summary  Admin login
// @Tags     admin
// @Accept   json
// @Produce  json
// @Param    body body     loginRequest true "credentials"
// @Success  200  {object} service.Token
// @Failure  401  {object} errorPayload
// @Router   /admin/login [post]
func Login(auth service.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req loginRequest
		if ok, err := bindJSON(c, &req); !ok {
			return err
		}
		if strings.TrimSpace(req.Username) == "" || req.Password == "" {
			return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "username and password are required")
		}

		tok, err := auth.Login(c.UserContext(), req.Username, req.Password)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(tok)
	}
}
