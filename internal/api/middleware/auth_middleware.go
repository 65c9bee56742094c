package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	cfg "postpilot/configs"
)

type AuthMiddleware struct {
	cfg cfg.Config
}

func NewAuthMiddleware(cfg cfg.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// AuthMiddleware requires the operator API key on every request, either in
// the X-API-Key header or the api_key query parameter.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-API-Key")
		if key == "" {
			key = c.Query("api_key")
		}

		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing API key",
			})
		}
		if m.cfg.APIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(m.cfg.APIKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}
		return c.Next()
	}
}
