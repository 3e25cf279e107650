package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// JWTMiddleware validates bearer tokens and stores device_id in locals.
// Browsers cannot set headers on WebSocket upgrades, so the token is also
// accepted as the access_token query parameter.
func JWTMiddleware(secret string) fiber.Handler {
	secretBytes := []byte(secret)
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			token = c.Query("access_token")
		}
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims, err := parseToken(secretBytes, token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		c.Locals("device_id", claims.DeviceID)
		return c.Next()
	}
}

// DeviceMiddleware trusts every caller as deviceID. It is used when no JWT
// secret is configured, i.e. the API only listens on the device itself.
func DeviceMiddleware(deviceID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("device_id", deviceID)
		return c.Next()
	}
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
