package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler) {
	r.Get("/ws/:deviceID", authMiddleware, upgradeGuard, websocket.New(func(c *websocket.Conn) {
		client := hub.Register(c.Params("deviceID"))
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}

// upgradeGuard only lets WebSocket upgrades for the token's own device
// through.
func upgradeGuard(c *fiber.Ctx) error {
	if id, ok := c.Locals("device_id").(string); ok && id != "" && id != c.Params("deviceID") {
		return fiber.NewError(fiber.StatusForbidden, "token issued for another device")
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}
