package stream

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const pingInterval = 30 * time.Second

// RegisterRoutes exposes the websocket endpoint. The path parameter names
// the group to join: "supervisors" for fleet-wide visibility or
// "courier:{id}" for one courier's feed.
func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	r.Get("/ws/:group", websocket.New(func(c *websocket.Conn) {
		group := c.Params("group")
		client := hub.Register(group)

		done := make(chan struct{})
		go writeLoop(c, client.Send, done)

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}

		// Unregister closes Send, which ends the write loop.
		hub.Unregister(client)
		<-done
	}))
}

// writeLoop drains the hub feed onto the socket and pings on idle so
// half-dead connections surface as write errors instead of lingering.
func writeLoop(c *websocket.Conn, send <-chan []byte, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-send:
			if !ok {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
