package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs runs one console connection until it closes.
func ServeWs(hub *Hub, c *websocket.Conn, adminID int64) {
	client := &Client{Hub: hub, Conn: c, AdminID: adminID, Send: make(chan []byte, 256)}
	select {
	case hub.register <- client:
	case <-hub.done:
		c.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
