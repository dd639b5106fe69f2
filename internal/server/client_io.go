package server

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// writePump continuously sends messages from the send channel to the
// WebSocket. It also sends periodic pings to keep the connection alive.
func (c *Client) writePump() {
	// Pings every 30 seconds detect dead connections and keep
	// NAT/firewall entries warm.
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("server: failed to marshal message: %v", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("server: write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket and dispatches them to the
// engine. Exiting this goroutine unregisters the client.
func (c *Client) readPump() {
	defer func() {
		c.server.mu.Lock()
		delete(c.server.clients, c)
		c.server.mu.Unlock()

		// Stop may have already signaled shutdown; closeSend is
		// idempotent. This makes writePump exit and close the conn.
		c.closeSend()

		log.Printf("server: device %s disconnected (%d remaining)", c.deviceID, c.server.ClientCount())
	}()

	c.conn.SetReadLimit(512 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				log.Printf("server: read error: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("server: failed to parse message from %s: %v", c.deviceID, err)
			continue
		}

		switch msg.Type {
		case MessageTypeTerminalAttach:
			c.handleAttach(data)
		case MessageTypeTerminalDetach:
			c.handleDetach(data)
		case MessageTypeTerminalInput:
			c.handleInput(data)
		case MessageTypeTerminalResize:
			c.handleResize(data)
		case MessageTypeSessionList:
			c.handleSessionList(msg.ID)
		case MessageTypeHeartbeat:
			// Read deadline already reset by the read itself.
		default:
			log.Printf("server: unhandled message type=%s from %s", msg.Type, c.deviceID)
		}
	}
}
