package server

import (
	"encoding/base64"
	"encoding/json"
	"log"

	apperrors "github.com/termrelay/host/internal/errors"
	"github.com/termrelay/host/internal/terminal"
)

// sendError reports a request failure back to this client only.
func (c *Client) sendError(sessionID, code, message string) {
	msg := NewTerminalErrorMessage(sessionID, code, message)
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		log.Printf("server: send buffer full for device %s, dropping error", c.deviceID)
	}
}

// decodePayload re-parses the raw message to extract a typed payload.
type rawEnvelope struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func decodePayload(data []byte, v interface{}) error {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if len(env.Payload) == 0 {
		return apperrors.InvalidMessage("missing payload")
	}
	return json.Unmarshal(env.Payload, v)
}

func (c *Client) handleAttach(data []byte) {
	var p TerminalAttachPayload
	if err := decodePayload(data, &p); err != nil {
		c.sendError("", apperrors.CodeServerInvalidMessage, "malformed terminal.attach payload")
		return
	}
	// Attach reports its own failures through the transport; the error
	// return is for callers that need control flow.
	_ = c.server.engine.Attach(p.SessionID, c.deviceID, p.LastSeq)
}

func (c *Client) handleDetach(data []byte) {
	var p TerminalDetachPayload
	if err := decodePayload(data, &p); err != nil {
		c.sendError("", apperrors.CodeServerInvalidMessage, "malformed terminal.detach payload")
		return
	}
	c.server.engine.Detach(p.SessionID, c.deviceID)
}

func (c *Client) handleInput(data []byte) {
	var p TerminalInputPayload
	if err := decodePayload(data, &p); err != nil {
		c.sendError("", apperrors.CodeServerInvalidMessage, "malformed terminal.input payload")
		return
	}

	// Rate-limit before any work. Drops are reported so the device can
	// back off instead of silently losing keystrokes.
	if !c.inputLimiter.Allow() {
		c.sendError(p.SessionID, apperrors.CodeInputRateLimited, "input rate limit exceeded")
		return
	}

	in := terminal.Input{Key: p.Key, Modifiers: p.Modifiers}
	if p.Data != "" {
		raw, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			c.sendError(p.SessionID, apperrors.CodeServerInvalidMessage, "input data is not valid base64")
			return
		}
		in.Data = raw
	}

	_ = c.server.engine.HandleInput(p.SessionID, c.deviceID, in)
}

func (c *Client) handleResize(data []byte) {
	var p TerminalResizePayload
	if err := decodePayload(data, &p); err != nil {
		c.sendError("", apperrors.CodeServerInvalidMessage, "malformed terminal.resize payload")
		return
	}
	if p.Cols <= 0 || p.Rows <= 0 {
		c.sendError(p.SessionID, apperrors.CodeServerInvalidMessage, "resize dimensions must be positive")
		return
	}
	_ = c.server.engine.HandleResize(p.SessionID, c.deviceID, p.Cols, p.Rows)
}

func (c *Client) handleSessionList(id string) {
	c.server.mu.RLock()
	handler := c.server.sessionListHandler
	c.server.mu.RUnlock()

	var sessions []SessionSummary
	if handler != nil {
		sessions = handler()
	}

	msg := NewSessionListResultMessage(id, sessions)
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		log.Printf("server: send buffer full for device %s, dropping session list", c.deviceID)
	}
}
