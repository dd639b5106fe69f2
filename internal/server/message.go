// Package server provides the WebSocket server for device connections.
// It carries terminal output, replay, input, and notifications between
// the host daemon and mobile devices.
package server

import (
	"time"
)

// MessageType identifies the kind of message being sent over WebSocket.
// Each type has a specific payload structure defined below.
type MessageType string

const (
	// MessageTypeTerminalOutput sends one terminal output chunk with its
	// replay sequence number. Payload: TerminalOutputPayload
	MessageTypeTerminalOutput MessageType = "terminal.output"

	// MessageTypeOutputSkipped tells a reconnecting device that part of
	// the requested replay range was evicted from the buffer.
	// Payload: OutputSkippedPayload
	MessageTypeOutputSkipped MessageType = "terminal.output_skipped"

	// MessageTypeTerminalAttached confirms an attach request.
	// Payload: TerminalAttachedPayload
	MessageTypeTerminalAttached MessageType = "terminal.attached"

	// MessageTypeTerminalDetached notifies a device that it is no longer
	// subscribed, either by its own request or because the session ended.
	// Payload: TerminalDetachedPayload
	MessageTypeTerminalDetached MessageType = "terminal.detached"

	// MessageTypeTerminalError reports a failed request to the device
	// that sent it. Payload: TerminalErrorPayload
	MessageTypeTerminalError MessageType = "terminal.error"

	// MessageTypeNotification broadcasts a pattern-match notification
	// (approval prompt, error, idle shell) to all connected devices.
	// Payload: NotificationPayload
	MessageTypeNotification MessageType = "terminal.notification"

	// MessageTypeSessionList is sent by devices to request the current
	// tmux session list. Payload: none (empty object)
	MessageTypeSessionList MessageType = "session.list"

	// MessageTypeSessionListResult answers a session.list request.
	// Payload: SessionListResultPayload
	MessageTypeSessionListResult MessageType = "session.list_result"

	// MessageTypeTerminalAttach is sent by devices to subscribe to a
	// session's output. Payload: TerminalAttachPayload
	MessageTypeTerminalAttach MessageType = "terminal.attach"

	// MessageTypeTerminalDetach is sent by devices to unsubscribe.
	// Payload: TerminalDetachPayload
	MessageTypeTerminalDetach MessageType = "terminal.detach"

	// MessageTypeTerminalInput is sent by devices to deliver input,
	// either raw bytes or a logical key with modifiers.
	// Payload: TerminalInputPayload
	MessageTypeTerminalInput MessageType = "terminal.input"

	// MessageTypeTerminalResize is sent by devices to resize the tmux
	// window to match their screen. Payload: TerminalResizePayload
	MessageTypeTerminalResize MessageType = "terminal.resize"

	// MessageTypeHeartbeat keeps the connection alive.
	// Payload: none (empty object)
	MessageTypeHeartbeat MessageType = "heartbeat"
)

// Message is the envelope for all WebSocket traffic in both directions.
type Message struct {
	// Type identifies what kind of message this is.
	Type MessageType `json:"type"`

	// ID is an optional message identifier for correlation.
	// Devices can use this to match responses to requests.
	ID string `json:"id,omitempty"`

	// Payload contains the message-specific data.
	// The structure depends on the Type field.
	Payload interface{} `json:"payload"`
}

// TerminalOutputPayload carries one captured output chunk. Data is
// base64-encoded so arbitrary terminal bytes survive JSON transport.
type TerminalOutputPayload struct {
	// SessionID identifies which session this output belongs to.
	SessionID string `json:"session_id"`

	// Seq is the chunk's replay sequence number. Sequences are
	// contiguous per session; a device that sees a jump knows chunks
	// were dropped on its own connection.
	Seq uint64 `json:"seq"`

	// Data is the base64-encoded output bytes.
	Data string `json:"data"`

	// Timestamp is when this output was captured (Unix milliseconds).
	Timestamp int64 `json:"timestamp"`
}

// OutputSkippedPayload tells a device that replay could not start at the
// sequence it asked for because older chunks were evicted.
type OutputSkippedPayload struct {
	SessionID string `json:"session_id"`

	// FromSeq is the first sequence the device asked for but will not
	// receive. Everything from here up to the first replayed chunk is gone.
	FromSeq uint64 `json:"from_seq"`
}

// TerminalAttachedPayload confirms a subscription.
type TerminalAttachedPayload struct {
	SessionID string `json:"session_id"`
}

// TerminalDetachedPayload ends a subscription.
type TerminalDetachedPayload struct {
	SessionID string `json:"session_id"`
}

// TerminalErrorPayload reports a failed request to its sender.
type TerminalErrorPayload struct {
	SessionID string `json:"session_id,omitempty"`

	// Code is a stable machine-readable error code like
	// "session.not_found" or "input.too_large".
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// NotificationPayload carries a pattern-match notification.
type NotificationPayload struct {
	SessionID string `json:"session_id"`

	// Category is "approval", "error", or "shell_idle".
	Category string `json:"category"`

	// Pattern is the regular expression that matched.
	Pattern string `json:"pattern"`

	// Snippet is cleaned context around the match.
	Snippet string `json:"snippet"`

	// Timestamp is when the match was detected (Unix milliseconds).
	Timestamp int64 `json:"timestamp"`
}

// SessionSummary describes one tmux session in a session.list_result.
type SessionSummary struct {
	// ID is the stable session identifier used in all other messages.
	ID string `json:"id"`

	// Name is the human-readable session name.
	Name string `json:"name"`

	// Windows is the number of tmux windows in the session.
	Windows int `json:"windows"`

	// Attached indicates whether a local client is attached.
	Attached bool `json:"attached"`

	// CreatedAt is the session creation time (Unix seconds).
	CreatedAt int64 `json:"created_at"`
}

// SessionListResultPayload answers a session.list request.
type SessionListResultPayload struct {
	Sessions []SessionSummary `json:"sessions"`
}

// TerminalAttachPayload subscribes the sending device to a session.
type TerminalAttachPayload struct {
	SessionID string `json:"session_id"`

	// LastSeq is the highest sequence number the device has already
	// seen, set on reconnect to request replay. Nil on a fresh attach.
	LastSeq *uint64 `json:"last_seq,omitempty"`
}

// TerminalDetachPayload unsubscribes the sending device.
type TerminalDetachPayload struct {
	SessionID string `json:"session_id"`
}

// TerminalInputPayload carries device input. Exactly one of Data or Key
// should be set: Data for raw bytes (base64-encoded), Key with optional
// Modifiers for a logical key press.
type TerminalInputPayload struct {
	SessionID string `json:"session_id"`

	// Data is base64-encoded raw bytes to forward verbatim.
	Data string `json:"data,omitempty"`

	// Key is a logical key identifier like "up", "f5", or "ctrl_c".
	Key string `json:"key,omitempty"`

	// Modifiers is a bitmask: Shift=1, Alt=2, Ctrl=4.
	Modifiers int `json:"modifiers,omitempty"`
}

// TerminalResizePayload resizes a session's tmux window.
type TerminalResizePayload struct {
	SessionID string `json:"session_id"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
}

// NewTerminalOutputMessage creates a terminal.output message.
func NewTerminalOutputMessage(sessionID string, seq uint64, data string) Message {
	return Message{
		Type: MessageTypeTerminalOutput,
		Payload: TerminalOutputPayload{
			SessionID: sessionID,
			Seq:       seq,
			Data:      data,
			Timestamp: time.Now().UnixMilli(),
		},
	}
}

// NewOutputSkippedMessage creates a terminal.output_skipped message.
func NewOutputSkippedMessage(sessionID string, fromSeq uint64) Message {
	return Message{
		Type:    MessageTypeOutputSkipped,
		Payload: OutputSkippedPayload{SessionID: sessionID, FromSeq: fromSeq},
	}
}

// NewTerminalAttachedMessage creates a terminal.attached message.
func NewTerminalAttachedMessage(sessionID string) Message {
	return Message{
		Type:    MessageTypeTerminalAttached,
		Payload: TerminalAttachedPayload{SessionID: sessionID},
	}
}

// NewTerminalDetachedMessage creates a terminal.detached message.
func NewTerminalDetachedMessage(sessionID string) Message {
	return Message{
		Type:    MessageTypeTerminalDetached,
		Payload: TerminalDetachedPayload{SessionID: sessionID},
	}
}

// NewTerminalErrorMessage creates a terminal.error message.
func NewTerminalErrorMessage(sessionID, code, message string) Message {
	return Message{
		Type:    MessageTypeTerminalError,
		Payload: TerminalErrorPayload{SessionID: sessionID, Code: code, Message: message},
	}
}

// NewNotificationMessage creates a terminal.notification message.
func NewNotificationMessage(sessionID, category, pattern, snippet string) Message {
	return Message{
		Type: MessageTypeNotification,
		Payload: NotificationPayload{
			SessionID: sessionID,
			Category:  category,
			Pattern:   pattern,
			Snippet:   snippet,
			Timestamp: time.Now().UnixMilli(),
		},
	}
}

// NewSessionListResultMessage creates a session.list_result message.
// The correlation ID is copied from the request.
func NewSessionListResultMessage(id string, sessions []SessionSummary) Message {
	if sessions == nil {
		sessions = []SessionSummary{}
	}
	return Message{
		Type:    MessageTypeSessionListResult,
		ID:      id,
		Payload: SessionListResultPayload{Sessions: sessions},
	}
}
