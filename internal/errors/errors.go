// Package errors provides standardized error codes for the host daemon.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (session, input, buffer, tmux, server, notify)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by remote devices for programmatic
// error handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
// These are stable identifiers that remote devices can rely on for error handling.
const (
	// Session domain - session lifecycle and lookup errors
	CodeSessionNotFound   = "session.not_found"   // Session ID does not resolve to a tmux session
	CodeSessionInvalidID  = "session.invalid_id"  // Session ID fails shape validation
	CodeSessionTornDown   = "session.torn_down"   // Session was killed and its state cleared
	CodeSessionListFailed = "session.list_failed" // Failed to enumerate tmux sessions

	// Input domain - terminal input errors
	CodeInputTooLarge    = "input.too_large"    // Input payload exceeds the size limit
	CodeInputRateLimited = "input.rate_limited" // Too many input messages per second
	CodeInputSendFailed  = "input.send_failed"  // Failed to deliver keystrokes to the multiplexer
	CodeInputUnknownKey  = "input.unknown_key"  // Logical key identifier not recognized

	// Buffer domain - replay buffer errors
	CodeBufferGap = "buffer.gap" // Requested replay range was evicted

	// tmux domain - multiplexer integration errors
	CodeTmuxNotInstalled = "tmux.not_installed" // tmux command not found on host
	CodeTmuxNoServer     = "tmux.no_server"     // tmux server not running (no sessions)
	CodeTmuxExecFailed   = "tmux.exec_failed"   // A tmux command failed
	CodeTmuxResizeFailed = "tmux.resize_failed" // resize-window failed

	// Server domain - WebSocket and network errors
	CodeServerInvalidMessage = "server.invalid_message" // Malformed or invalid message
	CodeServerHandlerMissing = "server.handler_missing" // No handler for message type
	CodeServerSendFailed     = "server.send_failed"     // Failed to send message to a device

	// Notify domain - pattern matching and dispatch errors
	CodeNotifyBadPattern = "notify.bad_pattern" // Pattern failed to compile at config load

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "session.not_found")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to device-facing events.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// SessionNotFound creates a "session.not_found" error.
func SessionNotFound(sessionID string) *CodedError {
	return New(CodeSessionNotFound, fmt.Sprintf("session %s not found", sessionID))
}

// SessionInvalidID creates a "session.invalid_id" error.
func SessionInvalidID(reason string) *CodedError {
	return New(CodeSessionInvalidID, fmt.Sprintf("invalid session ID: %s", reason))
}

// InputTooLarge creates an "input.too_large" error.
func InputTooLarge(size, limit int) *CodedError {
	return New(CodeInputTooLarge, fmt.Sprintf("input payload of %d bytes exceeds limit of %d", size, limit))
}

// InputSendFailed creates an "input.send_failed" error.
func InputSendFailed(sessionID string, cause error) *CodedError {
	return Wrap(CodeInputSendFailed, fmt.Sprintf("failed to send input to session %s", sessionID), cause)
}

// TmuxNotInstalled creates a "tmux.not_installed" error.
func TmuxNotInstalled() *CodedError {
	return New(CodeTmuxNotInstalled, "tmux is not installed on this system")
}

// TmuxNoServer creates a "tmux.no_server" error.
// This is expected when there are no active tmux sessions.
func TmuxNoServer() *CodedError {
	return New(CodeTmuxNoServer, "no tmux server running (no sessions available)")
}

// TmuxExecFailed creates a "tmux.exec_failed" error.
func TmuxExecFailed(command string, cause error) *CodedError {
	return Wrap(CodeTmuxExecFailed, fmt.Sprintf("tmux %s failed", command), cause)
}

// InvalidMessage creates a "server.invalid_message" error.
func InvalidMessage(reason string) *CodedError {
	return New(CodeServerInvalidMessage, reason)
}

// BadPattern creates a "notify.bad_pattern" error.
// Reported at configuration load; the offending pattern is disabled,
// the rest of the matcher keeps working.
func BadPattern(pattern string, cause error) *CodedError {
	return Wrap(CodeNotifyBadPattern, fmt.Sprintf("pattern %q failed to compile", pattern), cause)
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
