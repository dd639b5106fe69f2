package terminal

import (
	"strings"

	apperrors "github.com/termrelay/host/internal/errors"
)

// SessionIDLength is the fixed length of a session identifier: 12
// alphanumeric characters (the hex-derived IDs handed out by the session
// directory fit this shape).
const SessionIDLength = 12

// MaxInputBytes is the largest input payload accepted from a device.
// Anything larger is rejected before it reaches the multiplexer.
const MaxInputBytes = 64 * 1024

// ValidateSessionID checks the shape of a session identifier. These are
// advisory gates consulted before forwarding to the process executor; a
// failure is reported once to the caller and the request is dropped,
// never retried.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return apperrors.SessionInvalidID("empty")
	}
	// Session IDs end up in tmux target arguments; reject anything that
	// smells like traversal or injection outright, before the shape check,
	// so the error message names the actual problem.
	if strings.ContainsAny(sessionID, "/\\\x00") || strings.Contains(sessionID, "..") {
		return apperrors.SessionInvalidID("contains forbidden characters")
	}
	if len(sessionID) != SessionIDLength {
		return apperrors.SessionInvalidID("must be exactly 12 characters")
	}
	for _, r := range sessionID {
		if !isAlphanumeric(r) {
			return apperrors.SessionInvalidID("must be alphanumeric")
		}
	}
	return nil
}

// ValidateInputSize checks an input payload against MaxInputBytes.
func ValidateInputSize(size int) error {
	if size > MaxInputBytes {
		return apperrors.InputTooLarge(size, MaxInputBytes)
	}
	return nil
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
