package tmux

import (
	"fmt"
	"os/exec"

	apperrors "github.com/termrelay/host/internal/errors"
)

// Executor delivers input and control commands to tmux sessions. It
// implements the terminal engine's executor interface.
type Executor struct {
	// execCommand creates exec.Cmd instances. Tests inject a mock;
	// production uses exec.Command.
	execCommand func(name string, arg ...string) *exec.Cmd
}

// NewExecutor creates an executor using the real exec.Command.
func NewExecutor() *Executor {
	return &Executor{execCommand: exec.Command}
}

// SendKeys delivers raw bytes to a tmux session. Bytes are passed as
// hex octets with the -H flag so control characters, escape sequences,
// and UTF-8 survive verbatim; tmux would otherwise interpret key names
// like "Enter" or "C-c" in the argument.
func (e *Executor) SendKeys(muxName string, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	args := make([]string, 0, len(data)+4)
	args = append(args, "send-keys", "-t", muxName, "-H")
	for _, b := range data {
		args = append(args, fmt.Sprintf("%02x", b))
	}

	cmd := e.execCommand("tmux", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		if isCommandNotFound(err) {
			return apperrors.TmuxNotInstalled()
		}
		if isNoServerRunning(string(output)) {
			return apperrors.TmuxNoServer()
		}
		return apperrors.TmuxExecFailed("send-keys", err)
	}
	return nil
}

// Resize sets the window size for a tmux session. The window is resized
// rather than the client, so the change applies even when no local
// client is attached.
func (e *Executor) Resize(muxName string, cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return apperrors.Wrap(apperrors.CodeTmuxResizeFailed, fmt.Sprintf("invalid dimensions %dx%d", cols, rows), nil)
	}

	cmd := e.execCommand("tmux", "resize-window", "-t", muxName,
		"-x", fmt.Sprintf("%d", cols), "-y", fmt.Sprintf("%d", rows))
	if output, err := cmd.CombinedOutput(); err != nil {
		if isCommandNotFound(err) {
			return apperrors.TmuxNotInstalled()
		}
		if isNoServerRunning(string(output)) {
			return apperrors.TmuxNoServer()
		}
		return apperrors.Wrap(apperrors.CodeTmuxResizeFailed, "resize-window failed", err)
	}
	return nil
}
