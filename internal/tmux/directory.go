// Package tmux integrates with the tmux terminal multiplexer.
//
// It plays two roles for the terminal engine: the session directory
// (resolving stable session identifiers to tmux session names and
// lifecycle status) and the process executor (delivering keystrokes and
// resize commands). Session identifiers are derived from tmux session
// names, so they stay stable across daemon restarts: the first 12 hex
// characters of the name's SHA-256. tmux session names themselves are
// never exposed to devices.
package tmux

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/termrelay/host/internal/errors"
	"github.com/termrelay/host/internal/terminal"
)

// Session contains metadata about a tmux session, retrieved via
// `tmux list-sessions` and cached by the directory.
type Session struct {
	// ID is the stable 12-character identifier handed to devices.
	ID string

	// Name is the tmux session name (e.g., "main", "dev", "0").
	Name string

	// Windows is the number of windows in this session.
	Windows int

	// Attached indicates whether a local client is currently attached.
	Attached bool

	// CreatedAt is when the tmux session was created.
	CreatedAt time.Time
}

// Directory caches the id -> session mapping and implements the
// engine's session-directory interface. Refresh rebuilds the cache from
// `tmux list-sessions`; sessions that disappear between refreshes are
// reported through the removal callback so the terminal manager can
// tear their state down.
type Directory struct {
	// execCommand creates exec.Cmd instances. Tests inject a mock;
	// production uses exec.Command.
	execCommand func(name string, arg ...string) *exec.Cmd

	mu   sync.RWMutex
	byID map[string]Session

	// onRemoved is invoked (outside the lock) for each session that
	// vanished since the previous refresh.
	onRemoved func(sessionID string)
}

// NewDirectory creates a directory using the real exec.Command.
func NewDirectory() *Directory {
	return &Directory{
		execCommand: exec.Command,
		byID:        make(map[string]Session),
	}
}

// SessionID derives the stable device-facing identifier for a tmux
// session name. Hex output keeps the 12-character alphanumeric shape
// the input validator requires.
func SessionID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])[:terminal.SessionIDLength]
}

// SetRemovalHandler registers the callback invoked when a session
// disappears from tmux. Call before the first Refresh.
func (d *Directory) SetRemovalHandler(fn func(sessionID string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onRemoved = fn
}

// Lookup implements terminal.Directory against the cached session map.
func (d *Directory) Lookup(sessionID string) (terminal.SessionInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.byID[sessionID]
	if !ok {
		return terminal.SessionInfo{}, false
	}
	return terminal.SessionInfo{
		MuxName:     s.Name,
		Status:      "running",
		DisplayName: s.Name,
	}, true
}

// List returns a snapshot of the cached sessions.
func (d *Directory) List() []Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Session, 0, len(d.byID))
	for _, s := range d.byID {
		out = append(out, s)
	}
	return out
}

// Refresh rebuilds the cache from `tmux list-sessions` and reports
// removed sessions through the removal handler.
//
// Error handling:
//   - If tmux is not installed, returns errors.TmuxNotInstalled().
//   - If no tmux server is running, the cache is emptied and nil is
//     returned: "no sessions" is a normal state, not an error. Sessions
//     that existed before still fire the removal handler.
//   - Malformed lines are skipped rather than failing the refresh.
func (d *Directory) Refresh() error {
	// Tab-delimited format avoids parsing issues with session names
	// containing colons (the default tmux delimiter).
	format := "#{session_name}\t#{session_windows}\t#{session_attached}\t#{session_created}"

	cmd := d.execCommand("tmux", "list-sessions", "-F", format)
	output, err := cmd.CombinedOutput()

	var sessions []Session
	switch {
	case err == nil:
		sessions = parseListOutput(string(output))
	case isCommandNotFound(err):
		return apperrors.TmuxNotInstalled()
	case isNoServerRunning(string(output)):
		// Empty server: fall through with no sessions.
	default:
		return apperrors.TmuxExecFailed("list-sessions", err)
	}

	fresh := make(map[string]Session, len(sessions))
	for _, s := range sessions {
		s.ID = SessionID(s.Name)
		fresh[s.ID] = s
	}

	d.mu.Lock()
	var removed []string
	for id := range d.byID {
		if _, ok := fresh[id]; !ok {
			removed = append(removed, id)
		}
	}
	d.byID = fresh
	onRemoved := d.onRemoved
	d.mu.Unlock()

	for _, id := range removed {
		log.Printf("tmux: session %s gone, signaling teardown", id)
		if onRemoved != nil {
			onRemoved(id)
		}
	}
	return nil
}

// parseListOutput parses tab-delimited `tmux list-sessions` output.
// Each line contains: session_name\twindows\tattached\tcreated_at.
func parseListOutput(output string) []Session {
	var sessions []Session

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s, err := parseSessionLine(line)
		if err != nil {
			// Skip malformed lines rather than failing entirely.
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions
}

func parseSessionLine(line string) (Session, error) {
	parts := strings.Split(line, "\t")
	if len(parts) != 4 {
		return Session{}, fmt.Errorf("expected 4 fields, got %d", len(parts))
	}

	windows, err := strconv.Atoi(parts[1])
	if err != nil {
		return Session{}, fmt.Errorf("invalid window count: %w", err)
	}

	createdAt, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("invalid created_at timestamp: %w", err)
	}

	return Session{
		Name:      parts[0],
		Windows:   windows,
		Attached:  parts[2] == "1",
		CreatedAt: time.Unix(createdAt, 0),
	}, nil
}

// isCommandNotFound checks if the error indicates tmux is not installed.
func isCommandNotFound(err error) bool {
	if err == nil {
		return false
	}
	if err == exec.ErrNotFound {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "executable file not found") ||
		strings.Contains(msg, "no such file or directory")
}

// isNoServerRunning checks if tmux output indicates no server is
// running. tmux exits 1 with a version-dependent message when there are
// no sessions.
func isNoServerRunning(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "no server running") ||
		strings.Contains(lower, "error connecting to") ||
		strings.Contains(lower, "no sessions")
}
