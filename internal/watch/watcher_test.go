package watch

import (
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"
)

// collectSink records chunks per session.
type collectSink struct {
	mu     sync.Mutex
	chunks map[string][]byte
}

func newCollectSink() *collectSink {
	return &collectSink{chunks: make(map[string][]byte)}
}

func (c *collectSink) HandleOutput(sessionID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks[sessionID] = append(c.chunks[sessionID], data...)
}

func (c *collectSink) output(sessionID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.chunks[sessionID])
}

// mockCapture replaces the tmux attachment with a shell command that
// emits output and then stays alive until the watcher stops it.
func mockCapture(script string) func(string, ...string) *exec.Cmd {
	return func(name string, args ...string) *exec.Cmd {
		return exec.Command("sh", "-c", script)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatcherForwardsOutput(t *testing.T) {
	sink := newCollectSink()
	w := New(sink)
	w.execCommand = mockCapture("printf 'hello from pty'; sleep 60")
	defer w.StopAll()

	w.Ensure("abc123def456", "main")

	waitFor(t, 5*time.Second, func() bool {
		return strings.Contains(sink.output("abc123def456"), "hello from pty")
	})
}

func TestEnsureIsIdempotent(t *testing.T) {
	sink := newCollectSink()
	w := New(sink)
	w.execCommand = mockCapture("sleep 60")
	defer w.StopAll()

	w.Ensure("abc123def456", "main")
	w.Ensure("abc123def456", "main")

	w.mu.Lock()
	n := len(w.watched)
	w.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected 1 capture, got %d", n)
	}
}

func TestStopEndsCapture(t *testing.T) {
	sink := newCollectSink()
	w := New(sink)
	w.execCommand = mockCapture("sleep 60")

	w.Ensure("abc123def456", "main")
	waitFor(t, 5*time.Second, func() bool { return w.Watching("abc123def456") })

	w.Stop("abc123def456")
	if w.Watching("abc123def456") {
		t.Fatal("expected session to be unwatched after Stop")
	}

	// Stopping an unknown session is a no-op.
	w.Stop("000000000000")
}

func TestRestartsAfterExit(t *testing.T) {
	sink := newCollectSink()
	w := New(sink)
	// Exits immediately each time; the backoff loop should reattach.
	w.execCommand = mockCapture("printf 'x'")
	defer w.StopAll()

	w.Ensure("abc123def456", "main")

	waitFor(t, 10*time.Second, func() bool {
		return strings.Count(sink.output("abc123def456"), "x") >= 2
	})
}

func TestStopAll(t *testing.T) {
	sink := newCollectSink()
	w := New(sink)
	w.execCommand = mockCapture("sleep 60")

	w.Ensure("abc123def456", "main")
	w.Ensure("def456abc123", "dev")
	w.StopAll()

	if w.Watching("abc123def456") || w.Watching("def456abc123") {
		t.Fatal("expected all captures stopped")
	}
}
