// Package watch captures live terminal output from tmux sessions.
//
// Each watched session gets one capture goroutine that attaches to the
// tmux session in read-only mode inside a pseudo-terminal and forwards
// output chunks to the sink as they arrive. Attaching through a PTY is
// what makes tmux stream output at all: without a terminal on the other
// end it refuses to attach.
package watch

import (
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/creack/pty"
)

// readChunkSize is the capture read size. Chunks are forwarded as read,
// so this bounds the size of a single output event.
const readChunkSize = 4096

// OutputSink receives captured output chunks. Implemented by the
// terminal manager. Calls for one session are made in capture order
// from a single goroutine.
type OutputSink interface {
	HandleOutput(sessionID string, data []byte)
}

// Watcher owns the capture goroutines, one per watched session.
type Watcher struct {
	sink OutputSink

	// execCommand creates exec.Cmd instances. Tests inject a mock;
	// production uses exec.Command.
	execCommand func(name string, arg ...string) *exec.Cmd

	mu      sync.Mutex
	watched map[string]chan struct{} // sessionID -> stop channel
}

// New creates a watcher delivering output to sink.
func New(sink OutputSink) *Watcher {
	return &Watcher{
		sink:        sink,
		execCommand: exec.Command,
		watched:     make(map[string]chan struct{}),
	}
}

// Ensure starts a capture goroutine for the session if one is not
// already running. Safe to call repeatedly from the directory poll loop.
func (w *Watcher) Ensure(sessionID, muxName string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[sessionID]; ok {
		return
	}
	stop := make(chan struct{})
	w.watched[sessionID] = stop

	log.Printf("watch: starting capture for session %s (tmux %q)", sessionID, muxName)
	go w.captureLoop(sessionID, muxName, stop)
}

// Stop ends the capture for one session. Used when the session
// disappears from tmux.
func (w *Watcher) Stop(sessionID string) {
	w.mu.Lock()
	stop, ok := w.watched[sessionID]
	if ok {
		delete(w.watched, sessionID)
	}
	w.mu.Unlock()
	if ok {
		close(stop)
	}
}

// StopAll ends every capture. Used on daemon shutdown.
func (w *Watcher) StopAll() {
	w.mu.Lock()
	watched := w.watched
	w.watched = make(map[string]chan struct{})
	w.mu.Unlock()
	for _, stop := range watched {
		close(stop)
	}
}

// Watching reports whether a capture goroutine exists for the session.
func (w *Watcher) Watching(sessionID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watched[sessionID]
	return ok
}

// captureLoop attaches to the tmux session and restarts the attachment
// with exponential backoff when it drops (tmux server restart, transient
// PTY failure). The loop ends when Stop closes the stop channel.
func (w *Watcher) captureLoop(sessionID, muxName string, stop <-chan struct{}) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0 // retry until stopped

	for {
		select {
		case <-stop:
			return
		default:
		}

		err := w.captureOnce(sessionID, muxName, stop)
		select {
		case <-stop:
			log.Printf("watch: capture for session %s stopped", sessionID)
			return
		default:
		}
		if err != nil {
			log.Printf("watch: capture for session %s ended: %v", sessionID, err)
		}

		select {
		case <-stop:
			return
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// captureOnce runs one read-only tmux attachment to completion. The -r
// flag prevents the capture client from injecting input, and a generous
// window size keeps tmux from reflowing output for a tiny terminal.
func (w *Watcher) captureOnce(sessionID, muxName string, stop <-chan struct{}) error {
	cmd := w.execCommand("tmux", "attach-session", "-r", "-t", muxName)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 50, Cols: 200})
	if err != nil {
		return err
	}

	// Closing the PTY unblocks the read below and detaches the client,
	// so Stop takes effect promptly even mid-read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-stop:
			_ = ptmx.Close()
		case <-done:
		}
	}()

	defer func() {
		_ = ptmx.Close()
		_ = cmd.Wait()
	}()

	buf := make([]byte, readChunkSize)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			w.sink.HandleOutput(sessionID, chunk)
		}
		if err != nil {
			// EOF or EIO when the attachment drops. The loop above
			// decides whether to reattach.
			return err
		}
	}
}
