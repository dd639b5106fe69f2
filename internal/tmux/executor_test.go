package tmux

import (
	"os/exec"
	"strings"
	"testing"

	apperrors "github.com/termrelay/host/internal/errors"
)

// recordingExecCommand records the invoked command line and delegates to
// the helper process so the call still succeeds.
func recordingExecCommand(record *[]string, output string, exitCode int) func(string, ...string) *exec.Cmd {
	mock := mockExecCommand(output, exitCode)
	return func(name string, args ...string) *exec.Cmd {
		*record = append([]string{name}, args...)
		return mock(name, args...)
	}
}

func TestSendKeys_HexEncoding(t *testing.T) {
	var recorded []string
	e := &Executor{execCommand: recordingExecCommand(&recorded, "", 0)}

	// ESC [ A (up arrow) plus a literal 'x'.
	if err := e.SendKeys("main", []byte{0x1b, 0x5b, 0x41, 'x'}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"tmux", "send-keys", "-t", "main", "-H", "1b", "5b", "41", "78"}
	if len(recorded) != len(want) {
		t.Fatalf("expected args %v, got %v", want, recorded)
	}
	for i := range want {
		if recorded[i] != want[i] {
			t.Fatalf("arg %d: expected %q, got %q (full: %v)", i, want[i], recorded[i], recorded)
		}
	}
}

func TestSendKeys_EmptyIsNoOp(t *testing.T) {
	var recorded []string
	e := &Executor{execCommand: recordingExecCommand(&recorded, "", 0)}

	if err := e.SendKeys("main", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recorded) != 0 {
		t.Fatalf("expected no tmux invocation, got %v", recorded)
	}
}

func TestSendKeys_NoServer(t *testing.T) {
	e := &Executor{execCommand: mockExecCommand("no server running on /tmp/tmux-501/default", 1)}

	err := e.SendKeys("main", []byte("ls\r"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperrors.IsCode(err, apperrors.CodeTmuxNoServer) {
		t.Errorf("expected tmux.no_server, got %s", apperrors.GetCode(err))
	}
}

func TestSendKeys_NotInstalled(t *testing.T) {
	e := &Executor{execCommand: mockExecCommandNotFound()}

	err := e.SendKeys("main", []byte("x"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperrors.IsCode(err, apperrors.CodeTmuxNotInstalled) {
		t.Errorf("expected tmux.not_installed, got %s", apperrors.GetCode(err))
	}
}

func TestResize_Arguments(t *testing.T) {
	var recorded []string
	e := &Executor{execCommand: recordingExecCommand(&recorded, "", 0)}

	if err := e.Resize("main", 120, 40); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := strings.Join(recorded, " ")
	want := "tmux resize-window -t main -x 120 -y 40"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestResize_RejectsInvalidDimensions(t *testing.T) {
	var recorded []string
	e := &Executor{execCommand: recordingExecCommand(&recorded, "", 0)}

	for _, dims := range [][2]int{{0, 40}, {120, 0}, {-1, 40}} {
		err := e.Resize("main", dims[0], dims[1])
		if err == nil {
			t.Errorf("expected error for %dx%d", dims[0], dims[1])
		}
		if !apperrors.IsCode(err, apperrors.CodeTmuxResizeFailed) {
			t.Errorf("expected tmux.resize_failed, got %s", apperrors.GetCode(err))
		}
	}
	if len(recorded) != 0 {
		t.Fatalf("expected no tmux invocation for invalid dimensions, got %v", recorded)
	}
}

func TestResize_ExecFailure(t *testing.T) {
	e := &Executor{execCommand: mockExecCommand("can't find window: main", 1)}

	err := e.Resize("main", 80, 24)
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperrors.IsCode(err, apperrors.CodeTmuxResizeFailed) {
		t.Errorf("expected tmux.resize_failed, got %s", apperrors.GetCode(err))
	}
}
