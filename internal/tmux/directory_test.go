package tmux

import (
	"os"
	"os/exec"
	"strconv"
	"testing"
	"time"

	apperrors "github.com/termrelay/host/internal/errors"
)

// mockExecCommand creates a function that returns a mock exec.Cmd.
// The mock runs a helper process that outputs the given data or returns
// an error. This is a standard Go testing pattern for mocking exec.Command.
func mockExecCommand(output string, exitCode int) func(string, ...string) *exec.Cmd {
	return func(name string, args ...string) *exec.Cmd {
		cs := []string{"-test.run=TestHelperProcess", "--", name}
		cs = append(cs, args...)
		cmd := exec.Command(os.Args[0], cs...)
		cmd.Env = []string{
			"GO_WANT_HELPER_PROCESS=1",
			"MOCK_OUTPUT=" + output,
			"MOCK_EXIT_CODE=" + strconv.Itoa(exitCode),
		}
		return cmd
	}
}

// mockExecCommandNotFound returns an exec.Cmd for a non-existent binary,
// producing the same error shape as a missing tmux install.
func mockExecCommandNotFound() func(string, ...string) *exec.Cmd {
	return func(name string, args ...string) *exec.Cmd {
		return exec.Command("/nonexistent/path/to/binary/that/does/not/exist")
	}
}

// TestHelperProcess is not a real test. It is used as a helper process
// by mockExecCommand to simulate tmux command output.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	_, _ = os.Stdout.WriteString(os.Getenv("MOCK_OUTPUT"))
	if os.Getenv("MOCK_EXIT_CODE") == "1" {
		os.Exit(1)
	}
	os.Exit(0)
}

func newTestDirectory(exec func(string, ...string) *exec.Cmd) *Directory {
	return &Directory{
		execCommand: exec,
		byID:        make(map[string]Session),
	}
}

func TestRefresh_Success(t *testing.T) {
	now := time.Now().Unix()
	earlier := now - 3600
	mockOutput := "main\t3\t1\t" + strconv.FormatInt(now, 10) + "\n" +
		"dev\t2\t0\t" + strconv.FormatInt(earlier, 10) + "\n"

	d := newTestDirectory(mockExecCommand(mockOutput, 0))
	if err := d.Refresh(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sessions := d.List()
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	byName := map[string]Session{}
	for _, s := range sessions {
		byName[s.Name] = s
	}

	main, ok := byName["main"]
	if !ok {
		t.Fatal("expected session 'main'")
	}
	if main.Windows != 3 {
		t.Errorf("expected 3 windows, got %d", main.Windows)
	}
	if !main.Attached {
		t.Error("expected attached=true")
	}
	if main.CreatedAt.Unix() != now {
		t.Errorf("expected createdAt %d, got %d", now, main.CreatedAt.Unix())
	}
	if main.ID != SessionID("main") {
		t.Errorf("expected derived ID %s, got %s", SessionID("main"), main.ID)
	}

	dev, ok := byName["dev"]
	if !ok {
		t.Fatal("expected session 'dev'")
	}
	if dev.Attached {
		t.Error("expected attached=false")
	}
}

func TestRefresh_EmptyOutput(t *testing.T) {
	d := newTestDirectory(mockExecCommand("", 0))
	if err := d.Refresh(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.List()) != 0 {
		t.Errorf("expected 0 sessions, got %d", len(d.List()))
	}
}

func TestRefresh_NoServer(t *testing.T) {
	d := newTestDirectory(mockExecCommand("no server running on /private/tmp/tmux-501/default", 1))
	if err := d.Refresh(); err != nil {
		t.Fatalf("expected no error for 'no server running', got: %v", err)
	}
	if len(d.List()) != 0 {
		t.Errorf("expected 0 sessions, got %d", len(d.List()))
	}
}

func TestRefresh_TmuxNotInstalled(t *testing.T) {
	d := newTestDirectory(mockExecCommandNotFound())
	err := d.Refresh()
	if err == nil {
		t.Fatal("expected error when tmux is not installed")
	}
	if !apperrors.IsCode(err, apperrors.CodeTmuxNotInstalled) {
		t.Errorf("expected tmux.not_installed, got %s", apperrors.GetCode(err))
	}
}

func TestRefresh_SkipsMalformedLines(t *testing.T) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	mockOutput := "main\t3\t1\t" + now + "\n" +
		"garbage line without tabs\n" +
		"dev\tnotanumber\t0\t" + now + "\n"

	d := newTestDirectory(mockExecCommand(mockOutput, 0))
	if err := d.Refresh(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sessions := d.List()
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Name != "main" {
		t.Errorf("expected 'main', got %q", sessions[0].Name)
	}
}

func TestRefresh_RemovalHandler(t *testing.T) {
	now := strconv.FormatInt(time.Now().Unix(), 10)

	d := newTestDirectory(mockExecCommand("main\t1\t0\t"+now+"\ndev\t1\t0\t"+now+"\n", 0))
	var removed []string
	d.SetRemovalHandler(func(id string) { removed = append(removed, id) })

	if err := d.Refresh(); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("no removals expected on first refresh, got %v", removed)
	}

	// Second refresh: "dev" is gone.
	d.execCommand = mockExecCommand("main\t1\t0\t"+now+"\n", 0)
	if err := d.Refresh(); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if len(removed) != 1 || removed[0] != SessionID("dev") {
		t.Fatalf("expected removal of %s, got %v", SessionID("dev"), removed)
	}
}

func TestRefresh_NoServerFiresRemovals(t *testing.T) {
	now := strconv.FormatInt(time.Now().Unix(), 10)

	d := newTestDirectory(mockExecCommand("main\t1\t0\t"+now+"\n", 0))
	var removed []string
	d.SetRemovalHandler(func(id string) { removed = append(removed, id) })
	if err := d.Refresh(); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	// Server shut down entirely.
	d.execCommand = mockExecCommand("no server running on /tmp/tmux-501/default", 1)
	if err := d.Refresh(); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if len(removed) != 1 || removed[0] != SessionID("main") {
		t.Fatalf("expected removal of %s, got %v", SessionID("main"), removed)
	}
}

func TestLookup(t *testing.T) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	d := newTestDirectory(mockExecCommand("main\t1\t0\t"+now+"\n", 0))
	if err := d.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	info, ok := d.Lookup(SessionID("main"))
	if !ok {
		t.Fatal("expected lookup hit")
	}
	if info.MuxName != "main" {
		t.Errorf("expected mux name 'main', got %q", info.MuxName)
	}
	if info.Status != "running" {
		t.Errorf("expected status 'running', got %q", info.Status)
	}

	if _, ok := d.Lookup("000000000000"); ok {
		t.Error("expected lookup miss for unknown ID")
	}
}

func TestSessionID_StableAndWellFormed(t *testing.T) {
	a := SessionID("main")
	b := SessionID("main")
	if a != b {
		t.Fatalf("ID not stable: %s vs %s", a, b)
	}
	if len(a) != 12 {
		t.Fatalf("expected 12 characters, got %d (%s)", len(a), a)
	}
	for _, r := range a {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			t.Fatalf("expected lowercase hex, got %q in %s", r, a)
		}
	}
	if SessionID("main") == SessionID("dev") {
		t.Error("different names must not collide")
	}
}
