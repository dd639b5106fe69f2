package notify

import (
	"strings"
	"testing"
)

func TestCleanPassesPlainText(t *testing.T) {
	in := "hello world\nsecond line"
	if got := Clean([]byte(in)); got != in {
		t.Errorf("Clean(%q) = %q, want unchanged", in, got)
	}
}

func TestCleanStripsColorCodes(t *testing.T) {
	in := "\x1b[31mError:\x1b[0m something failed"
	got := Clean([]byte(in))
	if got != "Error: something failed" {
		t.Errorf("Clean = %q, want color codes removed", got)
	}
}

func TestCleanDoesNotMergeAcrossCursorMotion(t *testing.T) {
	// Text before and after a cursor-home sequence sits in different
	// screen regions. Stripping must not glue "tail" and "head" into
	// "tailhead".
	in := "tail\x1b[Hhead"
	got := Clean([]byte(in))
	if strings.Contains(got, "tailhead") {
		t.Errorf("Clean merged text across cursor motion: %q", got)
	}
	if !strings.Contains(got, "tail") || !strings.Contains(got, "head") {
		t.Errorf("Clean lost visible text: %q", got)
	}
}

func TestCleanCollapsesEraseSequences(t *testing.T) {
	in := "prompt\x1b[2J\x1b[H$ "
	got := Clean([]byte(in))
	if !strings.HasSuffix(got, "$ ") {
		t.Errorf("Clean = %q, want prompt preserved after erase", got)
	}
}

func TestCleanStripsOSCTitleSequence(t *testing.T) {
	in := "\x1b]0;window title\x07visible"
	got := Clean([]byte(in))
	if got != "visible" {
		t.Errorf("Clean = %q, want OSC sequence removed", got)
	}
}

func TestCleanKeepsMatchableTextAcrossStyling(t *testing.T) {
	// Styling in the middle of a word must not break the word.
	in := "per\x1b[1mmission\x1b[0m denied"
	got := Clean([]byte(in))
	if !strings.Contains(got, "permission denied") {
		t.Errorf("Clean = %q, want styled word intact", got)
	}
}

func TestCleanTruncatedEscapeDoesNotPanic(t *testing.T) {
	in := "text\x1b["
	got := Clean([]byte(in))
	if !strings.Contains(got, "text") {
		t.Errorf("Clean = %q, want text preserved before truncated escape", got)
	}
}
