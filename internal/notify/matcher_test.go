package notify

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func testConfig() *Config {
	cfg := &Config{
		Cooldown:       30 * time.Second,
		ScanBudget:     100 * time.Millisecond,
		WindowBytes:    256,
		SnippetContext: 20,
		SnippetMax:     80,
	}
	cfg.Approval, _ = CompilePatterns(DefaultApprovalPatterns)
	cfg.Error, _ = CompilePatterns(DefaultErrorPatterns)
	cfg.Prompt, _ = CompilePatterns(DefaultPromptPatterns)
	return cfg
}

func categories(matches []Match) map[Category]int {
	out := make(map[Category]int)
	for _, m := range matches {
		out[m.Category]++
	}
	return out
}

func TestMatchErrorInSingleChunk(t *testing.T) {
	m := NewMatcher(testConfig())

	matches := m.Process([]byte("build failed\nError: missing dependency\n"))
	if categories(matches)[CategoryError] == 0 {
		t.Fatalf("expected an error match, got %v", matches)
	}
}

func TestMatchSplitAcrossChunkBoundary(t *testing.T) {
	m := NewMatcher(testConfig())

	if got := m.Process([]byte("something Erro")); categories(got)[CategoryError] != 0 {
		t.Fatalf("first half should not match yet: %v", got)
	}

	matches := m.Process([]byte("r: disk full\n"))
	if categories(matches)[CategoryError] == 0 {
		t.Fatalf("expected split pattern to match via sliding window, got %v", matches)
	}
}

func TestMatchApprovalPrompt(t *testing.T) {
	m := NewMatcher(testConfig())

	matches := m.Process([]byte("Do you want to apply these changes? [y/N] "))
	if categories(matches)[CategoryApproval] == 0 {
		t.Fatalf("expected an approval match, got %v", matches)
	}
}

func TestMatchShellPrompt(t *testing.T) {
	m := NewMatcher(testConfig())

	matches := m.Process([]byte("make: done\nuser@host:~/src$ "))
	if categories(matches)[CategoryShellIdle] == 0 {
		t.Fatalf("expected a shell-idle match, got %v", matches)
	}
}

func TestMatchThroughAnsiSequences(t *testing.T) {
	m := NewMatcher(testConfig())

	matches := m.Process([]byte("\x1b[1m\x1b[31mError:\x1b[0m connection refused\n"))
	if categories(matches)[CategoryError] == 0 {
		t.Fatalf("expected error match through ANSI styling, got %v", matches)
	}
}

func TestMultipleCategoriesInOneChunk(t *testing.T) {
	m := NewMatcher(testConfig())

	chunk := []byte("Error: tests failed\nRetry? [y/n] ")
	matches := m.Process(chunk)
	got := categories(matches)
	if got[CategoryError] == 0 {
		t.Errorf("expected error match, got %v", matches)
	}
	if got[CategoryApproval] == 0 {
		t.Errorf("expected approval match, got %v", matches)
	}
}

func TestSnippetIsBounded(t *testing.T) {
	cfg := testConfig()
	m := NewMatcher(cfg)

	chunk := append(bytes.Repeat([]byte("a"), 200), []byte("Error: boom")...)
	chunk = append(chunk, bytes.Repeat([]byte("b"), 200)...)
	matches := m.Process(chunk)
	if len(matches) == 0 {
		t.Fatal("expected a match")
	}
	for _, match := range matches {
		if len(match.Snippet) > cfg.SnippetMax {
			t.Errorf("snippet length %d exceeds max %d", len(match.Snippet), cfg.SnippetMax)
		}
		if !strings.Contains(match.Snippet, "Error") {
			t.Errorf("snippet %q does not contain the match", match.Snippet)
		}
	}
}

func TestWindowIsBounded(t *testing.T) {
	cfg := testConfig()
	m := NewMatcher(cfg)

	m.Process(bytes.Repeat([]byte("x"), 10*cfg.WindowBytes))
	if len(m.window) > cfg.WindowBytes {
		t.Errorf("retained window %d bytes, want <= %d", len(m.window), cfg.WindowBytes)
	}
}

func TestLargeChunkCompletesWithinBudget(t *testing.T) {
	m := NewMatcher(testConfig())

	chunk := bytes.Repeat([]byte("lorem ipsum dolor sit amet \x1b[32mok\x1b[0m\n"), 1<<15) // > 1 MiB
	start := time.Now()
	m.Process(chunk)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("scan of large chunk took %v, budget enforcement failed", elapsed)
	}
}

func TestBudgetExceededSkipsRemainingPatterns(t *testing.T) {
	cfg := testConfig()
	m := NewMatcher(cfg)

	// A clock that jumps past the deadline after the first check makes
	// every subsequent pattern evaluation fall outside the budget.
	calls := 0
	base := time.Now()
	m.now = func() time.Time {
		calls++
		if calls <= 1 {
			return base
		}
		return base.Add(cfg.ScanBudget + time.Second)
	}

	matches := m.Process([]byte("Error: boom\nuser@host$ "))
	// First budget check happens before the first approval pattern, so
	// at most that one pattern ran; the error pattern never evaluated.
	if categories(matches)[CategoryError] != 0 {
		t.Errorf("expected error patterns skipped after budget exhaustion, got %v", matches)
	}
}

func TestResetDropsWindow(t *testing.T) {
	m := NewMatcher(testConfig())

	m.Process([]byte("partial Erro"))
	m.Reset()
	matches := m.Process([]byte("r: should not match\n"))
	for _, match := range matches {
		if match.Category == CategoryError && strings.Contains(match.Snippet, "Error") {
			t.Errorf("window survived Reset: %v", match)
		}
	}
}

func TestCompilePatternsSkipsMalformed(t *testing.T) {
	compiled, errs := CompilePatterns([]string{`valid`, `(unclosed`, `also_valid`})
	if len(compiled) != 2 {
		t.Errorf("expected 2 compiled patterns, got %d", len(compiled))
	}
	if len(errs) != 1 {
		t.Errorf("expected 1 compile error, got %d", len(errs))
	}
}
