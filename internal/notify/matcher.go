package notify

import (
	"log"
	"regexp"
	"sync"
	"time"

	apperrors "github.com/termrelay/host/internal/errors"
)

// Category classifies a match into one of the three pattern families.
type Category string

const (
	// CategoryApproval marks prompts asking the user to approve an action.
	CategoryApproval Category = "approval"

	// CategoryError marks error output from the running command.
	CategoryError Category = "error"

	// CategoryShellIdle marks a shell prompt, meaning the foreground
	// command finished and the session is waiting for input.
	CategoryShellIdle Category = "shell_idle"
)

// maxMatchesPerPattern caps how many occurrences of one pattern a single
// scan reports. The dispatcher's cooldown collapses them anyway; this just
// bounds the work.
const maxMatchesPerPattern = 8

// Match is one pattern hit inside a scan window. Produced transiently;
// the dispatcher decides whether it becomes a notification.
type Match struct {
	// Category is the pattern family that produced the match.
	Category Category

	// Pattern is the source text of the matching pattern.
	Pattern string

	// Snippet is a bounded-length slice of cleaned output around the
	// match, for display in the notification.
	Snippet string

	// Position is the byte offset of the match in the cleaned scan
	// window. Useful for debugging; not stable across scans.
	Position int
}

// Config holds the compiled pattern lists and scan tuning shared
// read-only across all sessions.
type Config struct {
	// Approval, Error, and Prompt are the three ordered pattern
	// families, evaluated in that order on every scan.
	Approval []*regexp.Regexp
	Error    []*regexp.Regexp
	Prompt   []*regexp.Regexp

	// Cooldown is the minimum interval between two notifications of the
	// same category for the same session.
	Cooldown time.Duration

	// ScanBudget is the wall-clock budget for one scan. Patterns not
	// evaluated before the budget runs out are treated as non-matching.
	ScanBudget time.Duration

	// WindowBytes is how many trailing raw bytes are carried across
	// chunk boundaries so split patterns are still found.
	WindowBytes int

	// SnippetContext is how many characters of cleaned output to keep
	// on each side of a match.
	SnippetContext int

	// SnippetMax caps the total snippet length.
	SnippetMax int
}

// DefaultConfig returns a Config with the built-in pattern lists and
// tuning values. The patterns target the prompts and failure text of
// common CLI tools and agent CLIs.
func DefaultConfig() *Config {
	cfg := &Config{
		Cooldown:       30 * time.Second,
		ScanBudget:     50 * time.Millisecond,
		WindowBytes:    4096,
		SnippetContext: 60,
		SnippetMax:     240,
	}
	cfg.Approval, _ = CompilePatterns(DefaultApprovalPatterns)
	cfg.Error, _ = CompilePatterns(DefaultErrorPatterns)
	cfg.Prompt, _ = CompilePatterns(DefaultPromptPatterns)
	return cfg
}

// Default pattern sources. Overridable via the config file.
var (
	DefaultApprovalPatterns = []string{
		`(?i)\[y/n\]`,
		`(?i)\(y/n\)`,
		`(?i)do you want to`,
		`(?i)allow .{0,40}\?`,
		`(?i)proceed\?`,
		`(?i)continue\? \[`,
		`(?i)press enter to confirm`,
	}
	DefaultErrorPatterns = []string{
		`(?i)\berror\b[:\s]`,
		`(?i)\bfatal\b[:\s]`,
		`panic: `,
		`Traceback \(most recent call last\)`,
		`(?i)command not found`,
		`(?i)permission denied`,
		`(?i)segmentation fault`,
	}
	DefaultPromptPatterns = []string{
		`(?m)^[^\n]{0,80}[$%#>] $`,
		`(?m)^❯ $`,
	}
)

// CompilePatterns compiles a pattern list, skipping sources that fail to
// compile. Each failure is returned as a notify.bad_pattern coded error
// and logged; a malformed pattern disables only itself.
func CompilePatterns(sources []string) ([]*regexp.Regexp, []error) {
	var compiled []*regexp.Regexp
	var errs []error
	for _, src := range sources {
		re, err := regexp.Compile(src)
		if err != nil {
			coded := apperrors.BadPattern(src, err)
			log.Printf("notify: %v", coded)
			errs = append(errs, coded)
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled, errs
}

// Matcher incrementally scans one session's output stream.
//
// Each Process call prepends the retained trailing window to the new
// chunk, strips control sequences, and evaluates all three pattern
// families against the cleaned text. A pattern split across two
// deliveries is found as long as both halves fall inside the window.
// A single chunk may yield matches in several categories; scanning is
// never short-circuited after the first hit.
type Matcher struct {
	mu sync.Mutex

	cfg *Config

	// window holds the trailing raw bytes carried to the next scan.
	window []byte

	// now is the clock, injectable for budget tests.
	now func() time.Time
}

// NewMatcher creates a matcher for one session using the shared config.
func NewMatcher(cfg *Config) *Matcher {
	return &Matcher{
		cfg: cfg,
		now: time.Now,
	}
}

// Process scans a newly arrived chunk and returns all matches found in
// the combined window. Safe for concurrent use, though output delivery
// for a session is FIFO so calls are normally sequential.
func (m *Matcher) Process(chunk []byte) []Match {
	m.mu.Lock()
	defer m.mu.Unlock()

	combined := make([]byte, 0, len(m.window)+len(chunk))
	combined = append(combined, m.window...)
	combined = append(combined, chunk...)

	cleaned := Clean(combined)

	start := m.now()
	deadline := start.Add(m.cfg.ScanBudget)

	var matches []Match
	families := []struct {
		category Category
		patterns []*regexp.Regexp
	}{
		{CategoryApproval, m.cfg.Approval},
		{CategoryError, m.cfg.Error},
		{CategoryShellIdle, m.cfg.Prompt},
	}

scan:
	for _, fam := range families {
		for _, re := range fam.patterns {
			// Budget check before each evaluation: a pathological
			// pattern or a huge window must not stall the output
			// pipeline. Remaining patterns are treated as non-matching.
			if m.cfg.ScanBudget > 0 && m.now().After(deadline) {
				log.Printf("notify: scan budget exceeded after %v, skipping remaining patterns", m.now().Sub(start))
				break scan
			}

			locs := re.FindAllStringIndex(cleaned, maxMatchesPerPattern)
			for _, loc := range locs {
				matches = append(matches, Match{
					Category: fam.category,
					Pattern:  re.String(),
					Snippet:  m.snippet(cleaned, loc[0], loc[1]),
					Position: loc[0],
				})
			}
		}
	}

	m.retainWindow(combined)
	return matches
}

// Reset drops the trailing window. Called on session teardown.
func (m *Matcher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = nil
}

// retainWindow keeps only the trailing WindowBytes of the combined scan
// input as the window for the next call.
func (m *Matcher) retainWindow(combined []byte) {
	keep := m.cfg.WindowBytes
	if keep <= 0 || len(combined) <= keep {
		// Copy so the retained window does not pin the whole chunk.
		m.window = append([]byte(nil), combined...)
		return
	}
	m.window = append([]byte(nil), combined[len(combined)-keep:]...)
}

// snippet extracts bounded context around a match in the cleaned window.
func (m *Matcher) snippet(cleaned string, start, end int) string {
	lo := start - m.cfg.SnippetContext
	if lo < 0 {
		lo = 0
	}
	hi := end + m.cfg.SnippetContext
	if hi > len(cleaned) {
		hi = len(cleaned)
	}
	s := cleaned[lo:hi]
	if m.cfg.SnippetMax > 0 && len(s) > m.cfg.SnippetMax {
		s = s[:m.cfg.SnippetMax]
	}
	return s
}
