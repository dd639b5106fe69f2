// Package notify inspects terminal output for events worth surfacing to
// remote devices: approval prompts, errors, and shell-idle prompts.
//
// Raw terminal output is full of escape sequences interleaved with the
// text we want to match, and a single prompt can be split across several
// output deliveries. The matcher therefore scans a sliding window of
// recent bytes with the control sequences stripped, under a wall-clock
// budget, and the dispatcher deduplicates repeated matches with a
// per-category cooldown.
package notify

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// csiBreakFinals are CSI final bytes for cursor motion and erase
// operations. Text emitted before and after one of these sequences sits
// in different screen regions, so the cleaner inserts a line break there.
// Without it, stripping a cursor-home sequence would glue the end of one
// screen line onto the start of another and produce false matches.
const csiBreakFinals = "ABCDEFGHJKSTf"

// Clean strips terminal control sequences from raw output, returning the
// visible text. Newlines survive; cursor-motion and erase sequences are
// replaced with a single newline; everything else non-printable is
// dropped.
func Clean(raw []byte) string {
	var out strings.Builder
	out.Grow(len(raw))

	var state byte
	remaining := string(raw)
	lastWasBreak := false

	for len(remaining) > 0 {
		seq, width, n, newState := ansi.DecodeSequence(remaining, state, nil)
		state = newState
		if n == 0 {
			// Defensive against a stuck decoder on truncated input.
			break
		}
		remaining = remaining[n:]

		if width > 0 {
			out.WriteString(seq)
			lastWasBreak = false
			continue
		}

		// Control token. Keep line structure, drop the rest.
		switch {
		case strings.ContainsRune(seq, '\n'):
			if !lastWasBreak {
				out.WriteByte('\n')
				lastWasBreak = true
			}
		case isBreakSequence(seq):
			if !lastWasBreak {
				out.WriteByte('\n')
				lastWasBreak = true
			}
		}
	}

	return out.String()
}

// isBreakSequence reports whether a control sequence repositions the
// cursor or erases screen content.
func isBreakSequence(seq string) bool {
	if !ansi.HasCsiPrefix(seq) || len(seq) == 0 {
		return false
	}
	final := seq[len(seq)-1]
	return strings.IndexByte(csiBreakFinals, final) >= 0
}
