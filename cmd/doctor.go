// This file implements the `termrelay doctor` diagnostic command.
//
// The doctor command runs a sequence of preflight checks against the
// local environment and reports actionable remediation guidance for any
// issues. It supports both human-readable (default) and machine-readable
// (--json) output.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/termrelay/host/internal/config"
	"github.com/termrelay/host/internal/notify"
)

// DoctorResult is the top-level JSON output for `termrelay doctor --json`.
type DoctorResult struct {
	// Version is the doctor output schema version. Always "1".
	Version string `json:"version"`

	// Checks is the ordered list of diagnostic checks that were evaluated.
	Checks []DoctorCheck `json:"checks"`

	// Summary contains aggregate pass/warn/fail counts derived from Checks.
	Summary DoctorSummary `json:"summary"`
}

// DoctorCheck is one diagnostic check in the doctor output.
type DoctorCheck struct {
	// ID is a stable, machine-readable identifier (e.g., "tmux.installed").
	ID string `json:"id"`

	// Status is the check result: "pass", "warn", or "fail".
	Status string `json:"status"`

	// Message is a human-readable summary of what was found.
	Message string `json:"message"`

	// NextAction is a concrete remediation step the operator should take.
	NextAction string `json:"next_action"`
}

// DoctorSummary holds aggregate counts of check outcomes.
type DoctorSummary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Stable check IDs used by the doctor command.
// These are part of the public CLI contract and must not change.
const (
	checkIDTmuxInstalled = "tmux.installed"
	checkIDTmuxServer    = "tmux.server"
	checkIDConfig        = "config.file"
	checkIDPatterns      = "config.patterns"
	checkIDDataDir       = "storage.data_dir"
)

// Stable status values for doctor checks.
const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"
)

// Function-variable seams for testability. Tests override these to
// inject deterministic behavior without touching the real environment.
var (
	// doctorLookPath resolves a binary on PATH.
	doctorLookPath = exec.LookPath

	// doctorTmuxProbe runs `tmux list-sessions` and returns its error.
	doctorTmuxProbe = defaultTmuxProbe
)

func defaultTmuxProbe() error {
	return exec.Command("tmux", "list-sessions").Run()
}

func runDoctor(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonOut := fs.Bool("json", false, "emit machine-readable JSON")
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	result := DoctorResult{Version: "1"}
	result.Checks = append(result.Checks, evalTmuxInstalled())
	result.Checks = append(result.Checks, evalTmuxServer())
	result.Checks = append(result.Checks, evalConfig(*configPath)...)
	result.Checks = append(result.Checks, evalDataDir())

	for _, c := range result.Checks {
		switch c.Status {
		case statusPass:
			result.Summary.Pass++
		case statusWarn:
			result.Summary.Warn++
		case statusFail:
			result.Summary.Fail++
		}
	}

	if *jsonOut {
		if err := renderDoctorJSON(stdout, result); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		renderDoctorHuman(stdout, result)
	}

	if result.Summary.Fail > 0 {
		return 1
	}
	return 0
}

// evalTmuxInstalled verifies the tmux binary exists on PATH.
func evalTmuxInstalled() DoctorCheck {
	path, err := doctorLookPath("tmux")
	if err != nil {
		return DoctorCheck{
			ID:         checkIDTmuxInstalled,
			Status:     statusFail,
			Message:    "tmux not found on PATH",
			NextAction: "Install tmux (e.g., 'apt install tmux' or 'brew install tmux')",
		}
	}
	return DoctorCheck{
		ID:      checkIDTmuxInstalled,
		Status:  statusPass,
		Message: fmt.Sprintf("tmux found at %s", path),
	}
}

// evalTmuxServer probes for a running tmux server. No server is a
// warning, not a failure: the daemon starts fine and picks sessions up
// as they appear.
func evalTmuxServer() DoctorCheck {
	if err := doctorTmuxProbe(); err != nil {
		return DoctorCheck{
			ID:         checkIDTmuxServer,
			Status:     statusWarn,
			Message:    "no tmux server running",
			NextAction: "Start a session with 'tmux new -s main'; the daemon will pick it up",
		}
	}
	return DoctorCheck{
		ID:      checkIDTmuxServer,
		Status:  statusPass,
		Message: "tmux server is running",
	}
}

// evalConfig loads the config and validates the notification patterns.
func evalConfig(path string) []DoctorCheck {
	cfg, err := config.Load(path)
	if err != nil {
		return []DoctorCheck{{
			ID:         checkIDConfig,
			Status:     statusFail,
			Message:    fmt.Sprintf("config failed to load: %v", err),
			NextAction: "Fix or remove the config file",
		}}
	}

	checks := []DoctorCheck{{
		ID:      checkIDConfig,
		Status:  statusPass,
		Message: fmt.Sprintf("config loaded (addr %s)", cfg.Addr),
	}}

	var badPatterns int
	for _, family := range [][]string{cfg.ApprovalPatterns, cfg.ErrorPatterns, cfg.PromptPatterns} {
		_, errs := notify.CompilePatterns(family)
		badPatterns += len(errs)
	}
	if badPatterns > 0 {
		checks = append(checks, DoctorCheck{
			ID:         checkIDPatterns,
			Status:     statusWarn,
			Message:    fmt.Sprintf("%d notification pattern(s) fail to compile and will be skipped", badPatterns),
			NextAction: "Fix the invalid regular expressions in the config file",
		})
	} else {
		checks = append(checks, DoctorCheck{
			ID:      checkIDPatterns,
			Status:  statusPass,
			Message: "all notification patterns compile",
		})
	}
	return checks
}

// evalDataDir verifies the data directory is writable.
func evalDataDir() DoctorCheck {
	dbPath, err := config.DefaultDBPath()
	if err != nil {
		return DoctorCheck{
			ID:         checkIDDataDir,
			Status:     statusFail,
			Message:    fmt.Sprintf("cannot determine data directory: %v", err),
			NextAction: "Ensure HOME is set",
		}
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return DoctorCheck{
			ID:         checkIDDataDir,
			Status:     statusFail,
			Message:    fmt.Sprintf("data directory %s is not writable: %v", dir, err),
			NextAction: "Fix permissions on the directory",
		}
	}
	return DoctorCheck{
		ID:      checkIDDataDir,
		Status:  statusPass,
		Message: fmt.Sprintf("data directory %s is writable", dir),
	}
}

// renderDoctorJSON writes the doctor result as JSON to stdout.
// Only valid JSON is written to stdout; no extra lines.
func renderDoctorJSON(w io.Writer, result DoctorResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// renderDoctorHuman writes the doctor result in human-readable format.
func renderDoctorHuman(w io.Writer, result DoctorResult) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Termrelay Doctor")
	fmt.Fprintln(w, "================")
	fmt.Fprintln(w, "")

	for _, c := range result.Checks {
		icon := statusIcon(c.Status)
		fmt.Fprintf(w, "  %s %s: %s\n", icon, c.ID, c.Message)
		if c.Status != statusPass {
			fmt.Fprintf(w, "    -> %s\n", c.NextAction)
		}
	}

	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Summary: %d passed, %d warnings, %d failures\n",
		result.Summary.Pass, result.Summary.Warn, result.Summary.Fail)
	fmt.Fprintln(w, "")
}

// statusIcon returns a text marker for the check status.
func statusIcon(status string) string {
	switch status {
	case statusPass:
		return "[PASS]"
	case statusWarn:
		return "[WARN]"
	case statusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}
