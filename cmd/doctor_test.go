package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// withDoctorSeams swaps the doctor probe functions for the duration of
// a test and restores them afterward.
func withDoctorSeams(t *testing.T, lookPath func(string) (string, error), probe func() error) {
	t.Helper()
	origLook := doctorLookPath
	origProbe := doctorTmuxProbe
	doctorLookPath = lookPath
	doctorTmuxProbe = probe
	t.Cleanup(func() {
		doctorLookPath = origLook
		doctorTmuxProbe = origProbe
	})
}

func TestDoctorAllPass(t *testing.T) {
	withDoctorSeams(t,
		func(string) (string, error) { return "/usr/bin/tmux", nil },
		func() error { return nil },
	)

	var stdout, stderr bytes.Buffer
	code := runDoctor(nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "[PASS] tmux.installed") {
		t.Errorf("expected tmux.installed pass, got:\n%s", out)
	}
	if !strings.Contains(out, "[PASS] tmux.server") {
		t.Errorf("expected tmux.server pass, got:\n%s", out)
	}
	if strings.Contains(out, "[FAIL]") {
		t.Errorf("expected no failures, got:\n%s", out)
	}
}

func TestDoctorTmuxMissingFails(t *testing.T) {
	withDoctorSeams(t,
		func(string) (string, error) { return "", errors.New("not found") },
		func() error { return errors.New("no tmux") },
	)

	var stdout, stderr bytes.Buffer
	code := runDoctor(nil, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1 when tmux missing, got %d", code)
	}
	if !strings.Contains(stdout.String(), "[FAIL] tmux.installed") {
		t.Errorf("expected tmux.installed failure, got:\n%s", stdout.String())
	}
}

func TestDoctorNoServerIsWarning(t *testing.T) {
	withDoctorSeams(t,
		func(string) (string, error) { return "/usr/bin/tmux", nil },
		func() error { return errors.New("no server running") },
	)

	var stdout, stderr bytes.Buffer
	code := runDoctor(nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("a missing tmux server must not fail doctor, got exit %d", code)
	}
	if !strings.Contains(stdout.String(), "[WARN] tmux.server") {
		t.Errorf("expected tmux.server warning, got:\n%s", stdout.String())
	}
}

func TestDoctorJSONOutput(t *testing.T) {
	withDoctorSeams(t,
		func(string) (string, error) { return "/usr/bin/tmux", nil },
		func() error { return nil },
	)

	var stdout, stderr bytes.Buffer
	code := runDoctor([]string{"--json"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}

	var result DoctorResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		t.Fatalf("stdout is not valid JSON: %v\n%s", err, stdout.String())
	}
	if result.Version != "1" {
		t.Errorf("expected schema version 1, got %q", result.Version)
	}
	if len(result.Checks) == 0 {
		t.Fatal("expected at least one check")
	}
	if result.Summary.Pass+result.Summary.Warn+result.Summary.Fail != len(result.Checks) {
		t.Errorf("summary counts %+v do not add up to %d checks", result.Summary, len(result.Checks))
	}
}
