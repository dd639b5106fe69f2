// Package config provides TOML configuration file loading for the
// daemon. The configuration file lives at ~/.termrelay/config.toml by
// default, but can be overridden with the --config flag. CLI flags
// always take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the daemon configuration file structure. Field
// names use Go camelCase internally but map to snake_case in TOML files
// via struct tags.
type Config struct {
	// Addr is the host:port for the WebSocket server.
	// Default: 127.0.0.1:7070
	Addr string `toml:"addr"`

	// DBPath is the path to the SQLite database for the notification
	// audit trail and session metadata.
	// Default: ~/.termrelay/termrelay.db
	DBPath string `toml:"db_path"`

	// BufferBytes is the per-session replay buffer byte budget.
	// Default: 2097152 (2 MiB)
	BufferBytes int `toml:"buffer_bytes"`

	// PollMs is the interval for tmux session list polling in
	// milliseconds. Default: 1000
	PollMs int `toml:"poll_ms"`

	// ApprovalPatterns are regular expressions matched against cleaned
	// terminal output to detect approval prompts. Malformed patterns
	// are skipped at load time with a logged error.
	ApprovalPatterns []string `toml:"approval_patterns"`

	// ErrorPatterns detect error output.
	ErrorPatterns []string `toml:"error_patterns"`

	// PromptPatterns detect an idle shell prompt.
	PromptPatterns []string `toml:"prompt_patterns"`

	// NotifyCooldownSec is the per-category notification cooldown in
	// seconds. Default: 30
	NotifyCooldownSec int `toml:"notify_cooldown_sec"`

	// ScanBudgetMs is the wall-clock budget for pattern scanning per
	// output chunk, in milliseconds. Default: 50
	ScanBudgetMs int `toml:"scan_budget_ms"`

	// WindowBytes is the sliding-window size for cross-chunk pattern
	// matching. Default: 4096
	WindowBytes int `toml:"window_bytes"`

	// MdnsEnabled enables mDNS/Bonjour service advertisement. When
	// true, the daemon advertises itself on the local network so
	// mobile apps can discover it without manual IP entry.
	// Default: false (must be explicitly enabled)
	MdnsEnabled bool `toml:"mdns_enabled"`

	// LogFile is the path for daemon log output. Empty logs to stderr.
	LogFile string `toml:"log_file"`
}

// DefaultConfigPath returns the default config file location:
// ~/.termrelay/config.toml. Returns an error only if the user's home
// directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".termrelay", "config.toml"), nil
}

// DefaultDBPath returns the default database location:
// ~/.termrelay/termrelay.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".termrelay", "termrelay.db"), nil
}

// Load reads a TOML config file from the given path and returns a
// Config with defaults applied.
//
// Behavior:
//   - If path is empty, attempts to load from the default location.
//     Returns a default Config without error if that file is missing.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		// No explicit path: try default location, but don't error if
		// missing. The daemon runs fine without any config file.
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			cfg.applyDefaults()
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if the file doesn't exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	// Parse errors are fatal since the user expects the config applied.
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero-valued fields with defaults.
func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.BufferBytes <= 0 {
		c.BufferBytes = DefaultBufferBytes
	}
	if c.PollMs <= 0 {
		c.PollMs = DefaultPollMs
	}
	if c.NotifyCooldownSec <= 0 {
		c.NotifyCooldownSec = DefaultNotifyCooldownSec
	}
	if c.ScanBudgetMs <= 0 {
		c.ScanBudgetMs = DefaultScanBudgetMs
	}
	if c.WindowBytes <= 0 {
		c.WindowBytes = DefaultWindowBytes
	}
}

// PollInterval returns the tmux polling interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollMs) * time.Millisecond
}

// NotifyCooldown returns the notification cooldown as a duration.
func (c *Config) NotifyCooldown() time.Duration {
	return time.Duration(c.NotifyCooldownSec) * time.Second
}

// ScanBudget returns the pattern scan budget as a duration.
func (c *Config) ScanBudget() time.Duration {
	return time.Duration(c.ScanBudgetMs) * time.Millisecond
}

// WriteDefault creates a config file with LAN-ready defaults at the
// given path.
//
// Behavior:
//   - If the file already exists, returns without error.
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, never overwrite.
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := `# termrelay configuration

# Listen on all interfaces for LAN access
addr = "0.0.0.0:7070"

# Advertise on the local network for device discovery
mdns_enabled = true
`

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
