package config

// DefaultAddr is the default listen address for the WebSocket server.
const DefaultAddr = "127.0.0.1:7070"

// DefaultBufferBytes is the per-session replay buffer budget (2 MiB).
const DefaultBufferBytes = 2 * 1024 * 1024

// DefaultPollMs is the tmux session list polling interval.
const DefaultPollMs = 1000

// DefaultNotifyCooldownSec is the per-category notification cooldown.
const DefaultNotifyCooldownSec = 30

// DefaultScanBudgetMs is the pattern scan budget per output chunk.
const DefaultScanBudgetMs = 50

// DefaultWindowBytes is the sliding-window size for pattern matching.
const DefaultWindowBytes = 4096
