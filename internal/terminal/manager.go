// Package terminal orchestrates per-session terminal state: the replay
// buffer, the set of attached devices, and the output pattern matcher.
//
// The manager sits between three collaborators it does not implement:
// the session directory (resolves session IDs to tmux sessions), the
// process executor (delivers keystrokes and resizes), and the device
// transport (sends events to one device or broadcasts to all). Output
// capture invokes HandleOutput; device requests arrive through Attach,
// Detach, HandleInput, and HandleResize.
package terminal

import (
	"log"
	"sync"

	apperrors "github.com/termrelay/host/internal/errors"
	"github.com/termrelay/host/internal/keymap"
	"github.com/termrelay/host/internal/notify"
	"github.com/termrelay/host/internal/replay"
)

// SessionInfo is the directory's answer for a session identifier.
type SessionInfo struct {
	// MuxName is the tmux-internal session name, used for executor calls.
	MuxName string

	// Status describes the session lifecycle ("running", "exited").
	Status string

	// DisplayName is an optional human-readable name.
	DisplayName string
}

// Directory resolves session identifiers. Implemented by the tmux
// directory; the manager only ever calls Lookup.
type Directory interface {
	Lookup(sessionID string) (SessionInfo, bool)
}

// Executor delivers raw bytes and resize commands to the multiplexer.
type Executor interface {
	SendKeys(muxName string, data []byte) error
	Resize(muxName string, cols, rows int) error
}

// Transport delivers events to devices. All methods are best-effort and
// must not block: the server queues per device and drops when a device
// cannot keep up.
type Transport interface {
	SendOutput(deviceID, sessionID string, seq uint64, data []byte)
	SendOutputSkipped(deviceID, sessionID string, fromSeq uint64)
	SendAttached(deviceID, sessionID string)
	SendDetached(deviceID, sessionID string)
	SendError(deviceID, sessionID, code, message string)
	BroadcastNotification(sessionID, category, pattern, snippet string)
}

// session is the per-session state owned by the manager. Created lazily
// on first attach or first output, destroyed on Teardown.
type session struct {
	buffer     *replay.Buffer
	attached   map[string]bool
	matcher    *notify.Matcher
	dispatcher *notify.Dispatcher
}

// Manager owns all per-session terminal state, indexed by session ID.
//
// Concurrency: the mutex guards the session table and attachment sets.
// It is held only for bookkeeping, never across an executor or transport
// call. Output delivery arrives on capture goroutines while device
// requests arrive on connection goroutines; the replay buffer and the
// matcher carry their own locks so both sides observe consistent state.
type Manager struct {
	mu sync.Mutex

	sessions map[string]*session

	directory Directory
	executor  Executor
	transport Transport

	// notifyCfg is shared read-only across all sessions.
	notifyCfg *notify.Config

	// audit receives emitted notifications; nil disables auditing.
	audit notify.AuditStore

	// bufferBytes is the replay buffer byte budget per session.
	bufferBytes int
}

// ManagerConfig wires the manager's collaborators and tuning.
type ManagerConfig struct {
	Directory   Directory
	Executor    Executor
	Transport   Transport
	Notify      *notify.Config
	Audit       notify.AuditStore
	BufferBytes int
}

// NewManager creates a manager with no session state. Sessions appear
// lazily as activity is observed.
func NewManager(cfg ManagerConfig) *Manager {
	notifyCfg := cfg.Notify
	if notifyCfg == nil {
		notifyCfg = notify.DefaultConfig()
	}
	return &Manager{
		sessions:    make(map[string]*session),
		directory:   cfg.Directory,
		executor:    cfg.Executor,
		transport:   cfg.Transport,
		notifyCfg:   notifyCfg,
		audit:       cfg.Audit,
		bufferBytes: cfg.BufferBytes,
	}
}

// getOrCreate returns the session state, creating buffer, matcher, and
// dispatcher on first activity. Caller must hold m.mu.
func (m *Manager) getOrCreate(sessionID string) *session {
	s, ok := m.sessions[sessionID]
	if ok {
		return s
	}

	s = &session{
		buffer:   replay.New(m.bufferBytes),
		attached: make(map[string]bool),
		matcher:  notify.NewMatcher(m.notifyCfg),
	}
	s.dispatcher = notify.NewDispatcher(sessionID, m.notifyCfg.Cooldown, func(n notify.Notification) {
		m.transport.BroadcastNotification(n.SessionID, string(n.Category), n.Pattern, n.Snippet)
	}, m.audit)
	m.sessions[sessionID] = s

	log.Printf("terminal: session %s state created", sessionID)
	return s
}

// Attach subscribes a device to a session's live output. If lastSeq is
// non-nil the device is reconnecting: buffered chunks from that sequence
// onward are replayed immediately, preceded by an output-skipped event
// when the requested range was partially evicted.
func (m *Manager) Attach(sessionID, deviceID string, lastSeq *uint64) error {
	if err := ValidateSessionID(sessionID); err != nil {
		m.reportError(deviceID, sessionID, err)
		return err
	}

	if _, ok := m.directory.Lookup(sessionID); !ok {
		err := apperrors.SessionNotFound(sessionID)
		m.reportError(deviceID, sessionID, err)
		return err
	}

	m.mu.Lock()
	s := m.getOrCreate(sessionID)
	s.attached[deviceID] = true
	var chunks []replay.Chunk
	var gapFrom uint64
	var gap bool
	if lastSeq != nil {
		// The device has seen everything up to lastSeq; replay starts
		// at the next sequence.
		chunks, gapFrom, gap = s.buffer.GetFrom(*lastSeq + 1)
	}
	m.mu.Unlock()

	log.Printf("terminal: device %s attached to session %s", deviceID, sessionID)
	m.transport.SendAttached(deviceID, sessionID)

	if gap {
		m.transport.SendOutputSkipped(deviceID, sessionID, gapFrom)
	}
	for _, c := range chunks {
		m.transport.SendOutput(deviceID, sessionID, c.Seq, c.Data)
	}
	return nil
}

// Detach removes a device's subscription. Buffer and matcher state are
// retained even when the last device leaves, to support later reconnect;
// only an explicit Teardown clears them.
func (m *Manager) Detach(sessionID, deviceID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(s.attached, deviceID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	log.Printf("terminal: device %s detached from session %s", deviceID, sessionID)
	m.transport.SendDetached(deviceID, sessionID)
}

// Input carries one device input request: either raw bytes or a logical
// key with modifiers (resolved through the key encoder).
type Input struct {
	// Data is raw bytes to forward as-is. Ignored when Key is set.
	Data []byte

	// Key is a logical key identifier ("up", "f5", "ctrl_c").
	Key string

	// Modifiers is the Shift/Alt/Ctrl bitmask applied to Key.
	Modifiers int
}

// HandleInput validates and forwards device input to the multiplexer.
// Validation failures are reported once to the originating device and
// the request is dropped.
func (m *Manager) HandleInput(sessionID, deviceID string, in Input) error {
	if err := ValidateSessionID(sessionID); err != nil {
		m.reportError(deviceID, sessionID, err)
		return err
	}
	if err := ValidateInputSize(len(in.Data)); err != nil {
		m.reportError(deviceID, sessionID, err)
		return err
	}

	info, ok := m.directory.Lookup(sessionID)
	if !ok {
		err := apperrors.SessionNotFound(sessionID)
		m.reportError(deviceID, sessionID, err)
		return err
	}

	data := in.Data
	if in.Key != "" {
		data = keymap.Encode(in.Key, in.Modifiers)
		if len(data) == 0 {
			// Unknown key identifiers are a no-op, not an error.
			log.Printf("terminal: ignoring unknown key %q from device %s", in.Key, deviceID)
			return nil
		}
	}
	if len(data) == 0 {
		return nil
	}

	if err := m.executor.SendKeys(info.MuxName, data); err != nil {
		coded := apperrors.InputSendFailed(sessionID, err)
		m.reportError(deviceID, sessionID, coded)
		return coded
	}
	return nil
}

// HandleResize forwards a resize request to the multiplexer. No local
// validation beyond session presence.
func (m *Manager) HandleResize(sessionID, deviceID string, cols, rows int) error {
	info, ok := m.directory.Lookup(sessionID)
	if !ok {
		err := apperrors.SessionNotFound(sessionID)
		m.reportError(deviceID, sessionID, err)
		return err
	}

	if err := m.executor.Resize(info.MuxName, cols, rows); err != nil {
		coded := apperrors.Wrap(apperrors.CodeTmuxResizeFailed, "resize failed", err)
		m.reportError(deviceID, sessionID, coded)
		return coded
	}
	log.Printf("terminal: session %s resized to %dx%d", sessionID, cols, rows)
	return nil
}

// HandleOutput is the output-source callback. It appends the chunk to
// the replay buffer, fans the assigned sequence out to every attached
// device, and feeds the chunk to the pattern matcher. Chunks for one
// session arrive FIFO from the capture goroutine; sequence numbers
// reflect that order exactly.
func (m *Manager) HandleOutput(sessionID string, data []byte) {
	if len(data) == 0 {
		return
	}

	m.mu.Lock()
	s := m.getOrCreate(sessionID)
	seq := s.buffer.Append(data)
	devices := make([]string, 0, len(s.attached))
	for d := range s.attached {
		devices = append(devices, d)
	}
	matcher, dispatcher := s.matcher, s.dispatcher
	m.mu.Unlock()

	// Fan-out is independent per device: the transport queues per
	// device and drops on overflow, so one slow device cannot delay
	// the others or this goroutine.
	for _, d := range devices {
		m.transport.SendOutput(d, sessionID, seq, data)
	}

	dispatcher.Dispatch(matcher.Process(data))
}

// Teardown clears all state for a session. Invoked by an external actor
// (the directory noticing a killed tmux session, or an admin request).
// Afterward the session ID behaves as unknown until new activity
// recreates state.
func (m *Manager) Teardown(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	var devices []string
	if ok {
		for d := range s.attached {
			devices = append(devices, d)
		}
		s.buffer.Clear()
		s.matcher.Reset()
		s.dispatcher.Reset()
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	log.Printf("terminal: session %s torn down (%d devices detached)", sessionID, len(devices))
	for _, d := range devices {
		m.transport.SendDetached(d, sessionID)
	}
}

// AttachedDevices returns the devices currently subscribed to a session.
func (m *Manager) AttachedDevices(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	devices := make([]string, 0, len(s.attached))
	for d := range s.attached {
		devices = append(devices, d)
	}
	return devices
}

// SessionCount returns how many sessions currently hold state.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// reportError surfaces a failure to the originating device as a
// terminal-error event. Errors are reported once; requests are dropped,
// not retried.
func (m *Manager) reportError(deviceID, sessionID string, err error) {
	code, message := apperrors.ToCodeAndMessage(err)
	log.Printf("terminal: session=%s device=%s %s: %s", sessionID, deviceID, code, message)
	if deviceID != "" {
		m.transport.SendError(deviceID, sessionID, code, message)
	}
}
