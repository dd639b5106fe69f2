package notify

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notification is an event that survived the cooldown and is handed to
// the broadcast collaborator for delivery to all connected devices.
type Notification struct {
	SessionID string
	Category  Category
	Pattern   string
	Snippet   string
	At        time.Time
}

// AuditEntry records an emitted notification for later inspection.
// This is a copy of the storage type to avoid import cycles.
type AuditEntry struct {
	ID        string
	SessionID string
	Category  string
	Pattern   string
	Snippet   string
	EmittedAt time.Time
}

// AuditStore persists emitted notifications. Implemented by the SQLite
// store; a nil store disables auditing.
type AuditStore interface {
	SaveNotificationAudit(entry *AuditEntry) error
}

// Dispatcher applies the per-category cooldown to one session's matches
// and routes surviving events to the broadcast function.
//
// Cooldown state is independent per category: an error and an approval
// in the same session do not suppress each other. Broadcast and audit
// failures are logged and otherwise ignored; notification delivery is
// best-effort and never blocks the output pipeline.
type Dispatcher struct {
	mu sync.Mutex

	sessionID string
	cooldown  time.Duration

	// lastEmit tracks the last emitted notification time per category.
	lastEmit map[Category]time.Time

	// broadcast delivers the notification to all connected devices.
	broadcast func(Notification)

	// audit persists emitted notifications. Nil means no audit logging.
	audit AuditStore

	// now is the clock, injectable for cooldown tests.
	now func() time.Time
}

// NewDispatcher creates a dispatcher for one session. The broadcast
// function must not block; the server's broadcast path queues and drops
// rather than waiting on slow devices.
func NewDispatcher(sessionID string, cooldown time.Duration, broadcast func(Notification), audit AuditStore) *Dispatcher {
	return &Dispatcher{
		sessionID: sessionID,
		cooldown:  cooldown,
		lastEmit:  make(map[Category]time.Time),
		broadcast: broadcast,
		audit:     audit,
		now:       time.Now,
	}
}

// Dispatch runs the cooldown policy over a scan's matches and emits at
// most one notification per category. Returns the number of emitted
// notifications.
func (d *Dispatcher) Dispatch(matches []Match) int {
	if len(matches) == 0 {
		return 0
	}

	emitted := 0
	for _, match := range matches {
		if d.emit(match) {
			emitted++
		}
	}
	return emitted
}

// emit applies the cooldown for one match and broadcasts if it survives.
func (d *Dispatcher) emit(match Match) bool {
	d.mu.Lock()
	now := d.now()
	if last, ok := d.lastEmit[match.Category]; ok && now.Sub(last) < d.cooldown {
		d.mu.Unlock()
		return false
	}
	d.lastEmit[match.Category] = now
	broadcast := d.broadcast
	audit := d.audit
	d.mu.Unlock()

	n := Notification{
		SessionID: d.sessionID,
		Category:  match.Category,
		Pattern:   match.Pattern,
		Snippet:   match.Snippet,
		At:        now,
	}

	if broadcast != nil {
		broadcast(n)
	}
	log.Printf("notify: session=%s category=%s pattern=%q", d.sessionID, match.Category, match.Pattern)

	if audit != nil {
		entry := &AuditEntry{
			ID:        uuid.New().String(),
			SessionID: n.SessionID,
			Category:  string(n.Category),
			Pattern:   n.Pattern,
			Snippet:   n.Snippet,
			EmittedAt: n.At,
		}
		if err := audit.SaveNotificationAudit(entry); err != nil {
			log.Printf("notify: warning: failed to save audit entry: %v", err)
		}
	}

	return true
}

// Reset clears the cooldown state. Called on session teardown.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastEmit = make(map[Category]time.Time)
}
