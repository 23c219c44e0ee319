package types

import "time"

// EventSource names the subsystem that produced a KeyEvent.
type EventSource string

const (
	SourceKDC       EventSource = "KDC"
	SourcePFS       EventSource = "PFS"
	SourceLifecycle EventSource = "LIFECYCLE"
)

// Valid reports whether s is one of the known sources.
func (s EventSource) Valid() bool {
	switch s {
	case SourceKDC, SourcePFS, SourceLifecycle:
		return true
	}
	return false
}

// Event types recorded in the key event log.
const (
	EventGenerated      = "generated"
	EventRotated        = "rotated"
	EventRevoked        = "revoked"
	EventDestroyed      = "destroyed"
	EventExpired        = "expired"
	EventMaterialPurged = "material-purged"
	EventPFSInitiated   = "initiated"
	EventPFSEstablished = "established"
)

// KeyEvent is an immutable audit record of one cryptographic state
// transition.
type KeyEvent struct {
	ID        string            `json:"id"`
	Source    EventSource       `json:"source"`
	Type      string            `json:"eventType"`
	SessionID SessionID         `json:"kdcSessionId,omitempty"`
	ActorID   UserID            `json:"actorId,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	// BlockHeight is the ledger block that anchors this event.
	BlockHeight int64 `json:"blockHeight"`
}

// KeyEventFilter narrows a key event listing. Zero values match everything.
type KeyEventFilter struct {
	SessionID SessionID   `json:"sessionId,omitempty"`
	Source    EventSource `json:"source,omitempty"`
	Limit     int         `json:"limit,omitempty"`
	Offset    int         `json:"offset,omitempty"`
}

// Match reports whether ev passes the filter's predicates (ignoring paging).
func (f KeyEventFilter) Match(ev KeyEvent) bool {
	if f.SessionID != "" && ev.SessionID != f.SessionID {
		return false
	}
	if f.Source != "" && ev.Source != f.Source {
		return false
	}
	return true
}
