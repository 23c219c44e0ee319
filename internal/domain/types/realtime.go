package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event is a realtime notification pushed from the server to one user.
//
// The set of implementations is closed: KDCEvent, LifecycleEvent, PFSEvent
// and MessageEvent. Consumers dispatch with a type switch.
type Event interface {
	// Name is the wire name, e.g. "kdc:new-session-key".
	Name() string
	sealedEvent()
}

// KDCEventKind distinguishes the KDC notifications.
type KDCEventKind string

const (
	KDCNewSessionKey KDCEventKind = "new-session-key"
	KDCKeyRevoked    KDCEventKind = "key-revoked"
)

// LifecycleEventKind distinguishes the lifecycle notifications.
type LifecycleEventKind string

const (
	LifecycleRotated   LifecycleEventKind = "rotated"
	LifecycleRevoked   LifecycleEventKind = "revoked"
	LifecycleDestroyed LifecycleEventKind = "destroyed"
	LifecycleExpired   LifecycleEventKind = "expired"
)

// PFSEventKind distinguishes the handshake notifications.
type PFSEventKind string

const (
	PFSInitiatedEvent   PFSEventKind = "initiated"
	PFSEstablishedEvent PFSEventKind = "established"
)

const (
	prefixKDC       = "kdc:"
	prefixLifecycle = "lifecycle:"
	prefixPFS       = "pfs:"
	nameMessage     = "message"
)

// KDCEvent announces a new or revoked session key. EncryptedKey is the
// copy addressed to the recipient of this particular push.
type KDCEvent struct {
	Kind         KDCEventKind   `json:"-"`
	SessionID    SessionID      `json:"sessionId"`
	LinkID       LinkID         `json:"linkId"`
	InitiatorID  UserID         `json:"initiatorId"`
	PeerID       UserID         `json:"peerId"`
	ActorID      UserID         `json:"actorId,omitempty"`
	Fingerprint  Fingerprint    `json:"fingerprint,omitempty"`
	State        LifecycleState `json:"state"`
	ExpiresAt    time.Time      `json:"expiresAt"`
	EncryptedKey *SealedKey     `json:"encryptedKey,omitempty"`
}

// LifecycleEvent announces a lifecycle transition of a KDC session.
type LifecycleEvent struct {
	Kind        LifecycleEventKind `json:"-"`
	SessionID   SessionID          `json:"sessionId"`
	LinkID      LinkID             `json:"linkId"`
	InitiatorID UserID             `json:"initiatorId"`
	PeerID      UserID             `json:"peerId"`
	ActorID     UserID             `json:"actorId,omitempty"`
	Fingerprint Fingerprint        `json:"fingerprint,omitempty"`
	State       LifecycleState     `json:"state"`
	ExpiresAt   time.Time          `json:"expiresAt"`
}

// PFSEvent announces handshake progress.
type PFSEvent struct {
	Kind               PFSEventKind `json:"-"`
	PFSSessionID       PFSSessionID `json:"pfsSessionId"`
	LinkID             LinkID       `json:"linkId,omitempty"`
	InitiatorID        UserID       `json:"initiatorId"`
	PeerID             UserID       `json:"peerId,omitempty"`
	ServerEphemeralKey X25519Public `json:"serverEphemeralPublicKey"`
	Fingerprint        Fingerprint  `json:"fingerprint,omitempty"`
	ExpiresAt          time.Time    `json:"expiresAt"`
}

// MessageEvent carries a relayed message.
type MessageEvent struct {
	Message Message `json:"message"`
}

func (e KDCEvent) Name() string       { return prefixKDC + string(e.Kind) }
func (e LifecycleEvent) Name() string { return prefixLifecycle + string(e.Kind) }
func (e PFSEvent) Name() string       { return prefixPFS + string(e.Kind) }
func (e MessageEvent) Name() string   { return nameMessage }

func (KDCEvent) sealedEvent()       {}
func (LifecycleEvent) sealedEvent() {}
func (PFSEvent) sealedEvent()       {}
func (MessageEvent) sealedEvent()   {}

// Participants returns the users a session event concerns.
func (e KDCEvent) Participants() []UserID { return []UserID{e.InitiatorID, e.PeerID} }

// Participants returns the users a lifecycle event concerns.
func (e LifecycleEvent) Participants() []UserID { return []UserID{e.InitiatorID, e.PeerID} }

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeEvent renders ev as the {"event", "data"} wire envelope.
func EncodeEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{Event: ev.Name(), Data: data})
}

// DecodeEvent parses a wire envelope. Unknown event names are rejected.
func DecodeEvent(b []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	switch {
	case strings.HasPrefix(w.Event, prefixKDC):
		kind := KDCEventKind(strings.TrimPrefix(w.Event, prefixKDC))
		if kind != KDCNewSessionKey && kind != KDCKeyRevoked {
			break
		}
		var ev KDCEvent
		if err := json.Unmarshal(w.Data, &ev); err != nil {
			return nil, err
		}
		ev.Kind = kind
		return ev, nil
	case strings.HasPrefix(w.Event, prefixLifecycle):
		kind := LifecycleEventKind(strings.TrimPrefix(w.Event, prefixLifecycle))
		switch kind {
		case LifecycleRotated, LifecycleRevoked, LifecycleDestroyed, LifecycleExpired:
		default:
			return nil, fmt.Errorf("unknown event %q", w.Event)
		}
		var ev LifecycleEvent
		if err := json.Unmarshal(w.Data, &ev); err != nil {
			return nil, err
		}
		ev.Kind = kind
		return ev, nil
	case strings.HasPrefix(w.Event, prefixPFS):
		kind := PFSEventKind(strings.TrimPrefix(w.Event, prefixPFS))
		if kind != PFSInitiatedEvent && kind != PFSEstablishedEvent {
			break
		}
		var ev PFSEvent
		if err := json.Unmarshal(w.Data, &ev); err != nil {
			return nil, err
		}
		ev.Kind = kind
		return ev, nil
	case w.Event == nameMessage:
		var ev MessageEvent
		if err := json.Unmarshal(w.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	}
	return nil, fmt.Errorf("unknown event %q", w.Event)
}
