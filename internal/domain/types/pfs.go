package types

import "time"

// PFSState is the state of an ephemeral handshake.
type PFSState string

const (
	PFSInitiated   PFSState = "initiated"
	PFSEstablished PFSState = "established"
	PFSExpired     PFSState = "expired"
)

// PFSSession is the durable record of a handshake. The server's ephemeral
// private key is never part of it.
type PFSSession struct {
	ID                 PFSSessionID `json:"id"`
	LinkID             LinkID       `json:"linkId,omitempty"`
	InitiatorID        UserID       `json:"initiatorId"`
	PeerID             UserID       `json:"peerId,omitempty"`
	ServerEphemeralKey X25519Public `json:"serverEphemeralPublicKey"`
	ClientEphemeralKey X25519Public `json:"clientEphemeralPublicKey"`
	DerivedFingerprint Fingerprint  `json:"derivedFingerprint,omitempty"`
	State              PFSState     `json:"state"`
	CreatedAt          time.Time    `json:"createdAt"`
	EstablishedAt      *time.Time   `json:"establishedAt,omitempty"`
	ExpiresAt          time.Time    `json:"expiresAt"`
}

// Participants returns the users that may observe the handshake.
func (s PFSSession) Participants() []UserID {
	if s.PeerID == "" {
		return []UserID{s.InitiatorID}
	}
	return []UserID{s.InitiatorID, s.PeerID}
}

// Has reports whether u participates in the handshake.
func (s PFSSession) Has(u UserID) bool { return s.InitiatorID == u || (s.PeerID != "" && s.PeerID == u) }

// PFSStart is returned by start.
type PFSStart struct {
	PFSSessionID       PFSSessionID `json:"pfsSessionId"`
	ServerEphemeralKey X25519Public `json:"serverEphemeralPublicKey"`
	ExpiresAt          time.Time    `json:"expiresAt"`
}

// PFSCompletion is returned by complete.
type PFSCompletion struct {
	PFSSessionID       PFSSessionID `json:"pfsSessionId"`
	DerivedFingerprint Fingerprint  `json:"derivedFingerprint"`
	ExpiresAt          time.Time    `json:"expiresAt"`
}
