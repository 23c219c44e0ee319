package types

import "time"

// LifecycleState is the state of a KDCSession.
type LifecycleState string

const (
	StateIssued    LifecycleState = "issued"
	StateRotated   LifecycleState = "rotated"
	StateRevoked   LifecycleState = "revoked"
	StateDestroyed LifecycleState = "destroyed"
)

// Terminal reports whether no further transition other than destroy is allowed.
func (s LifecycleState) Terminal() bool { return s == StateRevoked || s == StateDestroyed }

// Live reports whether the session key may be used to encrypt traffic.
func (s LifecycleState) Live() bool { return s == StateIssued || s == StateRotated }

// SealedKey is a copy of key material encrypted to one user's X25519
// identity key. Only the holder of the matching private key can open it.
type SealedKey struct {
	EphemeralKey X25519Public `json:"ephemeralKey"`
	Nonce        []byte       `json:"nonce"`
	Ciphertext   []byte       `json:"ciphertext"`
}

// IsZero reports whether the copy has been erased or was never set.
func (k SealedKey) IsZero() bool { return len(k.Ciphertext) == 0 }

// KDCSession is the server-side record of a symmetric session key between
// the two participants of a ContactLink.
//
// SealedMaterial is the key material sealed under the server vault; raw key
// bytes are never persisted. Both SealedMaterial and the per-user copies are
// erased on destroy.
type KDCSession struct {
	ID              SessionID      `json:"id"`
	LinkID          LinkID         `json:"linkId"`
	InitiatorID     UserID         `json:"initiatorId"`
	PeerID          UserID         `json:"peerId"`
	SealedMaterial  []byte         `json:"sealedMaterial,omitempty"`
	KeyForInitiator SealedKey      `json:"keyForInitiator"`
	KeyForPeer      SealedKey      `json:"keyForPeer"`
	Fingerprint     Fingerprint    `json:"fingerprint"`
	Generation      int            `json:"generation"`
	State           LifecycleState `json:"state"`
	IssuedAt        time.Time      `json:"issuedAt"`
	RotatedAt       *time.Time     `json:"rotatedAt,omitempty"`
	RevokedAt       *time.Time     `json:"revokedAt,omitempty"`
	DestroyedAt     *time.Time     `json:"destroyedAt,omitempty"`
	PurgedAt        *time.Time     `json:"purgedAt,omitempty"`
	ExpiresAt       time.Time      `json:"expiresAt"`
}

// Participants returns the two users the session belongs to.
func (s KDCSession) Participants() []UserID { return []UserID{s.InitiatorID, s.PeerID} }

// Has reports whether u participates in the session.
func (s KDCSession) Has(u UserID) bool { return s.InitiatorID == u || s.PeerID == u }

// Expired reports whether the session passed its expiry at now.
func (s KDCSession) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// KeyFor returns the sealed copy addressed to u.
func (s KDCSession) KeyFor(u UserID) (SealedKey, bool) {
	switch u {
	case s.InitiatorID:
		return s.KeyForInitiator, !s.KeyForInitiator.IsZero()
	case s.PeerID:
		return s.KeyForPeer, !s.KeyForPeer.IsZero()
	}
	return SealedKey{}, false
}

// Info projects the session onto the metadata that is safe to display.
func (s KDCSession) Info() SessionInfo {
	return SessionInfo{
		SessionID:   s.ID,
		LinkID:      s.LinkID,
		InitiatorID: s.InitiatorID,
		PeerID:      s.PeerID,
		Fingerprint: s.Fingerprint,
		Generation:  s.Generation,
		State:       s.State,
		IssuedAt:    s.IssuedAt,
		RotatedAt:   s.RotatedAt,
		RevokedAt:   s.RevokedAt,
		DestroyedAt: s.DestroyedAt,
		ExpiresAt:   s.ExpiresAt,
	}
}

// SessionInfo is the read-only projection of a KDCSession. It never
// carries key material.
type SessionInfo struct {
	SessionID   SessionID      `json:"sessionId"`
	LinkID      LinkID         `json:"linkId"`
	InitiatorID UserID         `json:"initiatorId"`
	PeerID      UserID         `json:"peerId"`
	Fingerprint Fingerprint    `json:"fingerprint"`
	Generation  int            `json:"generation"`
	State       LifecycleState `json:"state"`
	IssuedAt    time.Time      `json:"issuedAt"`
	RotatedAt   *time.Time     `json:"rotatedAt,omitempty"`
	RevokedAt   *time.Time     `json:"revokedAt,omitempty"`
	DestroyedAt *time.Time     `json:"destroyedAt,omitempty"`
	ExpiresAt   time.Time      `json:"expiresAt"`
}

// IssuedSession is what the KDC hands back on issuance and rotation: the
// metadata plus both sealed copies.
type IssuedSession struct {
	SessionID                SessionID      `json:"sessionId"`
	Fingerprint              Fingerprint    `json:"fingerprint"`
	State                    LifecycleState `json:"state"`
	ExpiresAt                time.Time      `json:"expiresAt"`
	EncryptedKeyForInitiator SealedKey      `json:"encryptedKeyForInitiator"`
	EncryptedKeyForPeer      SealedKey      `json:"encryptedKeyForPeer"`
	// Fresh is false when an already-live session was returned.
	Fresh bool `json:"fresh"`
}

// CurrentKey is the caller's copy of the live session key for one peer.
type CurrentKey struct {
	SessionID   SessionID      `json:"sessionId"`
	LinkID      LinkID         `json:"linkId"`
	PeerID      UserID         `json:"peerId"`
	Fingerprint Fingerprint    `json:"fingerprint"`
	State       LifecycleState `json:"state"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	Key         SealedKey      `json:"encryptedKey"`
}

// BroadcastKey is the global broadcast key sealed to the caller.
type BroadcastKey struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Key         SealedKey   `json:"encryptedKey"`
}
