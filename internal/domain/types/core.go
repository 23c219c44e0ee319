package types

// UserID identifies a registered user.
type UserID string

// String returns the string form of the user identifier.
func (u UserID) String() string { return string(u) }

// LinkID identifies a ContactLink.
type LinkID string

// String returns the string form of the link identifier.
func (id LinkID) String() string { return string(id) }

// SessionID identifies a KDC session. It is stable across rotations.
type SessionID string

// String returns the string form of the session identifier.
func (id SessionID) String() string { return string(id) }

// PFSSessionID identifies one ephemeral handshake.
type PFSSessionID string

// String returns the string form of the handshake identifier.
func (id PFSSessionID) String() string { return string(id) }

// Fingerprint is a hex digest of key material, safe to display and compare.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
