package types

import "time"

// Identity holds your long-term X25519 and Ed25519 keys.
type Identity struct {
	XPub   X25519Public   `json:"xpub"`
	XPriv  X25519Private  `json:"xpriv"`
	EdPub  Ed25519Public  `json:"edpub"`
	EdPriv Ed25519Private `json:"edpriv"`
}

// User is the public record the server keeps for a registered user.
//
// IdentityKey is the credential KDC key copies are sealed to; SigningKey
// verifies message signatures.
type User struct {
	ID           UserID        `json:"userId"`
	IdentityKey  X25519Public  `json:"identityKey"`
	SigningKey   Ed25519Public `json:"signingKey"`
	RegisteredAt time.Time     `json:"registeredAt"`
}
