package types

import (
	"encoding/binary"
	"time"
)

// RegisterRequest is the body of POST /users/register.
//
// Proof is an Ed25519 signature by SigningKey over ProofMessage. It shows
// the caller holds the private half, since the public keys themselves are
// readable by anyone through GET /users/{id}.
type RegisterRequest struct {
	UserID      UserID        `json:"userId"`
	IdentityKey X25519Public  `json:"identityKey"`
	SigningKey  Ed25519Public `json:"signingKey"`
	IssuedAt    time.Time     `json:"issuedAt"`
	Proof       []byte        `json:"proof"`
}

// registerProofLabel separates registration proofs from message signatures.
const registerProofLabel = "cipherlink/register/v1"

// ProofMessage returns the bytes Proof signs: a label, the user id, both
// public keys and IssuedAt in Unix nanoseconds.
func (r RegisterRequest) ProofMessage() []byte {
	b := make([]byte, 0, len(registerProofLabel)+len(r.UserID)+2+64+8)
	b = append(b, registerProofLabel...)
	b = append(b, 0)
	b = append(b, r.UserID...)
	b = append(b, 0)
	b = append(b, r.IdentityKey[:]...)
	b = append(b, r.SigningKey[:]...)
	return binary.BigEndian.AppendUint64(b, uint64(r.IssuedAt.UnixNano()))
}

// User returns the public record the request asks to store.
func (r RegisterRequest) User() User {
	return User{ID: r.UserID, IdentityKey: r.IdentityKey, SigningKey: r.SigningKey}
}

// RegisterResponse carries the stored record and a bearer token.
type RegisterResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// PeerRequest names the other side of a link.
type PeerRequest struct {
	PeerID UserID `json:"peerId"`
}

// PFSStartRequest is the body of POST /pfs/start. InitiatorID, when set,
// must be the caller. PeerID is optional.
type PFSStartRequest struct {
	InitiatorID UserID `json:"initiatorId,omitempty"`
	PeerID      UserID `json:"peerId,omitempty"`
}

// PFSCompleteRequest is the body of POST /pfs/complete.
type PFSCompleteRequest struct {
	PFSSessionID       PFSSessionID `json:"pfsSessionId"`
	ClientEphemeralKey X25519Public `json:"clientEphemeralPublicKey"`
}

// SessionRequest names a KDC session for a lifecycle operation.
type SessionRequest struct {
	SessionID SessionID `json:"sessionId"`
}

// AddBlockRequest is the body of POST /blockchain/add-block.
type AddBlockRequest struct {
	MessageHash string `json:"messageHash"`
	SenderID    UserID `json:"senderId,omitempty"`
	ReceiverID  UserID `json:"receiverId,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
