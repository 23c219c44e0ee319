package types

import "time"

// SignatureStatus is the verdict of verifying a message signature.
type SignatureStatus string

const (
	SignatureValid    SignatureStatus = "valid"
	SignatureInvalid  SignatureStatus = "invalid"
	SignatureUnsigned SignatureStatus = "unsigned"
)

// OutboundMessage is the transport payload a client submits. LinkID is
// empty for the broadcast channel.
type OutboundMessage struct {
	LinkID         LinkID      `json:"contactLinkId,omitempty"`
	Ciphertext     []byte      `json:"ciphertext"`
	IV             []byte      `json:"iv"`
	Signature      []byte      `json:"signature,omitempty"`
	SignerKey      []byte      `json:"signerKey,omitempty"`
	KeyFingerprint Fingerprint `json:"sessionKeyFingerprint"`
}

// Message is the stored, immutable record of a sent message.
type Message struct {
	ID              string          `json:"id"`
	LinkID          LinkID          `json:"contactLinkId,omitempty"`
	SenderID        UserID          `json:"senderId"`
	Ciphertext      []byte          `json:"ciphertext"`
	IV              []byte          `json:"iv"`
	Signature       []byte          `json:"signature,omitempty"`
	SignerKey       []byte          `json:"signerKey,omitempty"`
	MessageHash     string          `json:"messageHash"`
	KeyFingerprint  Fingerprint     `json:"sessionKeyFingerprint"`
	SignatureStatus SignatureStatus `json:"signatureStatus"`
	BlockHeight     int64           `json:"blockHeight"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Broadcast reports whether the message was sent on the global channel.
func (m Message) Broadcast() bool { return m.LinkID == "" }

// DeliveredMessage is what the pipeline surfaces to the UI layer. A message
// that fails to decrypt or verify is still delivered, with flags set.
// StaleKey marks a message sealed under a key that is no longer live.
type DeliveredMessage struct {
	Message         Message         `json:"message"`
	Plaintext       []byte          `json:"plaintext,omitempty"`
	Undecryptable   bool            `json:"undecryptable"`
	StaleKey        bool            `json:"staleKey,omitempty"`
	SignatureStatus SignatureStatus `json:"signatureStatus"`
	Reason          string          `json:"reason,omitempty"`
}

// Flagged reports whether the UI should highlight the message.
func (d DeliveredMessage) Flagged() bool {
	return d.Undecryptable || d.StaleKey || d.SignatureStatus == SignatureInvalid
}

// MessageFilter narrows a history listing.
type MessageFilter struct {
	LinkID LinkID `json:"linkId,omitempty"`
	// Broadcast selects messages on the global channel when LinkID is empty.
	Broadcast bool `json:"broadcast,omitempty"`
	Limit     int  `json:"limit,omitempty"`
}
