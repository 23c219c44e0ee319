// Package message implements the message pipeline.
//
// The pipeline half (Encrypt, Decrypt, ComputeMessageHash, signers and
// Verify) is shared by both sides. Relay is the server: it checks the
// sender may use the link, verifies the signature against the sender's
// registered key, anchors the message hash in the ledger, stores the
// message and pushes it. Client is the sending and receiving side on top
// of a SessionKeyCache.
//
// Nothing on the receiving path drops a message. A message that fails to
// decrypt or verify is delivered with Undecryptable set or an invalid
// signature verdict, and a reason.
package message
