// Package pfs runs the server side of the ephemeral X25519 handshake.
//
// Start keeps the server's ephemeral private key in process memory only,
// keyed by a fresh handshake id. Complete pops it, so a handshake can be
// completed at most once, combines it with the client's ephemeral key and
// binds both public keys into the HKDF info. Only the fingerprint of the
// derived secret is stored. Handshakes not completed within the pending
// TTL are expired by Sweep, which wipes their private halves.
package pfs
