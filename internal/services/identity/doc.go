// Package identity owns the long-term key pairs of a CipherLink client.
//
// An identity is an X25519 pair that the KDC seals session keys to and an
// Ed25519 pair that signs outgoing messages. Both live in one passphrase
// encrypted file. Init happens once per home directory; the fingerprint
// shown to users hashes both public keys together.
package identity
