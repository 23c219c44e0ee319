// Package crypto exposes the primitives used by CipherLink.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman with low-order
//     point rejection (GenerateX25519, PublicFromPrivate, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - HKDF-SHA256 derivation with context binding (DeriveKey,
//     DeriveHandshakeSecret, DeriveBroadcastKey)
//   - XChaCha20-Poly1305 authenticated encryption with random nonces
//     (Seal, SealWithNonce, Open)
//   - Sealed boxes addressed to an X25519 public key (SealTo, OpenSealed),
//     used to hand each participant its own copy of a session key
//   - Fingerprints and digests for display and audit (Fingerprint,
//     KeyFingerprint, Digest) and base64 rendering of keys (B64)
//
// # Notes
//
// Every decryption failure is reported as domain.ErrDecryptionFailure so
// callers cannot tell a wrong key from a corrupted ciphertext. Callers
// should wipe returned secrets with memzero.Zero once they are done.
package crypto
