package message

import (
	"cipherlink/internal/crypto"
)

// Encrypt seals plaintext under key with a fresh random iv.
func Encrypt(plaintext, key []byte) (ciphertext, iv []byte, err error) {
	return crypto.Seal(key, plaintext, nil)
}

// Decrypt opens ciphertext with key and iv. A wrong key or any tampering
// yields domain.ErrDecryptionFailure.
func Decrypt(ciphertext, iv, key []byte) ([]byte, error) {
	return crypto.Open(key, ciphertext, iv, nil)
}

// ComputeMessageHash is the ledger hash of a message: SHA-256 over the
// ciphertext followed by the iv, hex encoded.
func ComputeMessageHash(ciphertext, iv []byte) string {
	return crypto.Digest(ciphertext, iv)
}

// signedBytes is what a message signature covers.
func signedBytes(ciphertext, iv []byte) []byte {
	return []byte(ComputeMessageHash(ciphertext, iv))
}
