package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"cipherlink/internal/domain"
)

// fingerprintLen is the number of hex characters kept for public key
// fingerprints meant to be read aloud or compared by eye.
const fingerprintLen = 20

// Fingerprint returns the first 20 hex characters of the SHA-256 digest of
// the concatenated public keys.
func Fingerprint(pubs ...[]byte) string {
	return Digest(pubs...)[:fingerprintLen]
}

// KeyFingerprint returns the full SHA-256 hex digest of symmetric key
// material. It is what peers compare to confirm they hold the same key.
func KeyFingerprint(key []byte) domain.Fingerprint {
	return domain.Fingerprint(Digest(key))
}

// Digest returns the SHA-256 hex digest of the concatenation of parts.
func Digest(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
