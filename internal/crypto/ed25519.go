package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"cipherlink/internal/domain"
)

// GenerateEd25519 draws a 32-byte seed and expands it into a signing pair.
// The private half is the 64-byte seed||public form used by crypto/ed25519.
func GenerateEd25519() (priv domain.Ed25519Private, pub domain.Ed25519Public, err error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err = rand.Read(seed); err != nil {
		return priv, pub, err
	}
	defer clear(seed)

	sk := ed25519.NewKeyFromSeed(seed)
	copy(priv[:], sk)
	copy(pub[:], sk.Public().(ed25519.PublicKey))
	clear(sk)
	return priv, pub, nil
}

// SignEd25519 returns the 64-byte signature of msg.
func SignEd25519(priv domain.Ed25519Private, msg []byte) []byte {
	return ed25519.Sign(priv[:], msg)
}

// VerifyEd25519 reports whether sig is a valid signature of msg by pub.
// Malformed signatures simply fail.
func VerifyEd25519(pub domain.Ed25519Public, msg, sig []byte) bool {
	return len(sig) == ed25519.SignatureSize && ed25519.Verify(pub[:], msg, sig)
}
