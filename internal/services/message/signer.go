package message

import (
	"crypto/ed25519"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/util/memzero"
)

// Signer signs outbound messages. It returns the signature and the public
// key that verifies it.
type Signer interface {
	Sign(msg []byte) (sig, pub []byte, err error)
}

// Ed25519Signer signs with the user's long-term Ed25519 key, the one
// registered with the server.
type Ed25519Signer struct {
	Priv domain.Ed25519Private
	Pub  domain.Ed25519Public
}

// Sign implements Signer.
func (s Ed25519Signer) Sign(msg []byte) ([]byte, []byte, error) {
	return crypto.SignEd25519(s.Priv, msg), s.Pub[:], nil
}

// DemoSigner signs every message with a throwaway key pair that is never
// stored. The signature proves integrity of the payload only, not who sent
// it; the server reports such messages as invalid because the key is not
// the sender's registered one.
type DemoSigner struct{}

// Sign implements Signer.
func (DemoSigner) Sign(msg []byte) ([]byte, []byte, error) {
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		return nil, nil, err
	}
	sig := crypto.SignEd25519(priv, msg)
	memzero.Zero(priv[:])
	return sig, pub[:], nil
}

// Verify checks sig over msg with pub. An empty signature is unsigned; a
// malformed key or a signature that does not verify is invalid.
func Verify(sig, msg, pub []byte) domain.SignatureStatus {
	if len(sig) == 0 {
		return domain.SignatureUnsigned
	}
	if len(pub) != ed25519.PublicKeySize {
		return domain.SignatureInvalid
	}
	var key domain.Ed25519Public
	copy(key[:], pub)
	if !crypto.VerifyEd25519(key, msg, sig) {
		return domain.SignatureInvalid
	}
	return domain.SignatureValid
}

// VerifyMessage verifies the signature of m against pub.
func VerifyMessage(m domain.Message, pub []byte) domain.SignatureStatus {
	return Verify(m.Signature, signedBytes(m.Ciphertext, m.IV), pub)
}

// Compile-time assertions that both signers implement Signer.
var (
	_ Signer = Ed25519Signer{}
	_ Signer = DemoSigner{}
)
