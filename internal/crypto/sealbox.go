package crypto

import (
	"cipherlink/internal/domain"
	"cipherlink/internal/util/memzero"
)

// SealTo encrypts plaintext so that only the holder of the private half of
// recipient can open it.
//
// Steps:
//  1. Generate a one-time X25519 key pair.
//  2. DH(one-time private, recipient) and derive a wrapping key with HKDF,
//     binding both public keys.
//  3. Encrypt with XChaCha20-Poly1305 under a random nonce.
func SealTo(recipient domain.X25519Public, plaintext []byte) (domain.SealedKey, error) {
	ephPriv, ephPub, err := GenerateX25519()
	if err != nil {
		return domain.SealedKey{}, err
	}
	defer memzero.Zero(ephPriv[:])

	wrap, err := wrappingKey(ephPriv, recipient, ephPub, recipient)
	if err != nil {
		return domain.SealedKey{}, err
	}
	defer memzero.Zero(wrap)

	ct, nonce, err := Seal(wrap, plaintext, sealAD(ephPub, recipient))
	if err != nil {
		return domain.SealedKey{}, err
	}
	return domain.SealedKey{EphemeralKey: ephPub, Nonce: nonce, Ciphertext: ct}, nil
}

// OpenSealed reverses SealTo using the recipient's private key.
func OpenSealed(priv domain.X25519Private, sk domain.SealedKey) ([]byte, error) {
	if sk.IsZero() {
		return nil, domain.ErrDecryptionFailure
	}
	pub, err := PublicFromPrivate(priv)
	if err != nil {
		return nil, err
	}
	wrap, err := wrappingKey(priv, sk.EphemeralKey, sk.EphemeralKey, pub)
	if err != nil {
		return nil, domain.ErrDecryptionFailure
	}
	defer memzero.Zero(wrap)
	return Open(wrap, sk.Ciphertext, sk.Nonce, sealAD(sk.EphemeralKey, pub))
}

func wrappingKey(priv domain.X25519Private, other, ephPub, recipient domain.X25519Public) ([]byte, error) {
	shared, err := DH(priv, other)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(shared[:])
	return DeriveKey(shared[:], nil, bindInfo(infoSealedKey, ephPub, recipient), KeySize)
}

func sealAD(ephPub, recipient domain.X25519Public) []byte {
	ad := make([]byte, 0, 64)
	ad = append(ad, ephPub[:]...)
	return append(ad, recipient[:]...)
}
