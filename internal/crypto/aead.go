package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"cipherlink/internal/domain"
)

// NonceSize is the XChaCha20-Poly1305 nonce length. It is large enough for
// nonces to be drawn at random for every message under one key.
const NonceSize = chacha20poly1305.NonceSizeX

// ErrKeySize is returned for a key that is not KeySize bytes long.
var ErrKeySize = errors.New("crypto: invalid key size")

// Seal encrypts plaintext under key with a fresh random nonce.
// It returns the ciphertext (with tag) and the nonce that must travel with it.
func Seal(key, plaintext, ad []byte) (ciphertext, nonce []byte, err error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return aead.Seal(nil, nonce, plaintext, ad), nonce, nil
}

// SealWithNonce encrypts with a caller-chosen nonce. Output is deterministic
// given (key, nonce, plaintext, ad).
func SealWithNonce(key, nonce, plaintext, ad []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("crypto: nonce must be %d bytes", NonceSize)
	}
	return aead.Seal(nil, nonce, plaintext, ad), nil
}

// Open authenticates and decrypts ciphertext. Any failure, including a wrong
// key, is reported as domain.ErrDecryptionFailure.
func Open(key, ciphertext, nonce, ad []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailure, err)
	}
	if len(nonce) != NonceSize || len(ciphertext) < aead.Overhead() {
		return nil, domain.ErrDecryptionFailure
	}
	pt, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, domain.ErrDecryptionFailure
	}
	return pt, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	return chacha20poly1305.NewX(key)
}

// RandomKey returns KeySize random bytes.
func RandomKey() ([]byte, error) {
	k := make([]byte, KeySize)
	if _, err := rand.Read(k); err != nil {
		return nil, err
	}
	return k, nil
}
