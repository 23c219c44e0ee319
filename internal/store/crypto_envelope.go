package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

// envelopeVersion is the newest passphrase envelope layout this build writes.
const envelopeVersion = 1

// ErrWrongPassphrase is returned when a passphrase envelope cannot be
// opened, whether because of the passphrase or because the file was altered.
var ErrWrongPassphrase = fmt.Errorf("wrong passphrase or corrupted file: %w", domain.ErrDecryptionFailure)

// scryptParams are the tunables for scrypt key derivation.
type scryptParams struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

func scryptParamsDefault() scryptParams { return scryptParams{N: 1 << 15, R: 8, P: 1} }

func (p scryptParams) derive(passphrase string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, chacha20poly1305.KeySize)
}

// envelope is the on-disk form of a passphrase-sealed file. The KDF
// parameters travel with the ciphertext so the cost can be raised later
// without breaking old files.
type envelope struct {
	Version    int          `json:"version"`
	Purpose    string       `json:"purpose"`
	Salt       []byte       `json:"salt"`
	KDF        scryptParams `json:"scrypt"`
	Nonce      []byte       `json:"nonce"`
	Ciphertext []byte       `json:"ciphertext"`
}

// ad binds the header fields into the AEAD, so swapping the purpose or the
// salt fails authentication instead of decrypting under other parameters.
func (e envelope) ad() []byte {
	return fmt.Appendf(nil, "cipherlink/%s/v%d/%x", e.Purpose, e.Version, e.Salt)
}

// sealWithPassphrase encrypts raw under a key stretched from passphrase.
func sealWithPassphrase(passphrase, purpose string, raw []byte, params scryptParams) ([]byte, error) {
	env := envelope{Version: envelopeVersion, Purpose: purpose, KDF: params, Salt: make([]byte, 16)}
	if _, err := rand.Read(env.Salt); err != nil {
		return nil, err
	}
	key, err := params.derive(passphrase, env.Salt)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	env.Ciphertext, env.Nonce, err = crypto.Seal(key, raw, env.ad())
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// openWithPassphrase reverses sealWithPassphrase for the same purpose.
func openWithPassphrase(passphrase, purpose string, b []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	switch {
	case env.Version < 1 || env.Version > envelopeVersion:
		return nil, fmt.Errorf("unsupported envelope version %d", env.Version)
	case env.Purpose != purpose:
		return nil, fmt.Errorf("envelope holds %q, not %q", env.Purpose, purpose)
	}

	key, err := env.KDF.derive(passphrase, env.Salt)
	if err != nil {
		return nil, fmt.Errorf("scrypt parameters: %w", err)
	}
	defer clear(key)

	pt, err := crypto.Open(key, env.Ciphertext, env.Nonce, env.ad())
	if errors.Is(err, domain.ErrDecryptionFailure) {
		return nil, ErrWrongPassphrase
	}
	return pt, err
}
