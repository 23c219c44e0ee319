package store

import (
	"errors"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/util/memzero"
)

// VaultConfig configures the server-side at-rest key.
type VaultConfig struct {
	Passphrase string
	Salt       string
	// ScryptN overrides the scrypt cost. Zero uses the default; tests lower it.
	ScryptN int
}

// Vault seals key material before it reaches a store. Its master key is
// derived once from the passphrase with scrypt; each blob is then sealed
// with XChaCha20-Poly1305 under a fresh nonce.
type Vault struct {
	key []byte
}

// NewVault derives the master key from cfg.
func NewVault(cfg VaultConfig) (*Vault, error) {
	if cfg.Passphrase == "" {
		return nil, errors.New("vault: passphrase required")
	}
	if cfg.Salt == "" {
		return nil, errors.New("vault: salt required")
	}
	params := scryptParamsDefault()
	if cfg.ScryptN > 0 {
		params.N = cfg.ScryptN
	}
	key, err := params.derive(cfg.Passphrase, []byte(cfg.Salt))
	if err != nil {
		return nil, err
	}
	return &Vault{key: key}, nil
}

// Seal encrypts plaintext and binds it to ad (typically the session id).
// The result is nonce || ciphertext.
func (v *Vault) Seal(plaintext, ad []byte) ([]byte, error) {
	ct, nonce, err := crypto.Seal(v.key, plaintext, ad)
	if err != nil {
		return nil, err
	}
	return append(nonce, ct...), nil
}

// Open reverses Seal.
func (v *Vault) Open(sealed, ad []byte) ([]byte, error) {
	if len(sealed) < crypto.NonceSize {
		return nil, domain.ErrDecryptionFailure
	}
	return crypto.Open(v.key, sealed[crypto.NonceSize:], sealed[:crypto.NonceSize], ad)
}

// BroadcastKey derives the global broadcast key from the master key.
func (v *Vault) BroadcastKey() ([]byte, error) {
	return crypto.DeriveBroadcastKey(v.key)
}

// Close wipes the master key. The vault is unusable afterwards.
func (v *Vault) Close() {
	memzero.Zero(v.key)
	v.key = nil
}
