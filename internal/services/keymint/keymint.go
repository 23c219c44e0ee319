// Package keymint creates and erases KDC session key material.
//
// Raw key bytes exist only inside Mint. What leaves is the vault-sealed
// copy for the server, one sealed copy per participant and the
// fingerprint.
package keymint

import (
	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/util/memzero"
)

// Sealer seals key material at rest, bound to associated data.
type Sealer interface {
	Seal(plaintext, ad []byte) ([]byte, error)
	Open(sealed, ad []byte) ([]byte, error)
}

// Material is the output of one mint.
type Material struct {
	Sealed       []byte
	ForInitiator domain.SealedKey
	ForPeer      domain.SealedKey
	Fingerprint  domain.Fingerprint
}

// Minter generates session keys.
type Minter struct {
	vault Sealer
}

// New returns a Minter sealing to vault.
func New(vault Sealer) *Minter { return &Minter{vault: vault} }

// Mint generates fresh key material for session id and seals it to both
// users' identity keys.
func (m *Minter) Mint(id domain.SessionID, initiator, peer domain.User) (Material, error) {
	key, err := crypto.RandomKey()
	if err != nil {
		return Material{}, err
	}
	defer memzero.Zero(key)

	forInitiator, err := crypto.SealTo(initiator.IdentityKey, key)
	if err != nil {
		return Material{}, err
	}
	forPeer, err := crypto.SealTo(peer.IdentityKey, key)
	if err != nil {
		return Material{}, err
	}
	sealed, err := m.vault.Seal(key, []byte(id))
	if err != nil {
		return Material{}, err
	}
	return Material{
		Sealed:       sealed,
		ForInitiator: forInitiator,
		ForPeer:      forPeer,
		Fingerprint:  crypto.KeyFingerprint(key),
	}, nil
}

// Apply installs mat on sess, wiping whatever it replaces.
func Apply(sess *domain.KDCSession, mat Material) {
	EraseCopies(sess)
	memzero.Zero(sess.SealedMaterial)
	sess.SealedMaterial = mat.Sealed
	sess.KeyForInitiator = mat.ForInitiator
	sess.KeyForPeer = mat.ForPeer
	sess.Fingerprint = mat.Fingerprint
}

// EraseCopies drops the per-participant copies of sess.
func EraseCopies(sess *domain.KDCSession) {
	memzero.ZeroAll(sess.KeyForInitiator.Ciphertext, sess.KeyForPeer.Ciphertext)
	sess.KeyForInitiator = domain.SealedKey{}
	sess.KeyForPeer = domain.SealedKey{}
}

// Erase drops every trace of key material from sess. After Erase nothing
// can recover the key.
func Erase(sess *domain.KDCSession) {
	EraseCopies(sess)
	memzero.Zero(sess.SealedMaterial)
	sess.SealedMaterial = nil
}

// Verify opens the vault-sealed material of sess and checks it against
// the recorded fingerprint.
func (m *Minter) Verify(sess domain.KDCSession) (bool, error) {
	if len(sess.SealedMaterial) == 0 {
		return false, nil
	}
	key, err := m.vault.Open(sess.SealedMaterial, []byte(sess.ID))
	if err != nil {
		return false, err
	}
	defer memzero.Zero(key)
	return crypto.KeyFingerprint(key) == sess.Fingerprint, nil
}
