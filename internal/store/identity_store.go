package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"cipherlink/internal/domain"
)

const (
	identityFile    = "identity.enc.json"
	identityPurpose = "identity"
)

// ErrNoIdentity is returned by LoadIdentity before init has run. It
// matches domain.ErrNotFound.
var ErrNoIdentity = fmt.Errorf("no identity found; run init first: %w", domain.ErrNotFound)

// IdentityFileStore keeps the local identity in one passphrase envelope
// under the client home directory.
type IdentityFileStore struct {
	mu     sync.Mutex
	path   string
	params scryptParams
}

// NewIdentityFileStore returns an IdentityFileStore rooted at dir.
func NewIdentityFileStore(dir string) *IdentityFileStore {
	return &IdentityFileStore{path: filepath.Join(dir, identityFile), params: scryptParamsDefault()}
}

// WithScryptN changes the scrypt cost used for later writes. Files already
// on disk keep the cost recorded in their envelope.
func (s *IdentityFileStore) WithScryptN(n int) *IdentityFileStore {
	s.params.N = n
	return s
}

// SaveIdentity seals id under passphrase and replaces the file.
func (s *IdentityFileStore) SaveIdentity(passphrase string, id domain.Identity) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	defer clear(raw)

	sealed, err := sealWithPassphrase(passphrase, identityPurpose, raw, s.params)
	if err != nil {
		return fmt.Errorf("seal identity: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return replaceFile(s.path, sealed, 0o600)
}

// LoadIdentity opens the identity file. A missing file yields ErrNoIdentity
// and a bad passphrase yields ErrWrongPassphrase.
func (s *IdentityFileStore) LoadIdentity(passphrase string) (domain.Identity, error) {
	s.mu.Lock()
	b, err := readOptional(s.path)
	s.mu.Unlock()
	switch {
	case err != nil:
		return domain.Identity{}, err
	case b == nil:
		return domain.Identity{}, ErrNoIdentity
	}

	raw, err := openWithPassphrase(passphrase, identityPurpose, b)
	if err != nil {
		return domain.Identity{}, err
	}
	defer clear(raw)

	var id domain.Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return domain.Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	return id, nil
}

// Compile-time assertion that IdentityFileStore implements domain.IdentityStore.
var _ domain.IdentityStore = (*IdentityFileStore)(nil)
