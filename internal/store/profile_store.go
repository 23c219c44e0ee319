package store

import (
	"path/filepath"
	"sync"

	"cipherlink/internal/domain"
)

const profilesFile = "profiles.json"

// ProfileFileStore persists per-server registration profiles to disk.
type ProfileFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewProfileFileStore returns a ProfileFileStore rooted at dir.
func NewProfileFileStore(dir string) *ProfileFileStore {
	return &ProfileFileStore{dir: dir}
}

// SaveProfile stores or updates the profile for p.ServerURL.
func (s *ProfileFileStore) SaveProfile(p domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, profilesFile)
	profiles := make(map[string]domain.Profile)
	if _, err := loadJSON(path, &profiles); err != nil {
		return err
	}
	profiles[p.ServerURL] = p
	return saveJSON(path, profiles, 0o600)
}

// LoadProfile retrieves the profile registered against serverURL.
func (s *ProfileFileStore) LoadProfile(serverURL string) (domain.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, profilesFile)
	profiles := make(map[string]domain.Profile)
	found, err := loadJSON(path, &profiles)
	if err != nil || !found {
		return domain.Profile{}, false, err
	}
	p, ok := profiles[serverURL]
	return p, ok, nil
}

// Compile-time assertion that ProfileFileStore implements domain.ProfileStore.
var _ domain.ProfileStore = (*ProfileFileStore)(nil)
