package store_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/domain"
	"cipherlink/internal/store"
)

func sampleIdentity() domain.Identity {
	return domain.Identity{
		XPub:   domain.X25519Public{1},
		XPriv:  domain.X25519Private{2},
		EdPub:  domain.Ed25519Public{3},
		EdPriv: domain.Ed25519Private{4},
	}
}

func TestIdentity_SaveLoad(t *testing.T) {
	var ids domain.IdentityStore = store.NewIdentityFileStore(t.TempDir()).WithScryptN(1 << 10)

	require.NoError(t, ids.SaveIdentity("pass", sampleIdentity()))
	got, err := ids.LoadIdentity("pass")
	require.NoError(t, err)
	assert.Equal(t, sampleIdentity(), got)
}

func TestIdentity_WrongPassphrase(t *testing.T) {
	ids := store.NewIdentityFileStore(t.TempDir()).WithScryptN(1 << 10)
	require.NoError(t, ids.SaveIdentity("correct", sampleIdentity()))

	_, err := ids.LoadIdentity("wrong")
	require.ErrorIs(t, err, store.ErrWrongPassphrase)
	assert.ErrorIs(t, err, domain.ErrDecryptionFailure)
}

func TestIdentity_Missing(t *testing.T) {
	ids := store.NewIdentityFileStore(t.TempDir())
	_, err := ids.LoadIdentity("x")
	require.ErrorIs(t, err, store.ErrNoIdentity)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIdentity_TamperedHeaderFails(t *testing.T) {
	home := t.TempDir()
	ids := store.NewIdentityFileStore(home).WithScryptN(1 << 10)
	require.NoError(t, ids.SaveIdentity("pass", sampleIdentity()))

	entries, err := os.ReadDir(home)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no staging files left behind")
	path := filepath.Join(home, entries[0].Name())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(b, &env))
	env["purpose"] = "profile"
	b, err = json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))

	_, err = ids.LoadIdentity("pass")
	require.Error(t, err)
}

func TestProfile_SaveLoad(t *testing.T) {
	ps := store.NewProfileFileStore(t.TempDir())

	_, ok, err := ps.LoadProfile("http://a")
	require.NoError(t, err)
	require.False(t, ok)

	p := domain.Profile{ServerURL: "http://a", UserID: "alice", Token: "tok"}
	require.NoError(t, ps.SaveProfile(p))
	require.NoError(t, ps.SaveProfile(domain.Profile{ServerURL: "http://b", UserID: "bob"}))

	got, ok, err := ps.LoadProfile("http://a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p, got)

	_, ok, err = ps.LoadProfile("http://c")
	require.NoError(t, err)
	assert.False(t, ok)
}
