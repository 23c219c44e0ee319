package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cipherlink/internal/domain"
	"cipherlink/internal/store"
)

func testVault(t *testing.T) *store.Vault {
	t.Helper()
	v, err := store.NewVault(store.VaultConfig{Passphrase: "operator", Salt: "salt", ScryptN: 1 << 10})
	require.NoError(t, err)
	return v
}

func TestVault_SealOpenBoundToAD(t *testing.T) {
	v := testVault(t)
	sealed, err := v.Seal([]byte("key material"), []byte("session-1"))
	require.NoError(t, err)

	got, err := v.Open(sealed, []byte("session-1"))
	require.NoError(t, err)
	require.Equal(t, []byte("key material"), got)

	_, err = v.Open(sealed, []byte("session-2"))
	require.ErrorIs(t, err, domain.ErrDecryptionFailure)

	_, err = v.Open(sealed[:4], []byte("session-1"))
	require.ErrorIs(t, err, domain.ErrDecryptionFailure)
}

func TestVault_BroadcastKeyStable(t *testing.T) {
	a, err := testVault(t).BroadcastKey()
	require.NoError(t, err)
	b, err := testVault(t).BroadcastKey()
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 32)
}

func TestVault_RequiresSecrets(t *testing.T) {
	_, err := store.NewVault(store.VaultConfig{Salt: "s"})
	require.Error(t, err)
	_, err = store.NewVault(store.VaultConfig{Passphrase: "p"})
	require.Error(t, err)
}

func TestVault_CloseWipes(t *testing.T) {
	v := testVault(t)
	v.Close()
	_, err := v.Seal([]byte("x"), nil)
	require.Error(t, err)
}
