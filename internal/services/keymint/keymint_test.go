package keymint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/services/keymint"
	"cipherlink/internal/services/servicetest"
)

func TestMint_CopiesAndVaultAgree(t *testing.T) {
	env := servicetest.New(t)
	alice, bob := env.Register(t, "alice"), env.Register(t, "bob")

	mat, err := env.Minter.Mint("s-1", alice.Record(), bob.Record())
	require.NoError(t, err)

	ka := servicetest.OpenKey(t, alice, mat.ForInitiator)
	kb := servicetest.OpenKey(t, bob, mat.ForPeer)
	assert.Equal(t, ka, kb)
	assert.Len(t, ka, crypto.KeySize)
	assert.Equal(t, mat.Fingerprint, crypto.KeyFingerprint(ka))

	sess := domain.KDCSession{ID: "s-1"}
	keymint.Apply(&sess, mat)
	ok, err := env.Minter.Verify(sess)
	require.NoError(t, err)
	assert.True(t, ok)

	// Sealed material is bound to its session id.
	moved := sess
	moved.ID = "s-2"
	_, err = env.Minter.Verify(moved)
	assert.ErrorIs(t, err, domain.ErrDecryptionFailure)
}

func TestMint_FreshEachTime(t *testing.T) {
	env := servicetest.New(t)
	alice, bob := env.Register(t, "alice"), env.Register(t, "bob")

	a, err := env.Minter.Mint("s", alice.Record(), bob.Record())
	require.NoError(t, err)
	b, err := env.Minter.Mint("s", alice.Record(), bob.Record())
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint, b.Fingerprint)
}

func TestErase(t *testing.T) {
	env := servicetest.New(t)
	alice, bob := env.Register(t, "alice"), env.Register(t, "bob")
	mat, err := env.Minter.Mint("s", alice.Record(), bob.Record())
	require.NoError(t, err)

	sess := domain.KDCSession{ID: "s"}
	keymint.Apply(&sess, mat)
	keymint.EraseCopies(&sess)
	assert.True(t, sess.KeyForInitiator.IsZero())
	assert.True(t, sess.KeyForPeer.IsZero())
	assert.NotEmpty(t, sess.SealedMaterial)

	keymint.Erase(&sess)
	assert.Nil(t, sess.SealedMaterial)
	ok, err := env.Minter.Verify(sess)
	require.NoError(t, err)
	assert.False(t, ok)
}
