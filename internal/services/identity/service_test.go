package identity_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/services/identity"
	"cipherlink/internal/store"
)

const strongPass = "Correct-Horse-9-Battery"

func newService(t *testing.T) *identity.Service {
	t.Helper()
	return identity.New(store.NewIdentityFileStore(t.TempDir()).WithScryptN(1 << 10))
}

func TestGenerateIdentity_RejectsWeakPassphrase(t *testing.T) {
	svc := newService(t)
	for _, p := range []string{"short", "alllowercase123!", "NoDigitsHere!!", "NoSymbols12345"} {
		_, _, err := svc.GenerateIdentity(p)
		assert.ErrorIs(t, err, identity.ErrWeakPassphrase, p)
	}

	_, _, err := svc.GenerateIdentity("NoSymbols12345")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a symbol")
	assert.NotContains(t, err.Error(), "a digit")
}

func TestGenerateIdentity_PersistsAndFingerprints(t *testing.T) {
	svc := newService(t)

	id, fp, err := svc.GenerateIdentity(strongPass)
	require.NoError(t, err)
	require.False(t, id.XPub.IsZero())
	require.False(t, id.EdPub.IsZero())
	assert.Len(t, fp.String(), 20)
	assert.Equal(t, identity.Fingerprint(id), fp)

	loaded, err := svc.LoadIdentity(strongPass)
	require.NoError(t, err)
	assert.Equal(t, id, loaded)

	again, err := svc.FingerprintIdentity(strongPass)
	require.NoError(t, err)
	assert.Equal(t, fp, again)

}

func TestRegistrationRequest_SignsKeys(t *testing.T) {
	svc := newService(t)
	id, _, err := svc.GenerateIdentity(strongPass)
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	req := identity.RegistrationRequest("alice", id, at)
	assert.Equal(t, domain.UserID("alice"), req.UserID)
	assert.Equal(t, id.XPub, req.IdentityKey)
	assert.Equal(t, id.EdPub, req.SigningKey)
	assert.True(t, at.Equal(req.IssuedAt))
	assert.True(t, crypto.VerifyEd25519(id.EdPub, req.ProofMessage(), req.Proof))

	// The proof covers the user id and the time.
	renamed := req
	renamed.UserID = "mallory"
	assert.False(t, crypto.VerifyEd25519(id.EdPub, renamed.ProofMessage(), req.Proof))
	later := req
	later.IssuedAt = at.Add(time.Second)
	assert.False(t, crypto.VerifyEd25519(id.EdPub, later.ProofMessage(), req.Proof))
}

func TestGenerateIdentity_RefusesToOverwrite(t *testing.T) {
	svc := newService(t)
	first, _, err := svc.GenerateIdentity(strongPass)
	require.NoError(t, err)

	_, _, err = svc.GenerateIdentity(strongPass)
	require.ErrorIs(t, err, identity.ErrIdentityExists)

	// A different passphrase cannot decrypt the file but still must not replace it.
	_, _, err = svc.GenerateIdentity("Another-Strong-7-Phrase")
	require.ErrorIs(t, err, identity.ErrIdentityExists)

	kept, err := svc.LoadIdentity(strongPass)
	require.NoError(t, err)
	assert.Equal(t, first, kept)
}

func TestDescribe(t *testing.T) {
	svc := newService(t)

	_, err := svc.Describe(strongPass)
	require.ErrorIs(t, err, domain.ErrNotFound)

	id, fp, err := svc.GenerateIdentity(strongPass)
	require.NoError(t, err)

	sum, err := svc.Describe(strongPass)
	require.NoError(t, err)
	assert.Equal(t, fp, sum.Fingerprint)

	x, err := base64.StdEncoding.DecodeString(sum.IdentityKey)
	require.NoError(t, err)
	assert.Equal(t, id.XPub.Slice(), x)
	ed, err := base64.StdEncoding.DecodeString(sum.SigningKey)
	require.NoError(t, err)
	assert.Equal(t, id.EdPub.Slice(), ed)
}

func TestFingerprint_CoversBothKeys(t *testing.T) {
	svc := newService(t)
	id, _, err := svc.GenerateIdentity(strongPass)
	require.NoError(t, err)

	other := id
	other.EdPub[0] ^= 0xff
	assert.NotEqual(t, identity.Fingerprint(id), identity.Fingerprint(other))

	other = id
	other.XPub[0] ^= 0xff
	assert.NotEqual(t, identity.Fingerprint(id), identity.Fingerprint(other))
}
