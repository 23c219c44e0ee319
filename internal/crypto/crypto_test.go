package crypto_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key, err := crypto.RandomKey()
		if err != nil {
			t.Fatalf("RandomKey: %v", err)
		}
		msg := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "msg")
		ad := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "ad")

		ct, nonce, err := crypto.Seal(key, msg, ad)
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		pt, err := crypto.Open(key, ct, nonce, ad)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if !bytes.Equal(pt, msg) {
			t.Fatalf("round trip mismatch")
		}
	})
}

func TestOpen_WrongKeyOrTamper(t *testing.T) {
	key, err := crypto.RandomKey()
	require.NoError(t, err)
	other, err := crypto.RandomKey()
	require.NoError(t, err)

	ct, nonce, err := crypto.Seal(key, []byte("hello"), nil)
	require.NoError(t, err)

	_, err = crypto.Open(other, ct, nonce, nil)
	require.ErrorIs(t, err, domain.ErrDecryptionFailure)

	ct[0] ^= 0x01
	_, err = crypto.Open(key, ct, nonce, nil)
	require.ErrorIs(t, err, domain.ErrDecryptionFailure)

	_, err = crypto.Open(key, []byte{1, 2}, nonce, nil)
	require.ErrorIs(t, err, domain.ErrDecryptionFailure)
}

func TestSeal_FreshNonces(t *testing.T) {
	key, err := crypto.RandomKey()
	require.NoError(t, err)
	_, n1, err := crypto.Seal(key, []byte("x"), nil)
	require.NoError(t, err)
	_, n2, err := crypto.Seal(key, []byte("x"), nil)
	require.NoError(t, err)
	require.Len(t, n1, crypto.NonceSize)
	require.NotEqual(t, n1, n2)
}

func TestSealWithNonce_Deterministic(t *testing.T) {
	key, err := crypto.RandomKey()
	require.NoError(t, err)
	nonce := make([]byte, crypto.NonceSize)

	a, err := crypto.SealWithNonce(key, nonce, []byte("same"), nil)
	require.NoError(t, err)
	b, err := crypto.SealWithNonce(key, nonce, []byte("same"), nil)
	require.NoError(t, err)
	require.Equal(t, a, b)

	_, err = crypto.SealWithNonce(key, nonce[:3], []byte("same"), nil)
	require.Error(t, err)
}

func TestSealTo_OnlyRecipientOpens(t *testing.T) {
	priv, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	strangerPriv, _, err := crypto.GenerateX25519()
	require.NoError(t, err)

	secret := []byte("0123456789abcdef0123456789abcdef")
	sk, err := crypto.SealTo(pub, secret)
	require.NoError(t, err)
	require.False(t, sk.IsZero())

	got, err := crypto.OpenSealed(priv, sk)
	require.NoError(t, err)
	require.Equal(t, secret, got)

	_, err = crypto.OpenSealed(strangerPriv, sk)
	require.ErrorIs(t, err, domain.ErrDecryptionFailure)

	_, err = crypto.OpenSealed(priv, domain.SealedKey{})
	require.ErrorIs(t, err, domain.ErrDecryptionFailure)
}

func TestDH_Agreement(t *testing.T) {
	aPriv, aPub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	bPriv, bPub, err := crypto.GenerateX25519()
	require.NoError(t, err)

	ab, err := crypto.DH(aPriv, bPub)
	require.NoError(t, err)
	ba, err := crypto.DH(bPriv, aPub)
	require.NoError(t, err)
	require.Equal(t, ab, ba)

	s1, err := crypto.DeriveHandshakeSecret(ab, aPub, bPub)
	require.NoError(t, err)
	s2, err := crypto.DeriveHandshakeSecret(ab, bPub, aPub)
	require.NoError(t, err)
	require.NotEqual(t, s1, s2, "info must bind key order")
}

func TestDH_RejectsLowOrder(t *testing.T) {
	priv, _, err := crypto.GenerateX25519()
	require.NoError(t, err)
	var zero domain.X25519Public
	_, err = crypto.DH(priv, zero)
	require.True(t, errors.Is(err, crypto.ErrLowOrderPoint))
}

func TestEd25519_SignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	sig := crypto.SignEd25519(priv, []byte("msg"))
	require.True(t, crypto.VerifyEd25519(pub, []byte("msg"), sig))
	require.False(t, crypto.VerifyEd25519(pub, []byte("other"), sig))
	require.False(t, crypto.VerifyEd25519(pub, []byte("msg"), sig[:10]))
}

func TestFingerprints(t *testing.T) {
	require.Len(t, crypto.Fingerprint([]byte("pub")), 20)
	require.Equal(t, crypto.Fingerprint([]byte("pubA"), []byte("pubB")), crypto.Fingerprint([]byte("pubApubB")))
	require.Equal(t, crypto.Digest([]byte("pub"))[:20], crypto.Fingerprint([]byte("pub")))
	fp := crypto.KeyFingerprint([]byte("key"))
	require.Len(t, fp.String(), 64)
	require.Equal(t, crypto.Digest([]byte("ke"), []byte("y")), fp.String())
}
