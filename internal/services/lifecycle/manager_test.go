package lifecycle_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/services/lifecycle"
	"cipherlink/internal/services/servicetest"
)

func issue(t *testing.T, env *servicetest.Env) (servicetest.User, servicetest.User, domain.IssuedSession) {
	t.Helper()
	alice, bob, _ := env.Linked(t, "alice", "bob")
	got, err := env.KDC.RequestSessionKey(env.Ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	env.Events.Reset()
	env.Clock.Advance(time.Second)
	return alice, bob, got
}

func TestRotate_KeepsIDChangesKey(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, got := issue(t, env)
	oldKey := servicetest.OpenKey(t, alice, got.EncryptedKeyForInitiator)

	env.Clock.Advance(5 * time.Minute)
	info, err := env.Lifecycle.Rotate(env.Ctx, bob.ID, got.SessionID)
	require.NoError(t, err)
	assert.Equal(t, got.SessionID, info.SessionID)
	assert.NotEqual(t, got.Fingerprint, info.Fingerprint)
	assert.Equal(t, domain.StateRotated, info.State)
	assert.Equal(t, 2, info.Generation)
	require.NotNil(t, info.RotatedAt)
	assert.True(t, info.ExpiresAt.After(got.ExpiresAt))

	for _, u := range []servicetest.User{alice, bob} {
		assert.Equal(t, []string{"lifecycle:rotated", "kdc:new-session-key"}, env.Events.Names(u.ID))
		ev := env.Events.For(u.ID)[1].(domain.KDCEvent)
		require.NotNil(t, ev.EncryptedKey)
		newKey := servicetest.OpenKey(t, u, *ev.EncryptedKey)
		assert.Equal(t, info.Fingerprint, crypto.KeyFingerprint(newKey))
		assert.NotEqual(t, oldKey, newKey)

		// The previous key no longer opens traffic sealed under the new one.
		ct, iv, err := crypto.Seal(newKey, []byte("after rotation"), nil)
		require.NoError(t, err)
		_, err = crypto.Open(oldKey, ct, iv, nil)
		assert.ErrorIs(t, err, domain.ErrDecryptionFailure)
	}

	evs, err := env.Lifecycle.KeyEvents(env.Ctx, domain.KeyEventFilter{SessionID: got.SessionID})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, domain.EventRotated, evs[0].Type)
	assert.Equal(t, domain.SourceLifecycle, evs[0].Source)
	assert.Equal(t, bob.ID, evs[0].ActorID)
	assert.Equal(t, got.Fingerprint.String(), evs[0].Payload["previousFingerprint"])
	assert.Equal(t, info.Fingerprint.String(), evs[0].Payload["fingerprint"])
}

func TestRevoke_DropsCopiesKeepsSealedMaterial(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, got := issue(t, env)

	info, err := env.Lifecycle.Revoke(env.Ctx, alice.ID, got.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRevoked, info.State)
	require.NotNil(t, info.RevokedAt)

	sess, ok, err := env.Store.GetSession(env.Ctx, got.SessionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, sess.KeyForInitiator.IsZero())
	assert.True(t, sess.KeyForPeer.IsZero())
	assert.NotEmpty(t, sess.SealedMaterial)

	assert.Equal(t, []string{"lifecycle:revoked", "kdc:key-revoked"}, env.Events.Names(bob.ID))

	_, err = env.KDC.CurrentKey(env.Ctx, bob.ID, alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// A new request issues a brand-new session rather than un-revoking.
	again, err := env.KDC.RequestSessionKey(env.Ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, again.Fresh)
	assert.NotEqual(t, got.SessionID, again.SessionID)
}

func TestTerminalTransitions(t *testing.T) {
	env := servicetest.New(t)
	alice, _, got := issue(t, env)

	_, err := env.Lifecycle.Revoke(env.Ctx, alice.ID, got.SessionID)
	require.NoError(t, err)

	_, err = env.Lifecycle.Rotate(env.Ctx, alice.ID, got.SessionID)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = env.Lifecycle.Revoke(env.Ctx, alice.ID, got.SessionID)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	// Destroy is still allowed from revoked.
	info, err := env.Lifecycle.Destroy(env.Ctx, alice.ID, got.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDestroyed, info.State)

	_, err = env.Lifecycle.Destroy(env.Ctx, alice.ID, got.SessionID)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
}

func TestDestroy_MaterialUnrecoverable(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, got := issue(t, env)

	info, err := env.Lifecycle.Destroy(env.Ctx, bob.ID, got.SessionID)
	require.NoError(t, err)
	require.NotNil(t, info.DestroyedAt)
	assert.Equal(t, []string{"lifecycle:destroyed"}, env.Events.Names(alice.ID))

	sess, ok, err := env.Store.GetSession(env.Ctx, got.SessionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, sess.SealedMaterial)
	assert.True(t, sess.KeyForInitiator.IsZero())
	assert.True(t, sess.KeyForPeer.IsZero())

	verified, err := env.Minter.Verify(sess)
	require.NoError(t, err)
	assert.False(t, verified)

	_, err = env.KDC.CurrentKey(env.Ctx, alice.ID, bob.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.Lifecycle.Rotate(env.Ctx, alice.ID, got.SessionID)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	for _, ev := range env.Events.For(alice.ID) {
		if kev, ok := ev.(domain.KDCEvent); ok {
			assert.Nil(t, kev.EncryptedKey)
		}
	}
}

func TestTransitions_RequireParticipant(t *testing.T) {
	env := servicetest.New(t)
	_, _, got := issue(t, env)
	mallory := env.Register(t, "mallory")

	_, err := env.Lifecycle.Rotate(env.Ctx, mallory.ID, got.SessionID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = env.Lifecycle.Revoke(env.Ctx, mallory.ID, got.SessionID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = env.Lifecycle.Destroy(env.Ctx, mallory.ID, got.SessionID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = env.Lifecycle.Rotate(env.Ctx, mallory.ID, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, env.Events.All())
}

func TestEachTransitionRecordsOneEvent(t *testing.T) {
	env := servicetest.New(t)
	alice, _, got := issue(t, env)

	steps := []func() error{
		func() error { _, err := env.Lifecycle.Rotate(env.Ctx, alice.ID, got.SessionID); return err },
		func() error { _, err := env.Lifecycle.Rotate(env.Ctx, alice.ID, got.SessionID); return err },
		func() error { _, err := env.Lifecycle.Revoke(env.Ctx, alice.ID, got.SessionID); return err },
		func() error { _, err := env.Lifecycle.Destroy(env.Ctx, alice.ID, got.SessionID); return err },
	}
	for i, step := range steps {
		env.Clock.Advance(time.Second)
		require.NoError(t, step(), "step %d", i)
		evs, err := env.Lifecycle.KeyEvents(env.Ctx, domain.KeyEventFilter{
			SessionID: got.SessionID,
			Source:    domain.SourceLifecycle,
		})
		require.NoError(t, err)
		assert.Len(t, evs, i+1)
	}

	all, err := env.Lifecycle.KeyEvents(env.Ctx, domain.KeyEventFilter{SessionID: got.SessionID})
	require.NoError(t, err)
	var types []string
	for _, ev := range all {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"destroyed", "revoked", "rotated", "rotated", "generated"}, types)
}

func TestConcurrentRotations_AllRecorded(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, got := issue(t, env)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := alice.ID
			if i%2 == 0 {
				actor = bob.ID
			}
			_, err := env.Lifecycle.Rotate(env.Ctx, actor, got.SessionID)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	info, err := env.KDC.SessionInfo(env.Ctx, alice.ID, got.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1+n, info.Generation)

	evs, err := env.Lifecycle.KeyEvents(env.Ctx, domain.KeyEventFilter{Source: domain.SourceLifecycle})
	require.NoError(t, err)
	assert.Len(t, evs, n)
}

func TestSweep_ExpiresAndPurges(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, got := issue(t, env)

	n, err := env.Lifecycle.Sweep(env.Ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.Clock.Advance(30 * time.Minute)
	n, err = env.Lifecycle.Sweep(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	info, err := env.KDC.SessionInfo(env.Ctx, alice.ID, got.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRevoked, info.State)
	assert.Equal(t, []string{"lifecycle:expired"}, env.Events.Names(bob.ID))

	// Inside the retention window the sealed material is kept.
	env.Clock.Advance(lifecycle.DefaultRetention - time.Hour)
	n, err = env.Lifecycle.Sweep(env.Ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.Clock.Advance(time.Hour)
	n, err = env.Lifecycle.Sweep(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sess, _, err := env.Store.GetSession(env.Ctx, got.SessionID)
	require.NoError(t, err)
	assert.Empty(t, sess.SealedMaterial)
	require.NotNil(t, sess.PurgedAt)

	evs, err := env.Lifecycle.KeyEvents(env.Ctx, domain.KeyEventFilter{SessionID: got.SessionID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventMaterialPurged, evs[0].Type)
	assert.Equal(t, "true", evs[0].Payload["materialVerified"])

	n, err = env.Lifecycle.Sweep(env.Ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestKeyEvents_Paging(t *testing.T) {
	env := servicetest.New(t)
	alice, _, got := issue(t, env)
	for i := 0; i < 4; i++ {
		env.Clock.Advance(time.Second)
		_, err := env.Lifecycle.Rotate(env.Ctx, alice.ID, got.SessionID)
		require.NoError(t, err)
	}

	page, err := env.Lifecycle.KeyEvents(env.Ctx, domain.KeyEventFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "4", page[0].Payload["generation"])
	assert.Equal(t, "3", page[1].Payload["generation"])

	kdcOnly, err := env.Lifecycle.KeyEvents(env.Ctx, domain.KeyEventFilter{Source: domain.SourceKDC})
	require.NoError(t, err)
	assert.Len(t, kdcOnly, 1)
}
