package kdc_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/services/servicetest"
)

func TestRequestSessionKey_IssuesAndPushesBothCopies(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, link := env.Linked(t, "alice", "bob")

	got, err := env.KDC.RequestSessionKey(env.Ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, got.Fresh)
	assert.Equal(t, domain.StateIssued, got.State)
	assert.Equal(t, servicetest.Base.Add(30*time.Minute), got.ExpiresAt)

	ka := servicetest.OpenKey(t, alice, got.EncryptedKeyForInitiator)
	kb := servicetest.OpenKey(t, bob, got.EncryptedKeyForPeer)
	assert.Equal(t, ka, kb)
	assert.Equal(t, got.Fingerprint, crypto.KeyFingerprint(ka))

	// Neither copy opens for the other participant.
	_, err = crypto.OpenSealed(bob.Identity.XPriv, got.EncryptedKeyForInitiator)
	assert.Error(t, err)

	for _, u := range []servicetest.User{alice, bob} {
		evs := env.Events.For(u.ID)
		require.Len(t, evs, 1, u.ID)
		ev, ok := evs[0].(domain.KDCEvent)
		require.True(t, ok)
		assert.Equal(t, domain.KDCNewSessionKey, ev.Kind)
		assert.Equal(t, link.ID, ev.LinkID)
		assert.Equal(t, got.Fingerprint, ev.Fingerprint)
		require.NotNil(t, ev.EncryptedKey)
		assert.Equal(t, ka, servicetest.OpenKey(t, u, *ev.EncryptedKey))
	}

	evs, err := env.Lifecycle.KeyEvents(env.Ctx, domain.KeyEventFilter{SessionID: got.SessionID})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.SourceKDC, evs[0].Source)
	assert.Equal(t, domain.EventGenerated, evs[0].Type)
	assert.Equal(t, link.ID.String(), evs[0].Payload["contactLinkId"])
}

func TestRequestSessionKey_RawKeyNeverStored(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, _ := env.Linked(t, "alice", "bob")

	got, err := env.KDC.RequestSessionKey(env.Ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	key := servicetest.OpenKey(t, alice, got.EncryptedKeyForInitiator)

	sess, ok, err := env.Store.GetSession(env.Ctx, got.SessionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, string(sess.SealedMaterial), string(key))
	verified, err := env.Minter.Verify(sess)
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestRequestSessionKey_IdempotentWhileLive(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, _ := env.Linked(t, "alice", "bob")

	first, err := env.KDC.RequestSessionKey(env.Ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	env.Clock.Advance(10 * time.Minute)
	second, err := env.KDC.RequestSessionKey(env.Ctx, bob.ID, alice.ID)
	require.NoError(t, err)

	assert.False(t, second.Fresh)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Len(t, env.Events.For(alice.ID), 1, "no second push for an existing session")
}

func TestRequestSessionKey_ConcurrentYieldsOneSession(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, _ := env.Linked(t, "alice", "bob")

	const n = 16
	var (
		wg  sync.WaitGroup
		ids = make([]domain.SessionID, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := alice.ID, bob.ID
			if i%2 == 1 {
				from, to = to, from
			}
			got, err := env.KDC.RequestSessionKey(env.Ctx, from, to)
			assert.NoError(t, err)
			ids[i] = got.SessionID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	all, err := env.Store.ListSessionsByState(env.Ctx,
		domain.StateIssued, domain.StateRotated, domain.StateRevoked, domain.StateDestroyed)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRequestSessionKey_Rejections(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, _ := env.Linked(t, "alice", "bob")
	carol := env.Register(t, "carol")

	_, err := env.KDC.RequestSessionKey(env.Ctx, alice.ID, alice.ID)
	assert.ErrorIs(t, err, domain.ErrSelfSession)

	_, err = env.KDC.RequestSessionKey(env.Ctx, alice.ID, carol.ID)
	assert.ErrorIs(t, err, domain.ErrNotLinked)

	_, err = env.KDC.RequestSessionKey(env.Ctx, bob.ID, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotLinked)
}

func TestRequestSessionKey_RateLimited(t *testing.T) {
	env := servicetest.New(t, servicetest.Options{RateLimit: 5})
	alice, bob, _ := env.Linked(t, "alice", "bob")

	for i := 0; i < 5; i++ {
		_, err := env.KDC.RequestSessionKey(env.Ctx, alice.ID, bob.ID)
		require.NoError(t, err, "request %d", i)
	}
	_, err := env.KDC.RequestSessionKey(env.Ctx, alice.ID, bob.ID)
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	// Budgets are per user.
	_, err = env.KDC.RequestSessionKey(env.Ctx, bob.ID, alice.ID)
	assert.NoError(t, err)

	env.Clock.Advance(time.Minute)
	_, err = env.KDC.RequestSessionKey(env.Ctx, alice.ID, bob.ID)
	assert.NoError(t, err)
}

func TestRequestSessionKey_ExpiredSessionIsReplaced(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, _ := env.Linked(t, "alice", "bob")

	first, err := env.KDC.RequestSessionKey(env.Ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	env.Clock.Advance(31 * time.Minute)

	second, err := env.KDC.RequestSessionKey(env.Ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, second.Fresh)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	old, err := env.KDC.SessionInfo(env.Ctx, alice.ID, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRevoked, old.State)

	evs, err := env.Lifecycle.KeyEvents(env.Ctx, domain.KeyEventFilter{SessionID: first.SessionID})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, domain.EventExpired, evs[0].Type)
	assert.Contains(t, env.Events.Names(bob.ID), "lifecycle:expired")
}

func TestRequestSessionKey_RevokedSessionIsReplaced(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, _ := env.Linked(t, "alice", "bob")

	first, err := env.KDC.RequestSessionKey(env.Ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = env.Lifecycle.Revoke(env.Ctx, bob.ID, first.SessionID)
	require.NoError(t, err)

	_, err = env.KDC.CurrentKey(env.Ctx, alice.ID, bob.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	env.Clock.Advance(time.Second)
	second, err := env.KDC.RequestSessionKey(env.Ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, second.Fresh)
	assert.Equal(t, domain.StateIssued, second.State)
	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)

	ck, err := env.KDC.CurrentKey(env.Ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, second.SessionID, ck.SessionID)

	old, err := env.KDC.SessionInfo(env.Ctx, alice.ID, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRevoked, old.State)
}

func TestSessionInfo_HidesFromOutsiders(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, _ := env.Linked(t, "alice", "bob")
	carol := env.Register(t, "carol")

	got, err := env.KDC.RequestSessionKey(env.Ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	info, err := env.KDC.SessionInfo(env.Ctx, bob.ID, got.SessionID)
	require.NoError(t, err)
	assert.Equal(t, got.Fingerprint, info.Fingerprint)
	assert.Equal(t, 1, info.Generation)

	_, err = env.KDC.SessionInfo(env.Ctx, carol.ID, got.SessionID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.KDC.SessionInfo(env.Ctx, alice.ID, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCurrentKey(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, link := env.Linked(t, "alice", "bob")

	_, err := env.KDC.CurrentKey(env.Ctx, bob.ID, alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := env.KDC.RequestSessionKey(env.Ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	ck, err := env.KDC.CurrentKey(env.Ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, got.SessionID, ck.SessionID)
	assert.Equal(t, link.ID, ck.LinkID)
	assert.Equal(t, alice.ID, ck.PeerID)
	assert.Equal(t,
		servicetest.OpenKey(t, alice, got.EncryptedKeyForInitiator),
		servicetest.OpenKey(t, bob, ck.Key))

	env.Clock.Advance(30 * time.Minute)
	_, err = env.KDC.CurrentKey(env.Ctx, bob.ID, alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBroadcastKey_SameKeyForEveryone(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, _ := env.Linked(t, "alice", "bob")

	ba, err := env.KDC.BroadcastKey(env.Ctx, alice.ID)
	require.NoError(t, err)
	bb, err := env.KDC.BroadcastKey(env.Ctx, bob.ID)
	require.NoError(t, err)

	assert.Equal(t, ba.Fingerprint, bb.Fingerprint)
	assert.Equal(t, servicetest.OpenKey(t, alice, ba.Key), servicetest.OpenKey(t, bob, bb.Key))

	_, err = env.KDC.BroadcastKey(env.Ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
