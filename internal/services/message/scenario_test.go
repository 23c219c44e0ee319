package message_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/domain"
	"cipherlink/internal/services/servicetest"
)

// Alice and Bob get a key, talk, rotate, and Bob only reads the post
// rotation message once he has processed the kdc:new-session-key push.
func TestScenario_IssueSendRotate(t *testing.T) {
	env := servicetest.New(t)
	alice, bob, _ := env.Linked(t, "alice", "bob")
	aliceMsgs, aliceKeys := newClient(env, alice, nil)
	bobMsgs, bobKeys := newClient(env, bob, nil)

	issued, err := env.KDC.RequestSessionKey(env.Ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	// Both receive kdc:new-session-key with the same fingerprint.
	for _, c := range []struct {
		u       servicetest.User
		deliver func(domain.Event)
	}{
		{alice, aliceKeys.HandleEvent},
		{bob, bobKeys.HandleEvent},
	} {
		evs := env.Events.For(c.u.ID)
		require.Len(t, evs, 1)
		ev := evs[0].(domain.KDCEvent)
		assert.Equal(t, domain.KDCNewSessionKey, ev.Kind)
		assert.Equal(t, issued.Fingerprint, ev.Fingerprint)
		c.deliver(ev)
	}
	cached, ok := bobKeys.Peek(alice.ID)
	require.True(t, ok)
	assert.Equal(t, issued.Fingerprint, cached.Fingerprint)

	env.Clock.Advance(time.Second)
	hello, err := aliceMsgs.Send(env.Ctx, bob.ID, []byte("hello"))
	require.NoError(t, err)
	d := bobMsgs.Open(env.Ctx, alice.ID, hello)
	require.False(t, d.Undecryptable, d.Reason)
	assert.Equal(t, "hello", string(d.Plaintext))

	env.Events.Reset()
	rotated, err := env.Lifecycle.Rotate(env.Ctx, alice.ID, issued.SessionID)
	require.NoError(t, err)
	assert.Equal(t, issued.SessionID, rotated.SessionID)
	assert.NotEqual(t, issued.Fingerprint, rotated.Fingerprint)

	for _, ev := range env.Events.For(alice.ID) {
		aliceKeys.HandleEvent(ev)
	}

	env.Clock.Advance(time.Second)
	after, err := aliceMsgs.Send(env.Ctx, bob.ID, []byte("after rotation"))
	require.NoError(t, err)
	assert.Equal(t, rotated.Fingerprint, after.KeyFingerprint)

	// Bob has not processed the rotation yet: his cached key fails.
	d = bobMsgs.Open(env.Ctx, alice.ID, after)
	assert.True(t, d.Undecryptable)
	assert.Contains(t, d.Reason, "sent under key")

	bobEvents := env.Events.For(bob.ID)
	assert.Equal(t, []string{"lifecycle:rotated", "kdc:new-session-key"}, env.Events.Names(bob.ID))
	bobKeys.HandleEvent(bobEvents[1])

	d = bobMsgs.Open(env.Ctx, alice.ID, after)
	require.False(t, d.Undecryptable, d.Reason)
	assert.Equal(t, "after rotation", string(d.Plaintext))

	// A late lifecycle:rotated must not evict the key it announced.
	bobKeys.HandleEvent(bobEvents[0])
	cached, ok = bobKeys.Peek(alice.ID)
	require.True(t, ok)
	assert.Equal(t, rotated.Fingerprint, cached.Fingerprint)

	// Revocation evicts.
	_, err = env.Lifecycle.Revoke(env.Ctx, bob.ID, issued.SessionID)
	require.NoError(t, err)
	for _, ev := range env.Events.For(bob.ID)[2:] {
		bobKeys.HandleEvent(ev)
	}
	_, ok = bobKeys.Peek(alice.ID)
	assert.False(t, ok)
}
