package keycache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/keycache"
)

type fakeKDC struct {
	t       *testing.T
	me      domain.X25519Public
	calls   atomic.Int32
	gate    chan struct{}
	key     []byte
	expires time.Time
	err     error
}

func (f *fakeKDC) CurrentKey(ctx context.Context, peer domain.UserID) (domain.CurrentKey, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return domain.CurrentKey{}, ctx.Err()
		}
	}
	if f.err != nil {
		return domain.CurrentKey{}, f.err
	}
	sealed, err := crypto.SealTo(f.me, f.key)
	require.NoError(f.t, err)
	return domain.CurrentKey{
		SessionID:   "s-1",
		LinkID:      "l-1",
		PeerID:      peer,
		Fingerprint: crypto.KeyFingerprint(f.key),
		State:       domain.StateIssued,
		ExpiresAt:   f.expires,
		Key:         sealed,
	}, nil
}

func (f *fakeKDC) BroadcastKey(context.Context) (domain.BroadcastKey, error) {
	sealed, err := crypto.SealTo(f.me, f.key)
	require.NoError(f.t, err)
	return domain.BroadcastKey{Fingerprint: crypto.KeyFingerprint(f.key), Key: sealed}, nil
}

type fixture struct {
	cache *keycache.Cache
	kdc   *fakeKDC
	priv  domain.X25519Private
	pub   domain.X25519Public
	now   time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	priv, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	key, err := crypto.RandomKey()
	require.NoError(t, err)
	f := &fixture{priv: priv, pub: pub, now: time.Unix(1_700_000_000, 0)}
	f.kdc = &fakeKDC{t: t, me: pub, key: key, expires: f.now.Add(time.Hour)}
	f.cache = keycache.New("bob", priv, f.kdc, keycache.Config{Clock: func() time.Time { return f.now }})
	return f
}

func (f *fixture) push(t *testing.T, fp domain.Fingerprint, key []byte) domain.KDCEvent {
	t.Helper()
	sealed, err := crypto.SealTo(f.pub, key)
	require.NoError(t, err)
	return domain.KDCEvent{
		Kind:         domain.KDCNewSessionKey,
		SessionID:    "s-1",
		LinkID:       "l-1",
		InitiatorID:  "alice",
		PeerID:       "bob",
		Fingerprint:  fp,
		State:        domain.StateRotated,
		ExpiresAt:    f.now.Add(time.Hour),
		EncryptedKey: &sealed,
	}
}

func TestGet_HydratesOnceAndCaches(t *testing.T) {
	f := setup(t)
	e, err := f.cache.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, f.kdc.key, e.Key)
	assert.Equal(t, domain.LinkID("l-1"), e.LinkID)

	_, err = f.cache.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.kdc.calls.Load())
}

func TestGet_ConcurrentMissesShareOneFetch(t *testing.T) {
	f := setup(t)
	f.kdc.gate = make(chan struct{})

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := f.cache.Get(context.Background(), "alice")
			assert.NoError(t, err)
			assert.Equal(t, f.kdc.key, e.Key)
		}()
	}
	require.Eventually(t, func() bool { return f.kdc.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.kdc.gate)
	wg.Wait()
	assert.Equal(t, int32(1), f.kdc.calls.Load())
}

func TestGet_CallerCancelDoesNotFailSharedFetch(t *testing.T) {
	f := setup(t)
	f.kdc.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := f.cache.Get(ctx, "alice")
		first <- err
	}()
	require.Eventually(t, func() bool { return f.kdc.calls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := f.cache.Get(context.Background(), "alice")
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	close(f.kdc.gate)
	require.NoError(t, <-second)
	assert.Equal(t, int32(1), f.kdc.calls.Load())
	_, ok := f.cache.Peek("alice")
	assert.True(t, ok)
}

func TestConfirm(t *testing.T) {
	f := setup(t)
	e, err := f.cache.Get(context.Background(), "alice")
	require.NoError(t, err)

	live, err := f.cache.Confirm(context.Background(), "alice", e.Fingerprint)
	require.NoError(t, err)
	assert.True(t, live)
	_, ok := f.cache.Peek("alice")
	assert.True(t, ok)

	// The KDC no longer has a live key for the link.
	f.kdc.err = domain.ErrNotFound
	live, err = f.cache.Confirm(context.Background(), "alice", e.Fingerprint)
	require.NoError(t, err)
	assert.False(t, live)
	_, ok = f.cache.Peek("alice")
	assert.False(t, ok, "a key that is no longer live is dropped")
}

func TestConfirm_ReplacedKey(t *testing.T) {
	f := setup(t)
	e, err := f.cache.Get(context.Background(), "alice")
	require.NoError(t, err)

	f.kdc.key, err = crypto.RandomKey()
	require.NoError(t, err)
	live, err := f.cache.Confirm(context.Background(), "alice", e.Fingerprint)
	require.NoError(t, err)
	assert.False(t, live)

	f.kdc.err = domain.ErrStorage
	_, err = f.cache.Confirm(context.Background(), "alice", e.Fingerprint)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestGet_RefetchesAfterExpiry(t *testing.T) {
	f := setup(t)
	_, err := f.cache.Get(context.Background(), "alice")
	require.NoError(t, err)

	f.now = f.now.Add(time.Hour)
	_, ok := f.cache.Peek("alice")
	assert.False(t, ok)
	f.kdc.expires = f.now.Add(time.Hour)
	_, err = f.cache.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.kdc.calls.Load())
}

func TestGet_Errors(t *testing.T) {
	f := setup(t)
	_, err := f.cache.Get(context.Background(), "bob")
	assert.ErrorIs(t, err, domain.ErrSelfSession)

	f.kdc.err = domain.ErrNotFound
	_, err = f.cache.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, f.cache.Len(), "failures are not cached")
}

func TestHandleEvent_NewKeyReplaces(t *testing.T) {
	f := setup(t)
	_, err := f.cache.Get(context.Background(), "alice")
	require.NoError(t, err)

	next, err := crypto.RandomKey()
	require.NoError(t, err)
	f.cache.HandleEvent(f.push(t, crypto.KeyFingerprint(next), next))

	e, ok := f.cache.Peek("alice")
	require.True(t, ok)
	assert.Equal(t, next, e.Key)
	assert.Equal(t, crypto.KeyFingerprint(next), e.Fingerprint)
}

func TestHandleEvent_BadPushInvalidates(t *testing.T) {
	f := setup(t)
	_, err := f.cache.Get(context.Background(), "alice")
	require.NoError(t, err)

	next, err := crypto.RandomKey()
	require.NoError(t, err)
	f.cache.HandleEvent(f.push(t, "not-the-fingerprint", next))

	_, ok := f.cache.Peek("alice")
	assert.False(t, ok)
}

func TestHandleEvent_RevocationsEvict(t *testing.T) {
	events := []domain.Event{
		domain.KDCEvent{Kind: domain.KDCKeyRevoked, InitiatorID: "alice", PeerID: "bob"},
		domain.LifecycleEvent{Kind: domain.LifecycleRevoked, InitiatorID: "bob", PeerID: "alice"},
		domain.LifecycleEvent{Kind: domain.LifecycleDestroyed, InitiatorID: "alice", PeerID: "bob"},
		domain.LifecycleEvent{Kind: domain.LifecycleExpired, InitiatorID: "alice", PeerID: "bob"},
		domain.LifecycleEvent{Kind: domain.LifecycleRotated, InitiatorID: "alice", PeerID: "bob", Fingerprint: "newer"},
	}
	for _, ev := range events {
		t.Run(ev.Name(), func(t *testing.T) {
			f := setup(t)
			_, err := f.cache.Get(context.Background(), "alice")
			require.NoError(t, err)
			f.cache.HandleEvent(ev)
			_, ok := f.cache.Peek("alice")
			assert.False(t, ok)
		})
	}
}

func TestHandleEvent_IgnoresOthers(t *testing.T) {
	f := setup(t)
	_, err := f.cache.Get(context.Background(), "alice")
	require.NoError(t, err)

	f.cache.HandleEvent(domain.LifecycleEvent{Kind: domain.LifecycleRevoked, InitiatorID: "carol", PeerID: "dave"})
	f.cache.HandleEvent(domain.PFSEvent{Kind: domain.PFSInitiatedEvent, InitiatorID: "alice"})
	f.cache.HandleEvent(domain.MessageEvent{})
	_, ok := f.cache.Peek("alice")
	assert.True(t, ok)
}

func TestHandleEvent_InFlightFetchDoesNotResurrect(t *testing.T) {
	f := setup(t)
	f.kdc.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.cache.Get(context.Background(), "alice")
		done <- err
	}()
	require.Eventually(t, func() bool { return f.kdc.calls.Load() == 1 }, time.Second, time.Millisecond)

	f.cache.HandleEvent(domain.LifecycleEvent{Kind: domain.LifecycleRevoked, InitiatorID: "alice", PeerID: "bob"})
	close(f.kdc.gate)
	require.NoError(t, <-done)

	_, ok := f.cache.Peek("alice")
	assert.False(t, ok)
}

func TestBroadcast(t *testing.T) {
	f := setup(t)
	e, err := f.cache.Broadcast(context.Background())
	require.NoError(t, err)
	assert.True(t, e.Broadcast())
	assert.Equal(t, f.kdc.key, e.Key)

	// Returned keys are copies.
	e.Key[0] ^= 0xff
	again, err := f.cache.Broadcast(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.kdc.key, again.Key)
}
