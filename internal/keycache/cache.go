package keycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/util/memzero"
)

// broadcastKey is the singleflight key of the broadcast channel. User ids
// cannot be empty, so it never collides with a peer.
const broadcastKey = ""

// DefaultFetchTimeout bounds one shared KDC fetch.
const DefaultFetchTimeout = 10 * time.Second

// Fetcher reads sealed keys from the KDC. domain.RelayClient satisfies it.
type Fetcher interface {
	CurrentKey(ctx context.Context, peer domain.UserID) (domain.CurrentKey, error)
	BroadcastKey(ctx context.Context) (domain.BroadcastKey, error)
}

// Entry is one opened session key.
type Entry struct {
	SessionID   domain.SessionID
	LinkID      domain.LinkID
	PeerID      domain.UserID
	Fingerprint domain.Fingerprint
	ExpiresAt   time.Time
	Key         []byte
}

// Broadcast reports whether the entry is the global broadcast key.
func (e Entry) Broadcast() bool { return e.PeerID == "" }

// clone copies the key so a later wipe of the cached entry does not reach
// callers.
func (e Entry) clone() Entry {
	e.Key = append([]byte(nil), e.Key...)
	return e
}

// Config tunes a Cache.
type Config struct {
	Clock  domain.Clock
	Logger logrus.FieldLogger
	// FetchTimeout bounds a shared fetch. It runs apart from any one
	// caller's context, so a caller giving up does not fail the others.
	FetchTimeout time.Duration
}

// Cache is a SessionKeyCache for one client process.
type Cache struct {
	me    domain.UserID
	priv  domain.X25519Private
	fetch Fetcher
	group singleflight.Group
	now   domain.Clock
	log   logrus.FieldLogger
	limit time.Duration

	mu      sync.Mutex
	entries map[domain.UserID]Entry
	// gen counts invalidations per peer so that a fetch started before an
	// event cannot store a key the event superseded.
	gen map[domain.UserID]uint64
}

// New returns an empty cache for user me, opening sealed copies with priv.
func New(me domain.UserID, priv domain.X25519Private, fetch Fetcher, cfg Config) *Cache {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &Cache{
		me:      me,
		priv:    priv,
		fetch:   fetch,
		now:     cfg.Clock,
		log:     cfg.Logger,
		limit:   cfg.FetchTimeout,
		entries: make(map[domain.UserID]Entry),
		gen:     make(map[domain.UserID]uint64),
	}
}

// Get returns the live key shared with peer, fetching it on a miss.
func (c *Cache) Get(ctx context.Context, peer domain.UserID) (Entry, error) {
	if peer == "" || peer == c.me {
		return Entry{}, domain.ErrSelfSession
	}
	return c.get(ctx, peer, func(ctx context.Context) (Entry, error) {
		ck, err := c.fetch.CurrentKey(ctx, peer)
		if err != nil {
			return Entry{}, err
		}
		return c.open(ck.SessionID, ck.LinkID, peer, ck.Fingerprint, ck.ExpiresAt, ck.Key)
	})
}

// Broadcast returns the broadcast key, fetching it on a miss.
func (c *Cache) Broadcast(ctx context.Context) (Entry, error) {
	return c.get(ctx, broadcastKey, func(ctx context.Context) (Entry, error) {
		bk, err := c.fetch.BroadcastKey(ctx)
		if err != nil {
			return Entry{}, err
		}
		return c.open("", "", "", bk.Fingerprint, time.Time{}, bk.Key)
	})
}

// Confirm asks the KDC whether fp is still the live key shared with peer.
// A key that is no longer live is dropped from the cache.
func (c *Cache) Confirm(ctx context.Context, peer domain.UserID, fp domain.Fingerprint) (bool, error) {
	ck, err := c.fetch.CurrentKey(ctx, peer)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return false, err
	case ck.Fingerprint == fp:
		return true, nil
	}
	c.mu.Lock()
	if e, ok := c.entries[peer]; ok && e.Fingerprint == fp {
		c.dropLocked(peer)
	}
	c.mu.Unlock()
	c.log.WithField("peer_id", peer).WithField("fingerprint", fp).Info("cached session key is no longer live")
	return false, nil
}

// Peek returns the cached entry for peer without fetching.
func (c *Cache) Peek(peer domain.UserID) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[peer]
	if !ok || c.expired(e) {
		return Entry{}, false
	}
	return e.clone(), true
}

// Invalidate drops the entry for peer.
func (c *Cache) Invalidate(peer domain.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(peer)
}

// Len returns the number of cached entries, the broadcast key included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// HandleEvent applies a realtime event to the cache.
func (c *Cache) HandleEvent(ev domain.Event) {
	switch e := ev.(type) {
	case domain.KDCEvent:
		peer, ok := c.peerOf(e.InitiatorID, e.PeerID)
		if !ok {
			return
		}
		if e.Kind == domain.KDCNewSessionKey && e.EncryptedKey != nil {
			entry, err := c.open(e.SessionID, e.LinkID, peer, e.Fingerprint, e.ExpiresAt, *e.EncryptedKey)
			if err != nil {
				c.log.WithError(err).WithField("session_id", e.SessionID).Warn("pushed session key rejected")
				c.Invalidate(peer)
				return
			}
			c.replace(peer, entry)
			return
		}
		c.Invalidate(peer)
	case domain.LifecycleEvent:
		peer, ok := c.peerOf(e.InitiatorID, e.PeerID)
		if !ok {
			return
		}
		c.mu.Lock()
		// A rotation push can arrive after its kdc:new-session-key; only
		// drop the entry when it still belongs to an older key.
		if cur, ok := c.entries[peer]; !ok || e.Kind != domain.LifecycleRotated || cur.Fingerprint != e.Fingerprint {
			c.dropLocked(peer)
		}
		c.mu.Unlock()
	case domain.PFSEvent, domain.MessageEvent:
	}
}

func (c *Cache) get(ctx context.Context, key domain.UserID, load func(context.Context) (Entry, error)) (Entry, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !c.expired(e) {
		c.mu.Unlock()
		return e.clone(), nil
	}
	gen := c.gen[key]
	c.mu.Unlock()

	ch := c.group.DoChan(string(key), func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.limit)
		defer cancel()
		e, err := load(fctx)
		if err != nil {
			return Entry{}, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen[key] == gen {
			c.entries[key] = e
		}
		return e.clone(), nil
	})
	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		return res.Val.(Entry).clone(), nil
	}
}

func (c *Cache) replace(peer domain.UserID, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(peer)
	c.entries[peer] = e
}

func (c *Cache) dropLocked(peer domain.UserID) {
	if old, ok := c.entries[peer]; ok {
		memzero.Zero(old.Key)
		delete(c.entries, peer)
	}
	c.gen[peer]++
}

func (c *Cache) expired(e Entry) bool {
	return !e.ExpiresAt.IsZero() && !c.now().Before(e.ExpiresAt)
}

func (c *Cache) peerOf(initiator, peer domain.UserID) (domain.UserID, bool) {
	switch c.me {
	case initiator:
		return peer, true
	case peer:
		return initiator, true
	}
	return "", false
}

// open unseals key and checks it against the advertised fingerprint.
func (c *Cache) open(
	id domain.SessionID,
	link domain.LinkID,
	peer domain.UserID,
	fp domain.Fingerprint,
	expires time.Time,
	sealed domain.SealedKey,
) (Entry, error) {
	key, err := crypto.OpenSealed(c.priv, sealed)
	if err != nil {
		return Entry{}, err
	}
	if crypto.KeyFingerprint(key) != fp {
		memzero.Zero(key)
		return Entry{}, fmt.Errorf("session key fingerprint mismatch: %w", domain.ErrDecryptionFailure)
	}
	return Entry{
		SessionID:   id,
		LinkID:      link,
		PeerID:      peer,
		Fingerprint: fp,
		ExpiresAt:   expires,
		Key:         key,
	}, nil
}
