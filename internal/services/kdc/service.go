package kdc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/metrics"
	"cipherlink/internal/ratelimit"
	"cipherlink/internal/services/keymint"
	"cipherlink/internal/util/keylock"
	"cipherlink/internal/util/memzero"
)

// DefaultSessionTTL is how long an issued key stays live.
const DefaultSessionTTL = 30 * time.Minute

// Expirer retires a session whose TTL has passed. The caller already
// holds the session's link lock.
type Expirer interface {
	ExpireLocked(ctx context.Context, sess domain.KDCSession) error
}

// BroadcastSource yields the global broadcast key.
type BroadcastSource interface {
	BroadcastKey() ([]byte, error)
}

// Deps are the collaborators of the KDC.
type Deps struct {
	Users     domain.UserStore
	Sessions  domain.SessionStore
	Directory domain.DirectoryService
	Minter    *keymint.Minter
	Audit     domain.AuditRecorder
	Publisher domain.Publisher
	Locks     *keylock.Map
	Broadcast BroadcastSource
}

// Config tunes the KDC.
type Config struct {
	SessionTTL time.Duration
	Limiter    *ratelimit.Limiter
	Clock      domain.Clock
	Logger     logrus.FieldLogger
	Metrics    *metrics.Metrics
}

// Service implements domain.KDCService.
type Service struct {
	Deps
	expirer Expirer
	ttl     time.Duration
	limiter *ratelimit.Limiter
	now     domain.Clock
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// New returns a KDC.
func New(deps Deps, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if deps.Locks == nil {
		deps.Locks = keylock.New()
	}
	return &Service{
		Deps:    deps,
		ttl:     cfg.SessionTTL,
		limiter: cfg.Limiter,
		now:     cfg.Clock,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// SetExpirer installs the component that retires expired sessions found
// during issuance.
func (s *Service) SetExpirer(e Expirer) { s.expirer = e }

// LinkLockKey is the keylock key that serializes all key operations on a link.
func LinkLockKey(id domain.LinkID) string { return "link:" + id.String() }

// RequestSessionKey returns the live session of the initiator's link with
// peer, minting one when there is none.
//
// Steps:
//  1. Reject self-requests and callers over their rate limit.
//  2. Resolve the accepted link and take its lock.
//  3. Return the current session if it is still live; retire it if it
//     has expired.
//  4. Mint, persist, record the generated event, push each participant
//     its own sealed copy.
func (s *Service) RequestSessionKey(
	ctx context.Context,
	initiator, peer domain.UserID,
) (domain.IssuedSession, error) {
	if initiator == peer {
		return domain.IssuedSession{}, domain.ErrSelfSession
	}
	if !s.limiter.Allow("kdc:" + initiator.String()) {
		s.metrics.RateLimited("kdc")
		return domain.IssuedSession{}, domain.ErrRateLimited
	}
	link, err := s.Directory.AcceptedLink(ctx, initiator, peer)
	if err != nil {
		return domain.IssuedSession{}, err
	}

	unlock := s.Locks.Lock(LinkLockKey(link.ID))
	defer unlock()

	now := s.now().UTC()
	cur, ok, err := s.Sessions.CurrentSession(ctx, link.ID)
	if err != nil {
		return domain.IssuedSession{}, err
	}
	if ok {
		if !cur.Expired(now) {
			return issued(cur, false), nil
		}
		if s.expirer == nil {
			return domain.IssuedSession{}, fmt.Errorf("session %s expired and no expirer is configured", cur.ID)
		}
		if err := s.expirer.ExpireLocked(ctx, cur); err != nil {
			return domain.IssuedSession{}, err
		}
	}

	iu, err := s.user(ctx, initiator)
	if err != nil {
		return domain.IssuedSession{}, err
	}
	pu, err := s.user(ctx, peer)
	if err != nil {
		return domain.IssuedSession{}, err
	}

	sess := domain.KDCSession{
		ID:          domain.SessionID(uuid.NewString()),
		LinkID:      link.ID,
		InitiatorID: initiator,
		PeerID:      peer,
		Generation:  1,
		State:       domain.StateIssued,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}
	mat, err := s.Minter.Mint(sess.ID, iu, pu)
	if err != nil {
		return domain.IssuedSession{}, err
	}
	keymint.Apply(&sess, mat)

	if err := s.Sessions.SaveSession(ctx, sess); err != nil {
		return domain.IssuedSession{}, err
	}
	if _, err := s.Audit.Record(ctx, domain.KeyEvent{
		Source:    domain.SourceKDC,
		Type:      domain.EventGenerated,
		SessionID: sess.ID,
		ActorID:   initiator,
		Payload: map[string]string{
			"contactLinkId": link.ID.String(),
			"fingerprint":   sess.Fingerprint.String(),
			"peerId":        peer.String(),
		},
		CreatedAt: now,
	}); err != nil {
		return domain.IssuedSession{}, err
	}
	s.metrics.SessionIssued()
	s.log.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"link_id":    link.ID,
		"actor":      initiator,
	}).Info("session key issued")

	PublishNewKey(ctx, s.Publisher, sess, initiator)
	return issued(sess, true), nil
}

// PublishNewKey pushes kdc:new-session-key to both participants of sess,
// each with the copy sealed to them.
func PublishNewKey(ctx context.Context, pub domain.Publisher, sess domain.KDCSession, actor domain.UserID) {
	for _, u := range sess.Participants() {
		key, ok := sess.KeyFor(u)
		if !ok {
			continue
		}
		pub.Publish(ctx, u, domain.KDCEvent{
			Kind:         domain.KDCNewSessionKey,
			SessionID:    sess.ID,
			LinkID:       sess.LinkID,
			InitiatorID:  sess.InitiatorID,
			PeerID:       sess.PeerID,
			ActorID:      actor,
			Fingerprint:  sess.Fingerprint,
			State:        sess.State,
			ExpiresAt:    sess.ExpiresAt,
			EncryptedKey: &key,
		})
	}
}

// SessionInfo returns the metadata of id. Sessions the caller does not
// participate in are reported as not found.
func (s *Service) SessionInfo(
	ctx context.Context,
	caller domain.UserID,
	id domain.SessionID,
) (domain.SessionInfo, error) {
	sess, ok, err := s.Sessions.GetSession(ctx, id)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	if !ok || !sess.Has(caller) {
		return domain.SessionInfo{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return sess.Info(), nil
}

// CurrentKey returns the caller's sealed copy of the live key shared with peer.
func (s *Service) CurrentKey(ctx context.Context, caller, peer domain.UserID) (domain.CurrentKey, error) {
	link, err := s.Directory.AcceptedLink(ctx, caller, peer)
	if err != nil {
		return domain.CurrentKey{}, err
	}
	sess, ok, err := s.Sessions.CurrentSession(ctx, link.ID)
	if err != nil {
		return domain.CurrentKey{}, err
	}
	if !ok || sess.Expired(s.now()) {
		return domain.CurrentKey{}, fmt.Errorf("no live session with %s: %w", peer, domain.ErrNotFound)
	}
	key, ok := sess.KeyFor(caller)
	if !ok {
		return domain.CurrentKey{}, fmt.Errorf("no key copy for %s: %w", caller, domain.ErrNotFound)
	}
	return domain.CurrentKey{
		SessionID:   sess.ID,
		LinkID:      sess.LinkID,
		PeerID:      peer,
		Fingerprint: sess.Fingerprint,
		State:       sess.State,
		ExpiresAt:   sess.ExpiresAt,
		Key:         key,
	}, nil
}

// BroadcastKey seals the global broadcast key to the caller.
func (s *Service) BroadcastKey(ctx context.Context, caller domain.UserID) (domain.BroadcastKey, error) {
	u, err := s.user(ctx, caller)
	if err != nil {
		return domain.BroadcastKey{}, err
	}
	key, err := s.Broadcast.BroadcastKey()
	if err != nil {
		return domain.BroadcastKey{}, err
	}
	defer memzero.Zero(key)

	sealed, err := crypto.SealTo(u.IdentityKey, key)
	if err != nil {
		return domain.BroadcastKey{}, err
	}
	return domain.BroadcastKey{Fingerprint: crypto.KeyFingerprint(key), Key: sealed}, nil
}

func (s *Service) user(ctx context.Context, id domain.UserID) (domain.User, error) {
	u, ok, err := s.Users.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return u, nil
}

func issued(sess domain.KDCSession, fresh bool) domain.IssuedSession {
	return domain.IssuedSession{
		SessionID:                sess.ID,
		Fingerprint:              sess.Fingerprint,
		State:                    sess.State,
		ExpiresAt:                sess.ExpiresAt,
		EncryptedKeyForInitiator: sess.KeyForInitiator,
		EncryptedKeyForPeer:      sess.KeyForPeer,
		Fresh:                    fresh,
	}
}

// Compile-time assertion that Service implements domain.KDCService.
var _ domain.KDCService = (*Service)(nil)
