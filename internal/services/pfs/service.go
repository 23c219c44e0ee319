package pfs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/metrics"
	"cipherlink/internal/ratelimit"
	"cipherlink/internal/util/keylock"
	"cipherlink/internal/util/memzero"
)

const (
	// DefaultPendingTTL bounds how long a started handshake may wait for
	// completion.
	DefaultPendingTTL = 120 * time.Second
	// DefaultEstablishedTTL is the lifetime of an established handshake.
	DefaultEstablishedTTL = 10 * time.Minute
	// DefaultSweepInterval is how often Run calls Sweep.
	DefaultSweepInterval = 15 * time.Second
)

// Config tunes the handshake service.
type Config struct {
	PendingTTL     time.Duration
	EstablishedTTL time.Duration
	Limiter        *ratelimit.Limiter
	Clock          domain.Clock
	Logger         logrus.FieldLogger
	Metrics        *metrics.Metrics
}

type pending struct {
	priv domain.X25519Private
	sess domain.PFSSession
}

func (p *pending) wipe() { memzero.Zero(p.priv[:]) }

// Service implements domain.PFSService.
type Service struct {
	store     domain.PFSStore
	directory domain.DirectoryService
	audit     domain.AuditRecorder
	publisher domain.Publisher

	pendingTTL     time.Duration
	establishedTTL time.Duration
	limiter        *ratelimit.Limiter
	now            domain.Clock
	log            logrus.FieldLogger
	metrics        *metrics.Metrics

	// locks serializes the writers of one handshake record: Start,
	// Complete and the sweeper.
	locks *keylock.Map

	mu      sync.Mutex
	pending map[domain.PFSSessionID]*pending
}

// New returns a handshake service.
func New(
	store domain.PFSStore,
	directory domain.DirectoryService,
	audit domain.AuditRecorder,
	publisher domain.Publisher,
	cfg Config,
) *Service {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	if cfg.EstablishedTTL <= 0 {
		cfg.EstablishedTTL = DefaultEstablishedTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Service{
		store:          store,
		directory:      directory,
		audit:          audit,
		publisher:      publisher,
		pendingTTL:     cfg.PendingTTL,
		establishedTTL: cfg.EstablishedTTL,
		limiter:        cfg.Limiter,
		now:            cfg.Clock,
		log:            cfg.Logger,
		metrics:        cfg.Metrics,
		locks:          keylock.New(),
		pending:        make(map[domain.PFSSessionID]*pending),
	}
}

// Start opens a handshake for initiator. peer is optional; when set the two
// users must be linked and the peer is notified as well.
//
// Steps:
//  1. Reject self-handshakes and callers over their rate limit.
//  2. Generate the server ephemeral key pair.
//  3. Keep the private half in memory, persist the public record.
//  4. Record the initiated event and push pfs:initiated.
func (s *Service) Start(ctx context.Context, initiator, peer domain.UserID) (domain.PFSStart, error) {
	if initiator == "" {
		return domain.PFSStart{}, fmt.Errorf("%w: initiator required", domain.ErrInvalidInput)
	}
	if peer == initiator {
		return domain.PFSStart{}, domain.ErrSelfSession
	}
	if !s.limiter.Allow("pfs:" + initiator.String()) {
		s.metrics.RateLimited("pfs")
		return domain.PFSStart{}, domain.ErrRateLimited
	}
	var link domain.LinkID
	if peer != "" {
		l, err := s.directory.AcceptedLink(ctx, initiator, peer)
		if err != nil {
			return domain.PFSStart{}, err
		}
		link = l.ID
	}

	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.PFSStart{}, err
	}
	now := s.now().UTC()
	sess := domain.PFSSession{
		ID:                 domain.PFSSessionID(uuid.NewString()),
		LinkID:             link,
		InitiatorID:        initiator,
		PeerID:             peer,
		ServerEphemeralKey: pub,
		State:              domain.PFSInitiated,
		CreatedAt:          now,
		ExpiresAt:          now.Add(s.pendingTTL),
	}
	unlock := s.locks.Lock(sess.ID.String())
	if err := s.store.SavePFSSession(ctx, sess); err != nil {
		unlock()
		memzero.Zero(priv[:])
		return domain.PFSStart{}, err
	}
	s.mu.Lock()
	s.pending[sess.ID] = &pending{priv: priv, sess: sess}
	n := len(s.pending)
	s.mu.Unlock()
	unlock()
	s.metrics.PendingPFS(n)

	if err := s.record(ctx, sess, domain.EventPFSInitiated, now); err != nil {
		return domain.PFSStart{}, err
	}
	s.metrics.PFS(string(domain.PFSInitiated))
	s.log.WithFields(logrus.Fields{
		"pfs_session_id": sess.ID,
		"actor":          initiator,
		"link_id":        link,
	}).Info("pfs handshake started")
	s.publish(ctx, sess, domain.PFSInitiatedEvent)

	return domain.PFSStart{
		PFSSessionID:       sess.ID,
		ServerEphemeralKey: pub,
		ExpiresAt:          sess.ExpiresAt,
	}, nil
}

// Complete finishes handshake id with the client's ephemeral key.
//
// Steps:
//  1. Pop the retained private half; a missing entry means unknown, used
//     or expired. Only participants may pop it.
//  2. Combine, derive the bound secret, fingerprint it, wipe everything.
//  3. Persist the established record, record the event, push
//     pfs:established.
func (s *Service) Complete(
	ctx context.Context,
	caller domain.UserID,
	id domain.PFSSessionID,
	clientKey domain.X25519Public,
) (domain.PFSCompletion, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	p, err := s.take(caller, id)
	if err != nil {
		return domain.PFSCompletion{}, err
	}
	defer p.wipe()

	now := s.now().UTC()
	sess := p.sess
	if !now.Before(sess.ExpiresAt) {
		s.expire(ctx, sess)
		return domain.PFSCompletion{}, domain.ErrUnknownOrExpiredSession
	}

	shared, err := crypto.DH(p.priv, clientKey)
	if err != nil {
		s.metrics.PFS("failed")
		s.expire(ctx, sess)
		return domain.PFSCompletion{}, fmt.Errorf("%w: %w", domain.ErrInvalidKey, err)
	}
	secret, err := crypto.DeriveHandshakeSecret(shared, sess.ServerEphemeralKey, clientKey)
	memzero.Zero(shared[:])
	if err != nil {
		s.expire(ctx, sess)
		return domain.PFSCompletion{}, err
	}
	fp := crypto.KeyFingerprint(secret)
	memzero.Zero(secret)

	sess.ClientEphemeralKey = clientKey
	sess.DerivedFingerprint = fp
	sess.State = domain.PFSEstablished
	sess.EstablishedAt = &now
	sess.ExpiresAt = now.Add(s.establishedTTL)
	if err := s.store.SavePFSSession(ctx, sess); err != nil {
		return domain.PFSCompletion{}, err
	}
	if err := s.record(ctx, sess, domain.EventPFSEstablished, now); err != nil {
		return domain.PFSCompletion{}, err
	}
	s.metrics.PFS(string(domain.PFSEstablished))
	s.log.WithFields(logrus.Fields{
		"pfs_session_id": sess.ID,
		"actor":          caller,
	}).Info("pfs handshake established")
	s.publish(ctx, sess, domain.PFSEstablishedEvent)

	return domain.PFSCompletion{
		PFSSessionID:       sess.ID,
		DerivedFingerprint: fp,
		ExpiresAt:          sess.ExpiresAt,
	}, nil
}

// Sweep expires every pending handshake past its TTL and wipes its
// private half. It also closes out established records past their
// lifetime.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	var due []*pending
	for id, p := range s.pending {
		if !now.Before(p.sess.ExpiresAt) {
			due = append(due, p)
			delete(s.pending, id)
		}
	}
	n := len(s.pending)
	s.mu.Unlock()
	s.metrics.PendingPFS(n)

	var errs []error
	for _, p := range due {
		p.wipe()
		unlock := s.locks.Lock(p.sess.ID.String())
		err := s.markExpired(ctx, p.sess)
		unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}

	// Records left initiated with no private half came from a previous
	// process; nothing can complete them any more.
	stale, err := s.store.ListPFSSessionsByState(ctx, domain.PFSInitiated)
	if err != nil {
		return len(due), err
	}
	count := len(due)
	for _, sess := range stale {
		if s.isPending(sess.ID) {
			continue
		}
		ok, err := s.expireIf(ctx, sess.ID, domain.PFSInitiated, now)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			count++
		}
	}

	established, err := s.store.ListPFSSessionsByState(ctx, domain.PFSEstablished)
	if err != nil {
		return count, err
	}
	for _, sess := range established {
		if now.Before(sess.ExpiresAt) {
			continue
		}
		ok, err := s.expireIf(ctx, sess.ID, domain.PFSEstablished, now)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			count++
		}
	}
	if count > 0 {
		s.log.WithField("expired", count).Info("pfs sweep")
	}
	return count, errors.Join(errs...)
}

// Run calls Sweep every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.WithError(err).Error("pfs sweep failed")
			}
		}
	}
}

// Pending reports how many handshakes hold a private half in memory.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// take removes the pending entry of id for caller. The entry is left in
// place when the caller is not a participant.
func (s *Service) take(caller domain.UserID, id domain.PFSSessionID) (*pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return nil, domain.ErrUnknownOrExpiredSession
	}
	if !p.sess.Has(caller) {
		return nil, domain.ErrForbidden
	}
	delete(s.pending, id)
	s.metrics.PendingPFS(len(s.pending))
	return p, nil
}

func (s *Service) isPending(id domain.PFSSessionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// expireIf re-reads record id under its lock and expires it only if it is
// still in state: an initiated record must have no private half left, an
// established one must be past its lifetime. A listing taken before Start
// or Complete finished therefore never overwrites their result.
func (s *Service) expireIf(ctx context.Context, id domain.PFSSessionID, state domain.PFSState, now time.Time) (bool, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	sess, ok, err := s.store.GetPFSSession(ctx, id)
	if err != nil || !ok || sess.State != state {
		return false, err
	}
	switch state {
	case domain.PFSInitiated:
		if s.isPending(id) {
			return false, nil
		}
	case domain.PFSEstablished:
		if now.Before(sess.ExpiresAt) {
			return false, nil
		}
	}
	if err := s.markExpired(ctx, sess); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) expire(ctx context.Context, sess domain.PFSSession) {
	if err := s.markExpired(ctx, sess); err != nil {
		s.log.WithError(err).WithField("pfs_session_id", sess.ID).Error("pfs expiry not persisted")
	}
}

func (s *Service) markExpired(ctx context.Context, sess domain.PFSSession) error {
	sess.State = domain.PFSExpired
	if err := s.store.SavePFSSession(ctx, sess); err != nil {
		return err
	}
	s.metrics.PFS(string(domain.PFSExpired))
	return nil
}

func (s *Service) record(ctx context.Context, sess domain.PFSSession, eventType string, now time.Time) error {
	payload := map[string]string{"pfsSessionId": sess.ID.String()}
	if sess.PeerID != "" {
		payload["peerId"] = sess.PeerID.String()
	}
	if sess.DerivedFingerprint != "" {
		payload["derivedFingerprint"] = sess.DerivedFingerprint.String()
	}
	_, err := s.audit.Record(ctx, domain.KeyEvent{
		Source:    domain.SourcePFS,
		Type:      eventType,
		ActorID:   sess.InitiatorID,
		Payload:   payload,
		CreatedAt: now,
	})
	return err
}

func (s *Service) publish(ctx context.Context, sess domain.PFSSession, kind domain.PFSEventKind) {
	ev := domain.PFSEvent{
		Kind:               kind,
		PFSSessionID:       sess.ID,
		LinkID:             sess.LinkID,
		InitiatorID:        sess.InitiatorID,
		PeerID:             sess.PeerID,
		ServerEphemeralKey: sess.ServerEphemeralKey,
		Fingerprint:        sess.DerivedFingerprint,
		ExpiresAt:          sess.ExpiresAt,
	}
	for _, u := range sess.Participants() {
		s.publisher.Publish(ctx, u, ev)
	}
}

// Compile-time assertion that Service implements domain.PFSService.
var _ domain.PFSService = (*Service)(nil)
