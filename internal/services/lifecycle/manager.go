package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"cipherlink/internal/domain"
	"cipherlink/internal/metrics"
	"cipherlink/internal/services/kdc"
	"cipherlink/internal/services/keymint"
	"cipherlink/internal/util/keylock"
)

const (
	// DefaultRetention is how long revoked material is kept for forensics.
	DefaultRetention = 30 * 24 * time.Hour
	// DefaultSweepInterval is how often Run calls Sweep.
	DefaultSweepInterval = 30 * time.Second
)

// Deps are the collaborators of the Manager.
type Deps struct {
	Users     domain.UserStore
	Sessions  domain.SessionStore
	Minter    *keymint.Minter
	Audit     domain.AuditRecorder
	Publisher domain.Publisher
	Locks     *keylock.Map
}

// Config tunes the Manager.
type Config struct {
	SessionTTL time.Duration
	Retention  time.Duration
	Clock      domain.Clock
	Logger     logrus.FieldLogger
	Metrics    *metrics.Metrics
}

// Manager implements domain.LifecycleService.
type Manager struct {
	Deps
	ttl       time.Duration
	retention time.Duration
	now       domain.Clock
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
}

// New returns a Manager. Locks must be the map the KDC uses so that
// issuance and transitions on one link never interleave.
func New(deps Deps, cfg Config) *Manager {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = kdc.DefaultSessionTTL
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
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
	return &Manager{
		Deps:      deps,
		ttl:       cfg.SessionTTL,
		retention: cfg.Retention,
		now:       cfg.Clock,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Rotate replaces the key material of id, keeping the id.
//
// Steps:
//  1. Authorize the actor and lock the link.
//  2. Refuse terminal sessions.
//  3. Mint new material, bump the generation, extend the expiry.
//  4. Record the rotated event, push lifecycle:rotated then
//     kdc:new-session-key.
func (m *Manager) Rotate(ctx context.Context, actor domain.UserID, id domain.SessionID) (domain.SessionInfo, error) {
	return m.transition(ctx, actor, id, func(sess *domain.KDCSession, now time.Time) (string, map[string]string, error) {
		if sess.State.Terminal() {
			return "", nil, domain.ErrAlreadyTerminal
		}
		iu, err := m.user(ctx, sess.InitiatorID)
		if err != nil {
			return "", nil, err
		}
		pu, err := m.user(ctx, sess.PeerID)
		if err != nil {
			return "", nil, err
		}
		mat, err := m.Minter.Mint(sess.ID, iu, pu)
		if err != nil {
			return "", nil, err
		}
		previous := sess.Fingerprint
		keymint.Apply(sess, mat)
		sess.Generation++
		sess.State = domain.StateRotated
		sess.RotatedAt = &now
		sess.ExpiresAt = now.Add(m.ttl)
		return domain.EventRotated, map[string]string{
			"fingerprint":         sess.Fingerprint.String(),
			"previousFingerprint": previous.String(),
			"generation":          strconv.Itoa(sess.Generation),
		}, nil
	}, func(sess domain.KDCSession, actor domain.UserID) {
		m.publish(ctx, sess, actor, domain.LifecycleRotated)
		kdc.PublishNewKey(ctx, m.Publisher, sess, actor)
	})
}

// Revoke marks id revoked. Its material is kept sealed for forensics until
// the retention window passes; the participants' copies are dropped.
func (m *Manager) Revoke(ctx context.Context, actor domain.UserID, id domain.SessionID) (domain.SessionInfo, error) {
	return m.transition(ctx, actor, id, func(sess *domain.KDCSession, now time.Time) (string, map[string]string, error) {
		if sess.State.Terminal() {
			return "", nil, domain.ErrAlreadyTerminal
		}
		revoke(sess, now)
		return domain.EventRevoked, map[string]string{"fingerprint": sess.Fingerprint.String()}, nil
	}, func(sess domain.KDCSession, actor domain.UserID) {
		m.publish(ctx, sess, actor, domain.LifecycleRevoked)
		m.publishRevoked(ctx, sess, actor)
	})
}

// Destroy erases every copy of the key material of id.
func (m *Manager) Destroy(ctx context.Context, actor domain.UserID, id domain.SessionID) (domain.SessionInfo, error) {
	return m.transition(ctx, actor, id, func(sess *domain.KDCSession, now time.Time) (string, map[string]string, error) {
		if sess.State == domain.StateDestroyed {
			return "", nil, domain.ErrAlreadyTerminal
		}
		from := sess.State
		keymint.Erase(sess)
		sess.State = domain.StateDestroyed
		sess.DestroyedAt = &now
		return domain.EventDestroyed, map[string]string{"from": string(from)}, nil
	}, func(sess domain.KDCSession, actor domain.UserID) {
		m.publish(ctx, sess, actor, domain.LifecycleDestroyed)
	})
}

// KeyEvents reads the key event log.
func (m *Manager) KeyEvents(ctx context.Context, f domain.KeyEventFilter) ([]domain.KeyEvent, error) {
	return m.Audit.List(ctx, f)
}

// ExpireLocked revokes sess because its TTL passed. The caller holds the
// link lock.
func (m *Manager) ExpireLocked(ctx context.Context, sess domain.KDCSession) error {
	now := m.now().UTC()
	revoke(&sess, now)
	if err := m.commit(ctx, &sess, "", domain.EventExpired, map[string]string{
		"expiresAt": sess.ExpiresAt.Format(time.RFC3339Nano),
	}, now); err != nil {
		return err
	}
	m.publish(ctx, sess, "", domain.LifecycleExpired)
	return nil
}

// Sweep expires live sessions past their expiry and purges revoked
// material past retention. It returns how many sessions it changed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	now := m.now()
	n := 0

	live, err := m.Sessions.ListSessionsByState(ctx, domain.StateIssued, domain.StateRotated)
	if err != nil {
		return n, err
	}
	for _, sess := range live {
		if !sess.Expired(now) {
			continue
		}
		changed, err := m.underLock(ctx, sess, func(cur domain.KDCSession) (bool, error) {
			if !cur.State.Live() || !cur.Expired(now) {
				return false, nil
			}
			return true, m.ExpireLocked(ctx, cur)
		})
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}

	revoked, err := m.Sessions.ListSessionsByState(ctx, domain.StateRevoked)
	if err != nil {
		return n, err
	}
	for _, sess := range revoked {
		if !m.purgeDue(sess, now) {
			continue
		}
		changed, err := m.underLock(ctx, sess, func(cur domain.KDCSession) (bool, error) {
			if cur.State != domain.StateRevoked || !m.purgeDue(cur, now) {
				return false, nil
			}
			return true, m.purgeLocked(ctx, cur)
		})
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}
	if n > 0 {
		m.log.WithField("changed", n).Info("lifecycle sweep")
	}
	return n, nil
}

// Run calls Sweep every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
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
			if _, err := m.Sweep(ctx); err != nil {
				m.log.WithError(err).Error("lifecycle sweep failed")
			}
		}
	}
}

func (m *Manager) purgeDue(sess domain.KDCSession, now time.Time) bool {
	return len(sess.SealedMaterial) > 0 && sess.RevokedAt != nil && !now.Before(sess.RevokedAt.Add(m.retention))
}

func (m *Manager) purgeLocked(ctx context.Context, sess domain.KDCSession) error {
	verified, err := m.Minter.Verify(sess)
	if err != nil {
		m.log.WithError(err).WithField("session_id", sess.ID).Warn("revoked material failed to open before purge")
	}
	now := m.now().UTC()
	keymint.Erase(&sess)
	sess.PurgedAt = &now
	return m.commit(ctx, &sess, "", domain.EventMaterialPurged, map[string]string{
		"materialVerified": strconv.FormatBool(verified),
	}, now)
}

type mutation func(sess *domain.KDCSession, now time.Time) (eventType string, payload map[string]string, err error)

// transition runs one authorized, locked state change and its pushes.
func (m *Manager) transition(
	ctx context.Context,
	actor domain.UserID,
	id domain.SessionID,
	mutate mutation,
	notify func(domain.KDCSession, domain.UserID),
) (domain.SessionInfo, error) {
	sess, err := m.load(ctx, actor, id)
	if err != nil {
		return domain.SessionInfo{}, err
	}

	unlock := m.Locks.Lock(kdc.LinkLockKey(sess.LinkID))
	defer unlock()

	// Reload under the lock; another transition may have won the race.
	if sess, err = m.load(ctx, actor, id); err != nil {
		return domain.SessionInfo{}, err
	}
	now := m.now().UTC()
	eventType, payload, err := mutate(&sess, now)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	if err := m.commit(ctx, &sess, actor, eventType, payload, now); err != nil {
		return domain.SessionInfo{}, err
	}
	notify(sess, actor)
	return sess.Info(), nil
}

// commit persists sess and records its single key event.
func (m *Manager) commit(
	ctx context.Context,
	sess *domain.KDCSession,
	actor domain.UserID,
	eventType string,
	payload map[string]string,
	now time.Time,
) error {
	if err := m.Sessions.SaveSession(ctx, *sess); err != nil {
		return err
	}
	if _, err := m.Audit.Record(ctx, domain.KeyEvent{
		Source:    domain.SourceLifecycle,
		Type:      eventType,
		SessionID: sess.ID,
		ActorID:   actor,
		Payload:   payload,
		CreatedAt: now,
	}); err != nil {
		return err
	}
	m.metrics.Lifecycle(eventType)
	m.log.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"link_id":    sess.LinkID,
		"actor":      actor,
		"state":      sess.State,
		"event_type": eventType,
	}).Info("session transition")
	return nil
}

func (m *Manager) underLock(
	ctx context.Context,
	sess domain.KDCSession,
	fn func(domain.KDCSession) (bool, error),
) (bool, error) {
	unlock := m.Locks.Lock(kdc.LinkLockKey(sess.LinkID))
	defer unlock()
	cur, ok, err := m.Sessions.GetSession(ctx, sess.ID)
	if err != nil || !ok {
		return false, err
	}
	return fn(cur)
}

func (m *Manager) load(ctx context.Context, actor domain.UserID, id domain.SessionID) (domain.KDCSession, error) {
	sess, ok, err := m.Sessions.GetSession(ctx, id)
	if err != nil {
		return domain.KDCSession{}, err
	}
	if !ok {
		return domain.KDCSession{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	if !sess.Has(actor) {
		return domain.KDCSession{}, domain.ErrForbidden
	}
	return sess, nil
}

func (m *Manager) user(ctx context.Context, id domain.UserID) (domain.User, error) {
	u, ok, err := m.Users.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return u, nil
}

func revoke(sess *domain.KDCSession, now time.Time) {
	keymint.EraseCopies(sess)
	sess.State = domain.StateRevoked
	sess.RevokedAt = &now
}

func (m *Manager) publish(ctx context.Context, sess domain.KDCSession, actor domain.UserID, kind domain.LifecycleEventKind) {
	ev := domain.LifecycleEvent{
		Kind:        kind,
		SessionID:   sess.ID,
		LinkID:      sess.LinkID,
		InitiatorID: sess.InitiatorID,
		PeerID:      sess.PeerID,
		ActorID:     actor,
		State:       sess.State,
		ExpiresAt:   sess.ExpiresAt,
	}
	if sess.State.Live() {
		ev.Fingerprint = sess.Fingerprint
	}
	for _, u := range sess.Participants() {
		m.Publisher.Publish(ctx, u, ev)
	}
}

func (m *Manager) publishRevoked(ctx context.Context, sess domain.KDCSession, actor domain.UserID) {
	for _, u := range sess.Participants() {
		m.Publisher.Publish(ctx, u, domain.KDCEvent{
			Kind:        domain.KDCKeyRevoked,
			SessionID:   sess.ID,
			LinkID:      sess.LinkID,
			InitiatorID: sess.InitiatorID,
			PeerID:      sess.PeerID,
			ActorID:     actor,
			State:       sess.State,
			ExpiresAt:   sess.ExpiresAt,
		})
	}
}

// Compile-time assertions that Manager implements domain.LifecycleService
// and kdc.Expirer.
var (
	_ domain.LifecycleService = (*Manager)(nil)
	_ kdc.Expirer             = (*Manager)(nil)
)
