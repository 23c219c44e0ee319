// Package directory keeps the user directory and contact links the key
// services depend on.
package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/util/keylock"
)

// ProofWindow is how far a registration proof's IssuedAt may sit from the
// server clock in either direction.
const ProofWindow = 5 * time.Minute

// Service registers users and links contacts.
type Service struct {
	users domain.UserStore
	links domain.LinkStore
	locks *keylock.Map
	now   domain.Clock
	log   logrus.FieldLogger

	mu   sync.Mutex
	seen map[string]time.Time // proof digest -> when it leaves the window
}

// New returns a directory over the given stores.
func New(users domain.UserStore, links domain.LinkStore, clock domain.Clock, log logrus.FieldLogger) *Service {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		users: users,
		links: links,
		locks: keylock.New(),
		now:   clock,
		log:   log,
		seen:  make(map[string]time.Time),
	}
}

// Register stores the public keys named by req and returns the record.
//
// Steps:
//  1. Check the keys are present and the proof is a fresh, unused
//     signature by req.SigningKey.
//  2. Under the per-user lock, return the existing record when the id is
//     already bound to the same keys; refuse with ErrUserExists when it is
//     bound to other keys.
//  3. Otherwise store the new record.
//
// A caller that gets a record back has shown it holds the signing key, so
// the HTTP layer may issue it a token.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (domain.User, error) {
	if req.UserID == "" {
		return domain.User{}, fmt.Errorf("%w: user id required", domain.ErrInvalidInput)
	}
	if req.IdentityKey.IsZero() || req.SigningKey.IsZero() {
		return domain.User{}, domain.ErrInvalidKey
	}
	now := s.now().UTC()
	if err := s.checkProof(req, now); err != nil {
		s.log.WithField("user", req.UserID).WithError(err).Warn("registration refused")
		return domain.User{}, err
	}

	unlock := s.locks.Lock("user:" + req.UserID.String())
	defer unlock()

	existing, ok, err := s.users.GetUser(ctx, req.UserID)
	if err != nil {
		return domain.User{}, err
	}
	if ok {
		if existing.IdentityKey != req.IdentityKey || existing.SigningKey != req.SigningKey {
			return domain.User{}, fmt.Errorf("%w: %s", domain.ErrUserExists, req.UserID)
		}
		s.log.WithField("user", req.UserID).Info("user re-authenticated")
		return existing, nil
	}
	u := req.User()
	u.RegisteredAt = now
	if err := s.users.SaveUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	s.log.WithField("user", u.ID).Info("user registered")
	return u, nil
}

// checkProof verifies the signature, its freshness, and that it has not
// been presented before. Accepted proofs are remembered until they would
// fall out of the window anyway.
func (s *Service) checkProof(req domain.RegisterRequest, now time.Time) error {
	if len(req.Proof) == 0 {
		return fmt.Errorf("%w: missing", domain.ErrProofRejected)
	}
	if skew := now.Sub(req.IssuedAt); skew > ProofWindow || skew < -ProofWindow {
		return fmt.Errorf("%w: issued at %s, outside the %s window",
			domain.ErrProofRejected, req.IssuedAt.UTC().Format(time.RFC3339), ProofWindow)
	}
	if !crypto.VerifyEd25519(req.SigningKey, req.ProofMessage(), req.Proof) {
		return fmt.Errorf("%w: signature does not verify against the signing key", domain.ErrProofRejected)
	}

	digest := crypto.Digest(req.Proof)
	s.mu.Lock()
	defer s.mu.Unlock()
	for d, until := range s.seen {
		if now.After(until) {
			delete(s.seen, d)
		}
	}
	if _, dup := s.seen[digest]; dup {
		return fmt.Errorf("%w: already used", domain.ErrProofRejected)
	}
	s.seen[digest] = req.IssuedAt.Add(ProofWindow)
	return nil
}

// Lookup returns the public record of id.
func (s *Service) Lookup(ctx context.Context, id domain.UserID) (domain.User, error) {
	u, ok, err := s.users.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return u, nil
}

// Link creates an accepted link between a and b, or returns the existing
// one. A blocked link stays blocked.
func (s *Service) Link(ctx context.Context, a, b domain.UserID) (domain.ContactLink, error) {
	if a == b {
		return domain.ContactLink{}, domain.ErrSelfSession
	}
	for _, id := range []domain.UserID{a, b} {
		if _, err := s.Lookup(ctx, id); err != nil {
			return domain.ContactLink{}, err
		}
	}
	ua, ub := domain.OrderedPair(a, b)

	unlock := s.locks.Lock("pair:" + ua.String() + "|" + ub.String())
	defer unlock()

	l, ok, err := s.links.FindLink(ctx, ua, ub)
	if err != nil {
		return domain.ContactLink{}, err
	}
	if ok {
		if l.Status == domain.LinkPending {
			l.Status = domain.LinkAccepted
			if err := s.links.SaveLink(ctx, l); err != nil {
				return domain.ContactLink{}, err
			}
		}
		return l, nil
	}
	l = domain.ContactLink{
		ID:        domain.LinkID(uuid.NewString()),
		UserA:     ua,
		UserB:     ub,
		Status:    domain.LinkAccepted,
		CreatedAt: s.now().UTC(),
	}
	if err := s.links.SaveLink(ctx, l); err != nil {
		return domain.ContactLink{}, err
	}
	s.log.WithFields(logrus.Fields{"link_id": l.ID, "user_a": ua, "user_b": ub}).Info("contacts linked")
	return l, nil
}

// AcceptedLink returns the accepted link between a and b or ErrNotLinked.
func (s *Service) AcceptedLink(ctx context.Context, a, b domain.UserID) (domain.ContactLink, error) {
	l, ok, err := s.links.FindLink(ctx, a, b)
	if err != nil {
		return domain.ContactLink{}, err
	}
	if !ok || !l.Accepted() {
		return domain.ContactLink{}, domain.ErrNotLinked
	}
	return l, nil
}

// Compile-time assertion that Service implements domain.DirectoryService.
var _ domain.DirectoryService = (*Service)(nil)
