package message

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cipherlink/internal/domain"
	"cipherlink/internal/metrics"
)

const (
	// DefaultHistoryLimit is the history page size when none is asked for.
	DefaultHistoryLimit = 100
	// MaxHistoryLimit caps a history page.
	MaxHistoryLimit = 500
)

// RelayDeps are the collaborators of the server-side relay.
type RelayDeps struct {
	Users     domain.UserStore
	Links     domain.LinkStore
	Sessions  domain.SessionStore
	Messages  domain.MessageStore
	Ledger    domain.Ledger
	Publisher domain.Publisher
}

// RelayConfig tunes the relay.
type RelayConfig struct {
	Clock   domain.Clock
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Relay implements domain.MessageRelay.
type Relay struct {
	RelayDeps
	now     domain.Clock
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// NewRelay returns the server-side relay.
func NewRelay(deps RelayDeps, cfg RelayConfig) *Relay {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Relay{RelayDeps: deps, now: cfg.Clock, log: cfg.Logger, metrics: cfg.Metrics}
}

// Submit accepts msg from sender.
//
// Steps:
//  1. Require ciphertext and iv.
//  2. For a link message, require the sender to be on an accepted link
//     and the message to be sealed under the link's live session key.
//  3. Verify the signature against the sender's registered key. A bad
//     signature is recorded, not refused.
//  4. Anchor the message hash in the ledger, store, push.
func (r *Relay) Submit(ctx context.Context, sender domain.UserID, msg domain.OutboundMessage) (domain.Message, error) {
	if len(msg.Ciphertext) == 0 || len(msg.IV) == 0 {
		return domain.Message{}, fmt.Errorf("%w: ciphertext and iv are required", domain.ErrInvalidInput)
	}
	u, ok, err := r.Users.GetUser(ctx, sender)
	if err != nil {
		return domain.Message{}, err
	}
	if !ok {
		return domain.Message{}, fmt.Errorf("user %s: %w", sender, domain.ErrNotFound)
	}

	var (
		link     domain.ContactLink
		receiver domain.UserID
	)
	if msg.LinkID != "" {
		if link, err = r.link(ctx, sender, msg.LinkID); err != nil {
			return domain.Message{}, err
		}
		receiver = link.Peer(sender)
		if err := r.liveKey(ctx, link.ID, msg.KeyFingerprint); err != nil {
			r.log.WithError(err).WithField("link_id", link.ID).WithField("actor", sender).Warn("message refused")
			return domain.Message{}, err
		}
	}

	status := Verify(msg.Signature, signedBytes(msg.Ciphertext, msg.IV), u.SigningKey[:])
	m := domain.Message{
		ID:              uuid.NewString(),
		LinkID:          msg.LinkID,
		SenderID:        sender,
		Ciphertext:      msg.Ciphertext,
		IV:              msg.IV,
		Signature:       msg.Signature,
		SignerKey:       msg.SignerKey,
		MessageHash:     ComputeMessageHash(msg.Ciphertext, msg.IV),
		KeyFingerprint:  msg.KeyFingerprint,
		SignatureStatus: status,
		CreatedAt:       r.now().UTC(),
	}

	block, err := r.Ledger.Append(ctx, m.MessageHash, &domain.BlockPayload{
		SenderID:   sender,
		ReceiverID: receiver,
		Meta: map[string]string{
			"messageId":     m.ID,
			"contactLinkId": m.LinkID.String(),
		},
	})
	if err != nil {
		return domain.Message{}, err
	}
	m.BlockHeight = block.Height
	if err := r.Messages.SaveMessage(ctx, m); err != nil {
		return domain.Message{}, err
	}

	r.metrics.Message(string(status))
	log := r.log.WithFields(logrus.Fields{
		"message_id": m.ID,
		"link_id":    m.LinkID,
		"actor":      sender,
		"signature":  status,
		"height":     block.Height,
	})
	if status == domain.SignatureInvalid {
		log.Warn("message relayed with invalid signature")
	} else {
		log.Info("message relayed")
	}

	ev := domain.MessageEvent{Message: m}
	if m.Broadcast() {
		r.Publisher.Broadcast(ctx, ev)
	} else {
		for _, to := range link.Participants() {
			r.Publisher.Publish(ctx, to, ev)
		}
	}
	return m, nil
}

// History returns the caller's messages with peer, oldest first. An empty
// peer selects the broadcast channel.
func (r *Relay) History(ctx context.Context, caller, peer domain.UserID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	f := domain.MessageFilter{Broadcast: true, Limit: limit}
	if peer != "" {
		l, ok, err := r.Links.FindLink(ctx, caller, peer)
		if err != nil {
			return nil, err
		}
		if !ok || !l.Accepted() {
			return nil, domain.ErrNotLinked
		}
		f = domain.MessageFilter{LinkID: l.ID, Limit: limit}
	}
	msgs, err := r.Messages.ListMessages(ctx, f)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

func (r *Relay) link(ctx context.Context, sender domain.UserID, id domain.LinkID) (domain.ContactLink, error) {
	l, ok, err := r.Links.GetLink(ctx, id)
	if err != nil {
		return domain.ContactLink{}, err
	}
	if !ok {
		return domain.ContactLink{}, fmt.Errorf("link %s: %w", id, domain.ErrNotFound)
	}
	if !l.Has(sender) {
		return domain.ContactLink{}, domain.ErrForbidden
	}
	if !l.Accepted() {
		return domain.ContactLink{}, domain.ErrNotLinked
	}
	return l, nil
}

// liveKey fails with ErrStaleKey unless fp names the live, unexpired
// session of link.
func (r *Relay) liveKey(ctx context.Context, link domain.LinkID, fp domain.Fingerprint) error {
	sess, ok, err := r.Sessions.CurrentSession(ctx, link)
	if err != nil {
		return err
	}
	switch {
	case !ok || !sess.State.Live() || sess.Expired(r.now()):
		return fmt.Errorf("%w: link %s has no live session", domain.ErrStaleKey, link)
	case fp != sess.Fingerprint:
		return fmt.Errorf("%w: sent under %s", domain.ErrStaleKey, fp)
	}
	return nil
}

// Compile-time assertion that Relay implements domain.MessageRelay.
var _ domain.MessageRelay = (*Relay)(nil)
