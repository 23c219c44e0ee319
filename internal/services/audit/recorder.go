package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

const (
	// DefaultLimit is the page size when a listing asks for none.
	DefaultLimit = 100
	// MaxLimit caps any listing.
	MaxLimit = 500
)

// Config configures a Recorder.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	Clock        domain.Clock
	Logger       logrus.FieldLogger
}

// Recorder appends key events to the event store and the ledger.
type Recorder struct {
	events   domain.EventStore
	ledger   domain.Ledger
	defLimit int
	maxLimit int
	now      domain.Clock
	log      logrus.FieldLogger
}

// New returns a Recorder.
func New(events domain.EventStore, ledger domain.Ledger, cfg Config) *Recorder {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Recorder{
		events:   events,
		ledger:   ledger,
		defLimit: cfg.DefaultLimit,
		maxLimit: cfg.MaxLimit,
		now:      cfg.Clock,
		log:      cfg.Logger,
	}
}

// Record stores ev and returns it with id, timestamp and block height set.
//
// Steps:
//  1. Assign an id and timestamp when missing.
//  2. Append a ledger block whose message hash is Digest(ev).
//  3. Write the event with the block height to the event log.
func (r *Recorder) Record(ctx context.Context, ev domain.KeyEvent) (domain.KeyEvent, error) {
	if !ev.Source.Valid() {
		return domain.KeyEvent{}, fmt.Errorf("audit: unknown source %q", ev.Source)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now().UTC()
	}

	digest, err := Digest(ev)
	if err != nil {
		return domain.KeyEvent{}, err
	}
	block, err := r.ledger.Append(ctx, digest, &domain.BlockPayload{
		SenderID: ev.ActorID,
		Meta: map[string]string{
			"eventId":      ev.ID,
			"source":       string(ev.Source),
			"eventType":    ev.Type,
			"kdcSessionId": ev.SessionID.String(),
		},
	})
	if err != nil {
		return domain.KeyEvent{}, err
	}
	ev.BlockHeight = block.Height

	if err := r.events.AppendEvent(ctx, ev); err != nil {
		return domain.KeyEvent{}, err
	}
	r.log.WithFields(logrus.Fields{
		"event_id":   ev.ID,
		"source":     ev.Source,
		"event_type": ev.Type,
		"session_id": ev.SessionID,
		"height":     block.Height,
	}).Info("key event recorded")
	return ev, nil
}

// List returns events newest first. The limit defaults to DefaultLimit
// and is capped at MaxLimit.
func (r *Recorder) List(ctx context.Context, f domain.KeyEventFilter) ([]domain.KeyEvent, error) {
	if f.Limit <= 0 {
		f.Limit = r.defLimit
	}
	if f.Limit > r.maxLimit {
		f.Limit = r.maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	evs, err := r.events.ListEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	if evs == nil {
		evs = []domain.KeyEvent{}
	}
	return evs, nil
}

// Digest returns the ledger message hash of ev: the SHA-256 of its JSON
// with BlockHeight cleared.
func Digest(ev domain.KeyEvent) (string, error) {
	ev.BlockHeight = 0
	ev.CreatedAt = ev.CreatedAt.UTC()
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return crypto.Digest(raw), nil
}

// Compile-time assertion that Recorder implements domain.AuditRecorder.
var _ domain.AuditRecorder = (*Recorder)(nil)
