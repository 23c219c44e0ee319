// Package servicetest wires the server-side services over an in-memory
// store for tests.
package servicetest

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/ledger"
	"cipherlink/internal/ratelimit"
	"cipherlink/internal/services/audit"
	"cipherlink/internal/services/directory"
	"cipherlink/internal/services/identity"
	"cipherlink/internal/services/kdc"
	"cipherlink/internal/services/keymint"
	"cipherlink/internal/services/lifecycle"
	"cipherlink/internal/services/message"
	"cipherlink/internal/services/pfs"
	"cipherlink/internal/store"
	"cipherlink/internal/util/keylock"
)

// Base is the fixed start time of every Env clock.
var Base = time.Unix(1_700_000_000, 0).UTC()

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Published is one event handed to the Recorder. To is empty for broadcasts.
type Published struct {
	To    domain.UserID
	Event domain.Event
}

// Recorder is a domain.Publisher that keeps everything it is given.
type Recorder struct {
	mu   sync.Mutex
	all  []Published
	next domain.Publisher
}

// Tee forwards every later push to p as well.
func (r *Recorder) Tee(p domain.Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = p
}

// Publish implements domain.Publisher.
func (r *Recorder) Publish(ctx context.Context, to domain.UserID, ev domain.Event) {
	r.mu.Lock()
	r.all = append(r.all, Published{To: to, Event: ev})
	next := r.next
	r.mu.Unlock()
	if next != nil {
		next.Publish(ctx, to, ev)
	}
}

// Broadcast implements domain.Publisher.
func (r *Recorder) Broadcast(ctx context.Context, ev domain.Event) {
	r.mu.Lock()
	r.all = append(r.all, Published{Event: ev})
	next := r.next
	r.mu.Unlock()
	if next != nil {
		next.Broadcast(ctx, ev)
	}
}

// For returns the events pushed to u, in order.
func (r *Recorder) For(u domain.UserID) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, p := range r.all {
		if p.To == u {
			out = append(out, p.Event)
		}
	}
	return out
}

// Names returns the wire names of the events pushed to u.
func (r *Recorder) Names(u domain.UserID) []string {
	var out []string
	for _, ev := range r.For(u) {
		out = append(out, ev.Name())
	}
	return out
}

// All returns every recorded push.
func (r *Recorder) All() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.all...)
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = nil
}

// Options change how New wires the services.
type Options struct {
	// RateLimit is the per-user budget per minute for KDC and PFS. Zero
	// disables limiting.
	RateLimit int
	// SQLite selects the sqlite backend in a temp dir instead of badger.
	SQLite bool
}

// Env is a fully wired server without the HTTP layer.
type Env struct {
	Ctx       context.Context
	Clock     *Clock
	Logger    *logrus.Logger
	Store     domain.Store
	Vault     *store.Vault
	Ledger    *ledger.Chain
	Audit     *audit.Recorder
	Directory *directory.Service
	Minter    *keymint.Minter
	Locks     *keylock.Map
	KDC       *kdc.Service
	Lifecycle *lifecycle.Manager
	PFS       *pfs.Service
	Relay     *message.Relay
	Events    *Recorder
}

// New returns an Env. Resources are released with t.Cleanup.
func New(t testing.TB, opts ...Options) *Env {
	t.Helper()
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	clock := &Clock{now: Base}

	var (
		st  domain.Store
		err error
	)
	if o.SQLite {
		st, err = store.Open(store.DriverSQLite, t.TempDir(), log)
	} else {
		st, err = store.Open(store.DriverMemory, "", log)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	vault, err := store.NewVault(store.VaultConfig{
		Passphrase: "test-vault-passphrase",
		Salt:       "test-salt",
		ScryptN:    1 << 10,
	})
	require.NoError(t, err)
	t.Cleanup(vault.Close)

	var limiter *ratelimit.Limiter
	if o.RateLimit > 0 {
		limiter = ratelimit.New(o.RateLimit, time.Minute).WithClock(clock.Now)
	}

	env := &Env{
		Ctx:    context.Background(),
		Clock:  clock,
		Logger: log,
		Store:  st,
		Vault:  vault,
		Locks:  keylock.New(),
		Events: &Recorder{},
	}
	env.Ledger = ledger.New(st, ledger.Config{Difficulty: 8, Clock: clock.Now, Logger: log})
	env.Audit = audit.New(st, env.Ledger, audit.Config{Clock: clock.Now, Logger: log})
	env.Directory = directory.New(st, st, clock.Now, log)
	env.Minter = keymint.New(vault)
	env.KDC = kdc.New(kdc.Deps{
		Users:     st,
		Sessions:  st,
		Directory: env.Directory,
		Minter:    env.Minter,
		Audit:     env.Audit,
		Publisher: env.Events,
		Locks:     env.Locks,
		Broadcast: vault,
	}, kdc.Config{Limiter: limiter, Clock: clock.Now, Logger: log})
	env.Lifecycle = lifecycle.New(lifecycle.Deps{
		Users:     st,
		Sessions:  st,
		Minter:    env.Minter,
		Audit:     env.Audit,
		Publisher: env.Events,
		Locks:     env.Locks,
	}, lifecycle.Config{Clock: clock.Now, Logger: log})
	env.KDC.SetExpirer(env.Lifecycle)
	env.PFS = pfs.New(st, env.Directory, env.Audit, env.Events, pfs.Config{
		Limiter: limiter,
		Clock:   clock.Now,
		Logger:  log,
	})
	env.Relay = message.NewRelay(message.RelayDeps{
		Users:     st,
		Links:     st,
		Sessions:  st,
		Messages:  st,
		Ledger:    env.Ledger,
		Publisher: env.Events,
	}, message.RelayConfig{Clock: clock.Now, Logger: log})
	return env
}

// User is a registered test user with its private keys.
type User struct {
	ID       domain.UserID
	Identity domain.Identity
}

// Record returns the public record of u.
func (u User) Record() domain.User {
	return domain.User{ID: u.ID, IdentityKey: u.Identity.XPub, SigningKey: u.Identity.EdPub}
}

// Register creates keys for id and registers them.
func (e *Env) Register(t testing.TB, id domain.UserID) User {
	t.Helper()
	xpriv, xpub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	edpriv, edpub, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	u := User{ID: id, Identity: domain.Identity{XPub: xpub, XPriv: xpriv, EdPub: edpub, EdPriv: edpriv}}
	_, err = e.Directory.Register(e.Ctx, u.Registration(e.Clock.Now()))
	require.NoError(t, err)
	return u
}

// Registration returns a registration request for u signed at at.
func (u User) Registration(at time.Time) domain.RegisterRequest {
	return identity.RegistrationRequest(u.ID, u.Identity, at)
}

// Linked registers a and b and links them.
func (e *Env) Linked(t testing.TB, a, b domain.UserID) (User, User, domain.ContactLink) {
	t.Helper()
	ua, ub := e.Register(t, a), e.Register(t, b)
	l, err := e.Directory.Link(e.Ctx, a, b)
	require.NoError(t, err)
	return ua, ub, l
}

// OpenKey opens the copy of an issued session addressed to u.
func OpenKey(t testing.TB, u User, sk domain.SealedKey) []byte {
	t.Helper()
	key, err := crypto.OpenSealed(u.Identity.XPriv, sk)
	require.NoError(t, err)
	return key
}
