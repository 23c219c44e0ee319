package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"cipherlink/internal/domain"
)

// Key prefixes of the badger layout.
const (
	pfxUser     = "user/"
	pfxLink     = "link/"
	pfxLinkPair = "linkpair/"
	pfxSession  = "session/"
	pfxCurrent  = "current/"
	pfxPFS      = "pfs/"
	pfxEvent    = "event/"
	pfxMessage  = "msg/"
	pfxBlock    = "block/"

	broadcastChannel = "*"
)

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	Logger   logrus.FieldLogger
}

// BadgerStore implements domain.Store on an embedded badger database.
type BadgerStore struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// OpenBadger opens (or creates) the database described by cfg.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path required")
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storageErr("open badger", err)
	}
	cfg.Logger.WithField("path", cfg.Path).WithField("in_memory", cfg.InMemory).Info("badger store opened")
	return &BadgerStore{db: db, log: cfg.Logger}, nil
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return storageErr("close badger", err)
	}
	return nil
}

// ---- users & links ----

func (s *BadgerStore) SaveUser(_ context.Context, u domain.User) error {
	return s.update("save user", func(txn *badger.Txn) error {
		return setJSON(txn, pfxUser+u.ID.String(), u)
	})
}

func (s *BadgerStore) GetUser(_ context.Context, id domain.UserID) (domain.User, bool, error) {
	var u domain.User
	ok, err := s.get("get user", pfxUser+id.String(), &u)
	return u, ok, err
}

func (s *BadgerStore) ListUsers(_ context.Context) ([]domain.User, error) {
	var out []domain.User
	err := s.scan("list users", pfxUser, false, func(v []byte) (bool, error) {
		var u domain.User
		if err := json.Unmarshal(v, &u); err != nil {
			return false, err
		}
		out = append(out, u)
		return true, nil
	})
	return out, err
}

func (s *BadgerStore) SaveLink(_ context.Context, l domain.ContactLink) error {
	a, b := domain.OrderedPair(l.UserA, l.UserB)
	return s.update("save link", func(txn *badger.Txn) error {
		if err := setJSON(txn, pfxLink+l.ID.String(), l); err != nil {
			return err
		}
		return txn.Set([]byte(pairKey(a, b)), []byte(l.ID))
	})
}

func (s *BadgerStore) GetLink(_ context.Context, id domain.LinkID) (domain.ContactLink, bool, error) {
	var l domain.ContactLink
	ok, err := s.get("get link", pfxLink+id.String(), &l)
	return l, ok, err
}

func (s *BadgerStore) FindLink(ctx context.Context, a, b domain.UserID) (domain.ContactLink, bool, error) {
	a, b = domain.OrderedPair(a, b)
	var id []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(pairKey(a, b)))
		if err != nil {
			return err
		}
		id, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ContactLink{}, false, nil
	}
	if err != nil {
		return domain.ContactLink{}, false, storageErr("find link", err)
	}
	return s.GetLink(ctx, domain.LinkID(id))
}

func pairKey(a, b domain.UserID) string { return pfxLinkPair + a.String() + "|" + b.String() }

// ---- KDC sessions ----

// SaveSession writes s and keeps the per-link current pointer in step with
// its state: live sessions own the pointer, terminal ones release it.
func (s *BadgerStore) SaveSession(_ context.Context, sess domain.KDCSession) error {
	cur := []byte(pfxCurrent + sess.LinkID.String())
	return s.update("save session", func(txn *badger.Txn) error {
		if err := setJSON(txn, pfxSession+sess.ID.String(), sess); err != nil {
			return err
		}
		if sess.State.Live() {
			return txn.Set(cur, []byte(sess.ID))
		}
		item, err := txn.Get(cur)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		held, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(held) == sess.ID.String() {
			return txn.Delete(cur)
		}
		return nil
	})
}

func (s *BadgerStore) GetSession(_ context.Context, id domain.SessionID) (domain.KDCSession, bool, error) {
	var sess domain.KDCSession
	ok, err := s.get("get session", pfxSession+id.String(), &sess)
	return sess, ok, err
}

func (s *BadgerStore) CurrentSession(ctx context.Context, link domain.LinkID) (domain.KDCSession, bool, error) {
	var id []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(pfxCurrent + link.String()))
		if err != nil {
			return err
		}
		id, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.KDCSession{}, false, nil
	}
	if err != nil {
		return domain.KDCSession{}, false, storageErr("current session", err)
	}
	return s.GetSession(ctx, domain.SessionID(id))
}

func (s *BadgerStore) ListSessionsByState(
	_ context.Context,
	states ...domain.LifecycleState,
) ([]domain.KDCSession, error) {
	var out []domain.KDCSession
	err := s.scan("list sessions", pfxSession, false, func(v []byte) (bool, error) {
		var sess domain.KDCSession
		if err := json.Unmarshal(v, &sess); err != nil {
			return false, err
		}
		if hasState(states, sess.State) {
			out = append(out, sess)
		}
		return true, nil
	})
	return out, err
}

// ---- PFS ----

func (s *BadgerStore) SavePFSSession(_ context.Context, p domain.PFSSession) error {
	return s.update("save pfs session", func(txn *badger.Txn) error {
		return setJSON(txn, pfxPFS+p.ID.String(), p)
	})
}

func (s *BadgerStore) GetPFSSession(_ context.Context, id domain.PFSSessionID) (domain.PFSSession, bool, error) {
	var p domain.PFSSession
	ok, err := s.get("get pfs session", pfxPFS+id.String(), &p)
	return p, ok, err
}

func (s *BadgerStore) ListPFSSessionsByState(_ context.Context, state domain.PFSState) ([]domain.PFSSession, error) {
	var out []domain.PFSSession
	err := s.scan("list pfs sessions", pfxPFS, false, func(v []byte) (bool, error) {
		var p domain.PFSSession
		if err := json.Unmarshal(v, &p); err != nil {
			return false, err
		}
		if p.State == state {
			out = append(out, p)
		}
		return true, nil
	})
	return out, err
}

// ---- key events ----

func (s *BadgerStore) AppendEvent(_ context.Context, ev domain.KeyEvent) error {
	key := fmt.Sprintf("%s%020d/%s", pfxEvent, ev.CreatedAt.UnixNano(), ev.ID)
	return s.update("append event", func(txn *badger.Txn) error {
		return setJSON(txn, key, ev)
	})
}

func (s *BadgerStore) ListEvents(_ context.Context, f domain.KeyEventFilter) ([]domain.KeyEvent, error) {
	var (
		out     []domain.KeyEvent
		skipped int
	)
	err := s.scan("list events", pfxEvent, true, func(v []byte) (bool, error) {
		var ev domain.KeyEvent
		if err := json.Unmarshal(v, &ev); err != nil {
			return false, err
		}
		if !f.Match(ev) {
			return true, nil
		}
		if skipped < f.Offset {
			skipped++
			return true, nil
		}
		out = append(out, ev)
		return f.Limit <= 0 || len(out) < f.Limit, nil
	})
	return out, err
}

// ---- messages ----

func (s *BadgerStore) SaveMessage(_ context.Context, m domain.Message) error {
	key := fmt.Sprintf("%s%s/%020d/%s", pfxMessage, channel(m.LinkID), m.CreatedAt.UnixNano(), m.ID)
	return s.update("save message", func(txn *badger.Txn) error {
		return setJSON(txn, key, m)
	})
}

func (s *BadgerStore) ListMessages(_ context.Context, f domain.MessageFilter) ([]domain.Message, error) {
	prefix := pfxMessage
	switch {
	case f.LinkID != "":
		prefix += channel(f.LinkID) + "/"
	case f.Broadcast:
		prefix += broadcastChannel + "/"
	}
	var out []domain.Message
	err := s.scan("list messages", prefix, false, func(v []byte) (bool, error) {
		var m domain.Message
		if err := json.Unmarshal(v, &m); err != nil {
			return false, err
		}
		out = append(out, m)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

func channel(id domain.LinkID) string {
	if id == "" {
		return broadcastChannel
	}
	return id.String()
}

// ---- blocks ----

func (s *BadgerStore) AppendBlock(_ context.Context, b domain.Block) error {
	key := []byte(blockKey(b.Height))
	return s.update("append block", func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w at height %d", ErrDuplicateBlock, b.Height)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, string(key), b)
	})
}

func (s *BadgerStore) HeadBlock(_ context.Context) (domain.Block, bool, error) {
	var (
		head  domain.Block
		found bool
	)
	err := s.scan("head block", pfxBlock, true, func(v []byte) (bool, error) {
		found = true
		return false, json.Unmarshal(v, &head)
	})
	return head, found, err
}

func (s *BadgerStore) ScanBlocks(ctx context.Context, from, to int64, fn func(domain.Block) error) error {
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(pfxBlock)
		for it.Seek([]byte(blockKey(from))); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var b domain.Block
			if err := json.Unmarshal(v, &b); err != nil {
				return err
			}
			if to >= 0 && b.Height > to {
				return nil
			}
			if err := fn(b); err != nil {
				return errCallback{err}
			}
		}
		return nil
	})
	var cb errCallback
	if errors.As(err, &cb) {
		return cb.err
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return storageErr("scan blocks", err)
	}
	return err
}

func blockKey(h int64) string { return fmt.Sprintf("%s%020d", pfxBlock, h) }

// ---- helpers ----

func (s *BadgerStore) update(op string, fn func(txn *badger.Txn) error) error {
	if err := s.db.Update(fn); err != nil {
		if !errors.Is(err, ErrDuplicateBlock) {
			s.log.WithError(err).WithField("op", op).Error("badger write failed")
		}
		return storageErr(op, err)
	}
	return nil
}

func (s *BadgerStore) get(op, key string, out any) (bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageErr(op, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, storageErr(op, err)
	}
	return true, nil
}

// scan visits every value under prefix; fn returns false to stop.
func (s *BadgerStore) scan(op, prefix string, reverse bool, fn func(v []byte) (bool, error)) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := []byte(prefix)
		if reverse {
			seek = append(seek, 0xff)
		}
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			more, err := fn(v)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return storageErr(op, err)
	}
	return nil
}

func setJSON(txn *badger.Txn, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), b)
}

type errCallback struct{ err error }

func (e errCallback) Error() string { return e.err.Error() }

// Compile-time assertion that BadgerStore implements domain.Store.
var _ domain.Store = (*BadgerStore)(nil)
