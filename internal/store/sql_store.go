package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"cipherlink/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	identity_key  TEXT NOT NULL,
	signing_key   TEXT NOT NULL,
	registered_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS contact_links (
	id         TEXT PRIMARY KEY,
	user_a     TEXT NOT NULL,
	user_b     TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (user_a, user_b)
);

CREATE TABLE IF NOT EXISTS kdc_sessions (
	id                TEXT PRIMARY KEY,
	link_id           TEXT NOT NULL,
	initiator_id      TEXT NOT NULL,
	peer_id           TEXT NOT NULL,
	sealed_material   BLOB,
	key_for_initiator TEXT,
	key_for_peer      TEXT,
	fingerprint       TEXT NOT NULL,
	generation        INTEGER NOT NULL,
	state             TEXT NOT NULL,
	issued_at         INTEGER NOT NULL,
	rotated_at        INTEGER,
	revoked_at        INTEGER,
	destroyed_at      INTEGER,
	purged_at         INTEGER,
	expires_at        INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_kdc_sessions_live
	ON kdc_sessions(link_id) WHERE state IN ('issued', 'rotated');
CREATE INDEX IF NOT EXISTS idx_kdc_sessions_state ON kdc_sessions(state);

CREATE TABLE IF NOT EXISTS pfs_sessions (
	id              TEXT PRIMARY KEY,
	link_id         TEXT,
	initiator_id    TEXT NOT NULL,
	peer_id         TEXT,
	server_key      TEXT NOT NULL,
	client_key      TEXT,
	fingerprint     TEXT,
	state           TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	established_at  INTEGER,
	expires_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pfs_sessions_state ON pfs_sessions(state);

CREATE TABLE IF NOT EXISTS key_events (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	session_id   TEXT,
	actor_id     TEXT,
	payload      TEXT,
	created_at   INTEGER NOT NULL,
	block_height INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_key_events_session ON key_events(session_id);
CREATE INDEX IF NOT EXISTS idx_key_events_created ON key_events(created_at);

CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	link_id          TEXT,
	sender_id        TEXT NOT NULL,
	ciphertext       BLOB NOT NULL,
	iv               BLOB NOT NULL,
	signature        BLOB,
	signer_key       BLOB,
	message_hash     TEXT NOT NULL,
	key_fingerprint  TEXT,
	signature_status TEXT NOT NULL,
	block_height     INTEGER NOT NULL,
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_link ON messages(link_id, created_at);

CREATE TABLE IF NOT EXISTS blocks (
	height        INTEGER PRIMARY KEY,
	hash          TEXT NOT NULL,
	previous_hash TEXT,
	message_hash  TEXT NOT NULL,
	nonce         INTEGER NOT NULL,
	difficulty    INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	payload       TEXT
);
`

// SQLConfig configures a SQLStore.
type SQLConfig struct {
	Path   string
	Logger logrus.FieldLogger
}

// SQLStore implements domain.Store on SQLite, one table per record type.
type SQLStore struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// OpenSQL opens the database at cfg.Path and creates the schema if needed.
func OpenSQL(cfg SQLConfig) (*SQLStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Path == "" {
		return nil, errors.New("sqlite: path required")
	}
	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, storageErr("open sqlite", err)
	}
	// SQLite has a single writer; one connection keeps writes ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, storageErr("create schema", err)
	}
	cfg.Logger.WithField("path", cfg.Path).Info("sqlite store opened")
	return &SQLStore{db: db, log: cfg.Logger}, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return storageErr("close sqlite", err)
	}
	return nil
}

func (s *SQLStore) SaveUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO users (id, identity_key, signing_key, registered_at) VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET identity_key = excluded.identity_key,
		signing_key = excluded.signing_key, registered_at = excluded.registered_at`,
		u.ID, textKey(u.IdentityKey), textKey(u.SigningKey), u.RegisteredAt.UnixNano())
	return s.wrap("save user", err)
}

func (s *SQLStore) GetUser(ctx context.Context, id domain.UserID) (domain.User, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, identity_key, signing_key, registered_at FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	return found(u, err, "get user")
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, identity_key, signing_key, registered_at FROM users ORDER BY id`)
	if err != nil {
		return nil, s.wrap("list users", err)
	}
	defer rows.Close()
	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, s.wrap("list users", err)
		}
		out = append(out, u)
	}
	return out, s.wrap("list users", rows.Err())
}

func (s *SQLStore) SaveLink(ctx context.Context, l domain.ContactLink) error {
	a, b := domain.OrderedPair(l.UserA, l.UserB)
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO contact_links (id, user_a, user_b, status, created_at) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
		l.ID, a, b, l.Status, l.CreatedAt.UnixNano())
	return s.wrap("save link", err)
}

func (s *SQLStore) GetLink(ctx context.Context, id domain.LinkID) (domain.ContactLink, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_a, user_b, status, created_at FROM contact_links WHERE id = ?`, id)
	l, err := scanLink(row)
	return found(l, err, "get link")
}

func (s *SQLStore) FindLink(ctx context.Context, a, b domain.UserID) (domain.ContactLink, bool, error) {
	a, b = domain.OrderedPair(a, b)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_a, user_b, status, created_at FROM contact_links WHERE user_a = ? AND user_b = ?`, a, b)
	l, err := scanLink(row)
	return found(l, err, "find link")
}

const sessionColumns = `id, link_id, initiator_id, peer_id, sealed_material, key_for_initiator,
	key_for_peer, fingerprint, generation, state, issued_at, rotated_at, revoked_at,
	destroyed_at, purged_at, expires_at`

func (s *SQLStore) SaveSession(ctx context.Context, sess domain.KDCSession) error {
	ki, err := json.Marshal(sess.KeyForInitiator)
	if err != nil {
		return storageErr("save session", err)
	}
	kp, err := json.Marshal(sess.KeyForPeer)
	if err != nil {
		return storageErr("save session", err)
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO kdc_sessions (`+sessionColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		sealed_material = excluded.sealed_material,
		key_for_initiator = excluded.key_for_initiator,
		key_for_peer = excluded.key_for_peer,
		fingerprint = excluded.fingerprint,
		generation = excluded.generation,
		state = excluded.state,
		rotated_at = excluded.rotated_at,
		revoked_at = excluded.revoked_at,
		destroyed_at = excluded.destroyed_at,
		purged_at = excluded.purged_at,
		expires_at = excluded.expires_at`,
		sess.ID, sess.LinkID, sess.InitiatorID, sess.PeerID, sess.SealedMaterial, string(ki), string(kp),
		sess.Fingerprint, sess.Generation, sess.State, sess.IssuedAt.UnixNano(),
		nullTime(sess.RotatedAt), nullTime(sess.RevokedAt), nullTime(sess.DestroyedAt),
		nullTime(sess.PurgedAt), sess.ExpiresAt.UnixNano())
	return s.wrap("save session", err)
}

func (s *SQLStore) GetSession(ctx context.Context, id domain.SessionID) (domain.KDCSession, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM kdc_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	return found(sess, err, "get session")
}

func (s *SQLStore) CurrentSession(ctx context.Context, link domain.LinkID) (domain.KDCSession, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM kdc_sessions
	WHERE link_id = ? AND state IN ('issued', 'rotated')`, link)
	sess, err := scanSession(row)
	return found(sess, err, "current session")
}

func (s *SQLStore) ListSessionsByState(
	ctx context.Context,
	states ...domain.LifecycleState,
) ([]domain.KDCSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM kdc_sessions`
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += ` WHERE state IN (?` + strings.Repeat(`, ?`, len(states)-1) + `)`
		for _, st := range states {
			args = append(args, st)
		}
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY issued_at`, args...)
	if err != nil {
		return nil, s.wrap("list sessions", err)
	}
	defer rows.Close()
	var out []domain.KDCSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, s.wrap("list sessions", err)
		}
		out = append(out, sess)
	}
	return out, s.wrap("list sessions", rows.Err())
}

const pfsColumns = `id, link_id, initiator_id, peer_id, server_key, client_key, fingerprint,
	state, created_at, established_at, expires_at`

func (s *SQLStore) SavePFSSession(ctx context.Context, p domain.PFSSession) error {
	var client string
	if !p.ClientEphemeralKey.IsZero() {
		client = textKey(p.ClientEphemeralKey)
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO pfs_sessions (`+pfsColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		client_key = excluded.client_key,
		fingerprint = excluded.fingerprint,
		state = excluded.state,
		established_at = excluded.established_at,
		expires_at = excluded.expires_at`,
		p.ID, p.LinkID, p.InitiatorID, p.PeerID, textKey(p.ServerEphemeralKey), client,
		p.DerivedFingerprint, p.State, p.CreatedAt.UnixNano(), nullTime(p.EstablishedAt),
		p.ExpiresAt.UnixNano())
	return s.wrap("save pfs session", err)
}

func (s *SQLStore) GetPFSSession(ctx context.Context, id domain.PFSSessionID) (domain.PFSSession, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pfsColumns+` FROM pfs_sessions WHERE id = ?`, id)
	p, err := scanPFS(row)
	return found(p, err, "get pfs session")
}

func (s *SQLStore) ListPFSSessionsByState(ctx context.Context, state domain.PFSState) ([]domain.PFSSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pfsColumns+` FROM pfs_sessions WHERE state = ? ORDER BY created_at`, state)
	if err != nil {
		return nil, s.wrap("list pfs sessions", err)
	}
	defer rows.Close()
	var out []domain.PFSSession
	for rows.Next() {
		p, err := scanPFS(rows)
		if err != nil {
			return nil, s.wrap("list pfs sessions", err)
		}
		out = append(out, p)
	}
	return out, s.wrap("list pfs sessions", rows.Err())
}

func (s *SQLStore) AppendEvent(ctx context.Context, ev domain.KeyEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return storageErr("append event", err)
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO key_events (id, source, event_type, session_id, actor_id, payload, created_at, block_height)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Source, ev.Type, ev.SessionID, ev.ActorID, string(payload),
		ev.CreatedAt.UnixNano(), ev.BlockHeight)
	return s.wrap("append event", err)
}

func (s *SQLStore) ListEvents(ctx context.Context, f domain.KeyEventFilter) ([]domain.KeyEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, source, event_type, session_id, actor_id, payload, created_at, block_height
	FROM key_events
	WHERE (? = '' OR session_id = ?) AND (? = '' OR source = ?)
	ORDER BY created_at DESC, rowid DESC
	LIMIT ? OFFSET ?`,
		f.SessionID, f.SessionID, f.Source, f.Source, limit, f.Offset)
	if err != nil {
		return nil, s.wrap("list events", err)
	}
	defer rows.Close()
	var out []domain.KeyEvent
	for rows.Next() {
		var (
			ev      domain.KeyEvent
			payload sql.NullString
			created int64
		)
		if err := rows.Scan(&ev.ID, &ev.Source, &ev.Type, &ev.SessionID, &ev.ActorID,
			&payload, &created, &ev.BlockHeight); err != nil {
			return nil, s.wrap("list events", err)
		}
		if payload.Valid && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &ev.Payload); err != nil {
				return nil, storageErr("list events", err)
			}
		}
		ev.CreatedAt = fromNanos(created)
		out = append(out, ev)
	}
	return out, s.wrap("list events", rows.Err())
}

const messageColumns = `id, link_id, sender_id, ciphertext, iv, signature, signer_key, message_hash,
	key_fingerprint, signature_status, block_height, created_at`

func (s *SQLStore) SaveMessage(ctx context.Context, m domain.Message) error {
	var link sql.NullString
	if m.LinkID != "" {
		link = sql.NullString{String: m.LinkID.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, link, m.SenderID, m.Ciphertext, m.IV, m.Signature, m.SignerKey, m.MessageHash,
		m.KeyFingerprint, m.SignatureStatus, m.BlockHeight, m.CreatedAt.UnixNano())
	return s.wrap("save message", err)
}

func (s *SQLStore) ListMessages(ctx context.Context, f domain.MessageFilter) ([]domain.Message, error) {
	where, args := "", []any{}
	switch {
	case f.LinkID != "":
		where, args = ` WHERE link_id = ?`, append(args, f.LinkID)
	case f.Broadcast:
		where = ` WHERE link_id IS NULL`
	}
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+messageColumns+` FROM (
		SELECT `+messageColumns+`, rowid AS seq FROM messages`+where+`
		ORDER BY created_at DESC, seq DESC LIMIT ?
	) ORDER BY created_at ASC, seq ASC`, args...)
	if err != nil {
		return nil, s.wrap("list messages", err)
	}
	defer rows.Close()
	var out []domain.Message
	for rows.Next() {
		var (
			m       domain.Message
			link    sql.NullString
			created int64
		)
		if err := rows.Scan(&m.ID, &link, &m.SenderID, &m.Ciphertext, &m.IV, &m.Signature,
			&m.SignerKey, &m.MessageHash, &m.KeyFingerprint, &m.SignatureStatus,
			&m.BlockHeight, &created); err != nil {
			return nil, s.wrap("list messages", err)
		}
		m.LinkID = domain.LinkID(link.String)
		m.CreatedAt = fromNanos(created)
		out = append(out, m)
	}
	return out, s.wrap("list messages", rows.Err())
}

func (s *SQLStore) AppendBlock(ctx context.Context, b domain.Block) error {
	var payload sql.NullString
	if b.Payload != nil {
		raw, err := json.Marshal(b.Payload)
		if err != nil {
			return storageErr("append block", err)
		}
		payload = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO blocks (height, hash, previous_hash, message_hash, nonce, difficulty, created_at, payload)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Height, b.Hash, b.PreviousHash, b.MessageHash, int64(b.Nonce), b.Difficulty,
		b.CreatedAt.UnixNano(), payload)
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return storageErr("append block", fmt.Errorf("%w at height %d", ErrDuplicateBlock, b.Height))
	}
	return s.wrap("append block", err)
}

const blockColumns = `height, hash, previous_hash, message_hash, nonce, difficulty, created_at, payload`

func (s *SQLStore) HeadBlock(ctx context.Context) (domain.Block, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM blocks ORDER BY height DESC LIMIT 1`)
	b, err := scanBlock(row)
	return found(b, err, "head block")
}

// ScanBlocks loads the range before calling fn so fn may use the store.
func (s *SQLStore) ScanBlocks(ctx context.Context, from, to int64, fn func(domain.Block) error) error {
	query, args := `SELECT `+blockColumns+` FROM blocks WHERE height >= ?`, []any{from}
	if to >= 0 {
		query, args = query+` AND height <= ?`, append(args, to)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY height ASC`, args...)
	if err != nil {
		return s.wrap("scan blocks", err)
	}
	var blocks []domain.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			_ = rows.Close()
			return s.wrap("scan blocks", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Close(); err != nil {
		return s.wrap("scan blocks", err)
	}
	if err := rows.Err(); err != nil {
		return s.wrap("scan blocks", err)
	}
	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	s.log.WithError(err).WithField("op", op).Error("sqlite operation failed")
	return storageErr(op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func found[T any](v T, err error, op string) (T, bool, error) {
	var zero T
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, storageErr(op, err)
	}
	return v, true, nil
}

func scanUser(r rowScanner) (domain.User, error) {
	var (
		u          domain.User
		ik, sk     string
		registered int64
	)
	if err := r.Scan(&u.ID, &ik, &sk, &registered); err != nil {
		return u, err
	}
	if err := u.IdentityKey.UnmarshalText([]byte(ik)); err != nil {
		return u, err
	}
	if err := u.SigningKey.UnmarshalText([]byte(sk)); err != nil {
		return u, err
	}
	u.RegisteredAt = fromNanos(registered)
	return u, nil
}

func scanLink(r rowScanner) (domain.ContactLink, error) {
	var (
		l       domain.ContactLink
		created int64
	)
	if err := r.Scan(&l.ID, &l.UserA, &l.UserB, &l.Status, &created); err != nil {
		return l, err
	}
	l.CreatedAt = fromNanos(created)
	return l, nil
}

func scanSession(r rowScanner) (domain.KDCSession, error) {
	var (
		s                                   domain.KDCSession
		ki, kp                              sql.NullString
		issued, expires                     int64
		rotated, revoked, destroyed, purged sql.NullInt64
	)
	if err := r.Scan(&s.ID, &s.LinkID, &s.InitiatorID, &s.PeerID, &s.SealedMaterial, &ki, &kp,
		&s.Fingerprint, &s.Generation, &s.State, &issued, &rotated, &revoked, &destroyed,
		&purged, &expires); err != nil {
		return s, err
	}
	if ki.Valid {
		if err := json.Unmarshal([]byte(ki.String), &s.KeyForInitiator); err != nil {
			return s, err
		}
	}
	if kp.Valid {
		if err := json.Unmarshal([]byte(kp.String), &s.KeyForPeer); err != nil {
			return s, err
		}
	}
	s.IssuedAt = fromNanos(issued)
	s.ExpiresAt = fromNanos(expires)
	s.RotatedAt = ptrTime(rotated)
	s.RevokedAt = ptrTime(revoked)
	s.DestroyedAt = ptrTime(destroyed)
	s.PurgedAt = ptrTime(purged)
	return s, nil
}

func scanPFS(r rowScanner) (domain.PFSSession, error) {
	var (
		p                  domain.PFSSession
		link, peer, client sql.NullString
		fp                 sql.NullString
		server             string
		created, expires   int64
		established        sql.NullInt64
	)
	if err := r.Scan(&p.ID, &link, &p.InitiatorID, &peer, &server, &client, &fp, &p.State,
		&created, &established, &expires); err != nil {
		return p, err
	}
	if err := p.ServerEphemeralKey.UnmarshalText([]byte(server)); err != nil {
		return p, err
	}
	if client.Valid && client.String != "" {
		if err := p.ClientEphemeralKey.UnmarshalText([]byte(client.String)); err != nil {
			return p, err
		}
	}
	p.LinkID = domain.LinkID(link.String)
	p.PeerID = domain.UserID(peer.String)
	p.DerivedFingerprint = domain.Fingerprint(fp.String)
	p.CreatedAt = fromNanos(created)
	p.ExpiresAt = fromNanos(expires)
	p.EstablishedAt = ptrTime(established)
	return p, nil
}

func scanBlock(r rowScanner) (domain.Block, error) {
	var (
		b       domain.Block
		prev    sql.NullString
		payload sql.NullString
		nonce   int64
		created int64
	)
	if err := r.Scan(&b.Height, &b.Hash, &prev, &b.MessageHash, &nonce, &b.Difficulty,
		&created, &payload); err != nil {
		return b, err
	}
	b.PreviousHash = prev.String
	b.Nonce = uint64(nonce)
	b.CreatedAt = fromNanos(created)
	if payload.Valid {
		b.Payload = &domain.BlockPayload{}
		if err := json.Unmarshal([]byte(payload.String), b.Payload); err != nil {
			return b, err
		}
	}
	return b, nil
}

func textKey(k interface{ MarshalText() ([]byte, error) }) string {
	b, _ := k.MarshalText()
	return string(b)
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func ptrTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromNanos(v.Int64)
	return &t
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// Compile-time assertion that SQLStore implements domain.Store.
var _ domain.Store = (*SQLStore)(nil)
