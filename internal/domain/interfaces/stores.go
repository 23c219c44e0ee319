package interfaces

import (
	"context"
	"time"

	domaintypes "cipherlink/internal/domain/types"
)

// IdentityStore persists your long-term identity keys on the client.
type IdentityStore interface {
	SaveIdentity(passphrase string, id domaintypes.Identity) error
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
}

// ProfileStore persists per-server registration profiles on the client.
type ProfileStore interface {
	SaveProfile(p domaintypes.Profile) error
	LoadProfile(serverURL string) (domaintypes.Profile, bool, error)
}

// UserStore keeps the public records of registered users.
type UserStore interface {
	SaveUser(ctx context.Context, u domaintypes.User) error
	GetUser(ctx context.Context, id domaintypes.UserID) (domaintypes.User, bool, error)
	ListUsers(ctx context.Context) ([]domaintypes.User, error)
}

// LinkStore keeps ContactLinks. Links are looked up by their unordered pair.
type LinkStore interface {
	SaveLink(ctx context.Context, l domaintypes.ContactLink) error
	GetLink(ctx context.Context, id domaintypes.LinkID) (domaintypes.ContactLink, bool, error)
	FindLink(ctx context.Context, a, b domaintypes.UserID) (domaintypes.ContactLink, bool, error)
}

// SessionStore keeps KDC sessions.
type SessionStore interface {
	// SaveSession inserts or replaces the session with the same id.
	SaveSession(ctx context.Context, s domaintypes.KDCSession) error
	GetSession(ctx context.Context, id domaintypes.SessionID) (domaintypes.KDCSession, bool, error)
	// CurrentSession returns the live (issued or rotated) session of a link.
	CurrentSession(ctx context.Context, link domaintypes.LinkID) (domaintypes.KDCSession, bool, error)
	ListSessionsByState(
		ctx context.Context,
		states ...domaintypes.LifecycleState,
	) ([]domaintypes.KDCSession, error)
}

// PFSStore keeps handshake records. It never sees private keys.
type PFSStore interface {
	SavePFSSession(ctx context.Context, s domaintypes.PFSSession) error
	GetPFSSession(ctx context.Context, id domaintypes.PFSSessionID) (domaintypes.PFSSession, bool, error)
	ListPFSSessionsByState(ctx context.Context, state domaintypes.PFSState) ([]domaintypes.PFSSession, error)
}

// EventStore is the append-only key event log.
type EventStore interface {
	AppendEvent(ctx context.Context, ev domaintypes.KeyEvent) error
	// ListEvents returns matching events newest first.
	ListEvents(ctx context.Context, f domaintypes.KeyEventFilter) ([]domaintypes.KeyEvent, error)
}

// MessageStore keeps relayed messages.
type MessageStore interface {
	SaveMessage(ctx context.Context, m domaintypes.Message) error
	// ListMessages returns matching messages oldest first, keeping the
	// newest Limit when a limit is set.
	ListMessages(ctx context.Context, f domaintypes.MessageFilter) ([]domaintypes.Message, error)
}

// BlockStore keeps the audit chain in height order.
type BlockStore interface {
	// AppendBlock stores b. It fails if a block at b.Height already exists.
	AppendBlock(ctx context.Context, b domaintypes.Block) error
	HeadBlock(ctx context.Context) (domaintypes.Block, bool, error)
	// ScanBlocks calls fn for every block with from <= height <= to in
	// ascending order, stopping at the first error.
	ScanBlocks(ctx context.Context, from, to int64, fn func(domaintypes.Block) error) error
}

// Store is the full server-side persistence surface.
type Store interface {
	UserStore
	LinkStore
	SessionStore
	PFSStore
	EventStore
	MessageStore
	BlockStore
	Close() error
}

// Clock returns the current time. Services take one so tests can move time.
type Clock func() time.Time
