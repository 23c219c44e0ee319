package interfaces

import (
	"context"

	domaintypes "cipherlink/internal/domain/types"
)

// IdentityService creates, retrieves, and inspects your identity keys.
type IdentityService interface {
	GenerateIdentity(passphrase string) (
		domaintypes.Identity,
		domaintypes.Fingerprint,
		error,
	)
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
	FingerprintIdentity(passphrase string) (domaintypes.Fingerprint, error)
}

// DirectoryService registers users and links contacts.
type DirectoryService interface {
	// Register stores the keys of a request whose proof verifies.
	Register(ctx context.Context, req domaintypes.RegisterRequest) (domaintypes.User, error)
	Lookup(ctx context.Context, id domaintypes.UserID) (domaintypes.User, error)
	Link(ctx context.Context, a, b domaintypes.UserID) (domaintypes.ContactLink, error)
	// AcceptedLink returns the accepted link between a and b or ErrNotLinked.
	AcceptedLink(ctx context.Context, a, b domaintypes.UserID) (domaintypes.ContactLink, error)
}

// KDCService mints and distributes per-link session keys.
type KDCService interface {
	RequestSessionKey(
		ctx context.Context,
		initiator, peer domaintypes.UserID,
	) (domaintypes.IssuedSession, error)
	SessionInfo(
		ctx context.Context,
		caller domaintypes.UserID,
		id domaintypes.SessionID,
	) (domaintypes.SessionInfo, error)
	CurrentKey(ctx context.Context, caller, peer domaintypes.UserID) (domaintypes.CurrentKey, error)
	BroadcastKey(ctx context.Context, caller domaintypes.UserID) (domaintypes.BroadcastKey, error)
}

// PFSService runs the ephemeral handshake.
type PFSService interface {
	Start(ctx context.Context, initiator, peer domaintypes.UserID) (domaintypes.PFSStart, error)
	Complete(
		ctx context.Context,
		caller domaintypes.UserID,
		id domaintypes.PFSSessionID,
		clientKey domaintypes.X25519Public,
	) (domaintypes.PFSCompletion, error)
	// Sweep expires every handshake past its TTL and returns how many it purged.
	Sweep(ctx context.Context) (int, error)
}

// LifecycleService rotates, revokes and destroys KDC sessions.
type LifecycleService interface {
	Rotate(ctx context.Context, actor domaintypes.UserID, id domaintypes.SessionID) (domaintypes.SessionInfo, error)
	Revoke(ctx context.Context, actor domaintypes.UserID, id domaintypes.SessionID) (domaintypes.SessionInfo, error)
	Destroy(ctx context.Context, actor domaintypes.UserID, id domaintypes.SessionID) (domaintypes.SessionInfo, error)
	KeyEvents(ctx context.Context, f domaintypes.KeyEventFilter) ([]domaintypes.KeyEvent, error)
	// Sweep expires overdue sessions and purges revoked material past retention.
	Sweep(ctx context.Context) (int, error)
}

// AuditRecorder appends key events to the log and anchors them in the ledger.
type AuditRecorder interface {
	Record(ctx context.Context, ev domaintypes.KeyEvent) (domaintypes.KeyEvent, error)
	List(ctx context.Context, f domaintypes.KeyEventFilter) ([]domaintypes.KeyEvent, error)
}

// Ledger is the hash-chained audit log.
type Ledger interface {
	Append(ctx context.Context, messageHash string, payload *domaintypes.BlockPayload) (domaintypes.Block, error)
	Validate(ctx context.Context) (domaintypes.ChainReport, error)
	Blocks(ctx context.Context) ([]domaintypes.Block, error)
}

// MessageRelay accepts, records and fans out messages on the server.
type MessageRelay interface {
	Submit(
		ctx context.Context,
		sender domaintypes.UserID,
		msg domaintypes.OutboundMessage,
	) (domaintypes.Message, error)
	History(
		ctx context.Context,
		caller, peer domaintypes.UserID,
		limit int,
	) ([]domaintypes.Message, error)
}

// Publisher pushes realtime events to connected users.
type Publisher interface {
	Publish(ctx context.Context, to domaintypes.UserID, ev domaintypes.Event)
	// Broadcast pushes ev to every connected user.
	Broadcast(ctx context.Context, ev domaintypes.Event)
}
