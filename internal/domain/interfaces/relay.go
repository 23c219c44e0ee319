package interfaces

import (
	"context"

	domaintypes "cipherlink/internal/domain/types"
)

// RelayClient is how the client talks to the KDC server's REST surface.
type RelayClient interface {
	Register(ctx context.Context, req domaintypes.RegisterRequest) (token string, err error)
	FetchUser(ctx context.Context, id domaintypes.UserID) (domaintypes.User, error)
	Link(ctx context.Context, peer domaintypes.UserID) (domaintypes.ContactLink, error)

	RequestSessionKey(ctx context.Context, peer domaintypes.UserID) (domaintypes.IssuedSession, error)
	SessionInfo(ctx context.Context, id domaintypes.SessionID) (domaintypes.SessionInfo, error)
	CurrentKey(ctx context.Context, peer domaintypes.UserID) (domaintypes.CurrentKey, error)
	BroadcastKey(ctx context.Context) (domaintypes.BroadcastKey, error)

	StartPFS(ctx context.Context, peer domaintypes.UserID) (domaintypes.PFSStart, error)
	CompletePFS(
		ctx context.Context,
		id domaintypes.PFSSessionID,
		clientKey domaintypes.X25519Public,
	) (domaintypes.PFSCompletion, error)

	RotateSessionKey(ctx context.Context, id domaintypes.SessionID) (domaintypes.SessionInfo, error)
	RevokeSessionKey(ctx context.Context, id domaintypes.SessionID) (domaintypes.SessionInfo, error)
	DestroySessionKey(ctx context.Context, id domaintypes.SessionID) (domaintypes.SessionInfo, error)
	KeyEvents(ctx context.Context, f domaintypes.KeyEventFilter) ([]domaintypes.KeyEvent, error)

	SendMessage(ctx context.Context, msg domaintypes.OutboundMessage) (domaintypes.Message, error)
	History(ctx context.Context, peer domaintypes.UserID, limit int) ([]domaintypes.Message, error)

	Chain(ctx context.Context) ([]domaintypes.Block, error)
	ValidateChain(ctx context.Context) (domaintypes.ChainReport, error)
}
