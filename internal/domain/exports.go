package domain

import (
	interfaces "cipherlink/internal/domain/interfaces"
	types "cipherlink/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID           = types.UserID
	LinkID           = types.LinkID
	SessionID        = types.SessionID
	PFSSessionID     = types.PFSSessionID
	Fingerprint      = types.Fingerprint
	X25519Public     = types.X25519Public
	X25519Private    = types.X25519Private
	Ed25519Public    = types.Ed25519Public
	Ed25519Private   = types.Ed25519Private
	Identity         = types.Identity
	User             = types.User
	Profile          = types.Profile
	LinkStatus       = types.LinkStatus
	ContactLink      = types.ContactLink
	LifecycleState   = types.LifecycleState
	SealedKey        = types.SealedKey
	KDCSession       = types.KDCSession
	SessionInfo      = types.SessionInfo
	IssuedSession    = types.IssuedSession
	CurrentKey       = types.CurrentKey
	BroadcastKey     = types.BroadcastKey
	PFSState         = types.PFSState
	PFSSession       = types.PFSSession
	PFSStart         = types.PFSStart
	PFSCompletion    = types.PFSCompletion
	EventSource      = types.EventSource
	KeyEvent         = types.KeyEvent
	KeyEventFilter   = types.KeyEventFilter
	BlockPayload     = types.BlockPayload
	Block            = types.Block
	ChainIssue       = types.ChainIssue
	ChainReport      = types.ChainReport
	SignatureStatus  = types.SignatureStatus
	OutboundMessage  = types.OutboundMessage
	Message          = types.Message
	DeliveredMessage = types.DeliveredMessage
	MessageFilter    = types.MessageFilter
	Event            = types.Event
	KDCEvent         = types.KDCEvent
	LifecycleEvent   = types.LifecycleEvent
	PFSEvent         = types.PFSEvent
	MessageEvent     = types.MessageEvent

	RegisterRequest    = types.RegisterRequest
	RegisterResponse   = types.RegisterResponse
	PeerRequest        = types.PeerRequest
	PFSStartRequest    = types.PFSStartRequest
	PFSCompleteRequest = types.PFSCompleteRequest
	SessionRequest     = types.SessionRequest
	AddBlockRequest    = types.AddBlockRequest
	ErrorResponse      = types.ErrorResponse

	KDCEventKind       = types.KDCEventKind
	LifecycleEventKind = types.LifecycleEventKind
	PFSEventKind       = types.PFSEventKind
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityStore    = interfaces.IdentityStore
	ProfileStore     = interfaces.ProfileStore
	UserStore        = interfaces.UserStore
	LinkStore        = interfaces.LinkStore
	SessionStore     = interfaces.SessionStore
	PFSStore         = interfaces.PFSStore
	EventStore       = interfaces.EventStore
	MessageStore     = interfaces.MessageStore
	BlockStore       = interfaces.BlockStore
	Store            = interfaces.Store
	Clock            = interfaces.Clock
	IdentityService  = interfaces.IdentityService
	DirectoryService = interfaces.DirectoryService
	KDCService       = interfaces.KDCService
	PFSService       = interfaces.PFSService
	LifecycleService = interfaces.LifecycleService
	AuditRecorder    = interfaces.AuditRecorder
	Ledger           = interfaces.Ledger
	MessageRelay     = interfaces.MessageRelay
	Publisher        = interfaces.Publisher
	RelayClient      = interfaces.RelayClient
)

// Lifecycle states, sources, link statuses and signature verdicts.
const (
	StateIssued    = types.StateIssued
	StateRotated   = types.StateRotated
	StateRevoked   = types.StateRevoked
	StateDestroyed = types.StateDestroyed

	PFSInitiated   = types.PFSInitiated
	PFSEstablished = types.PFSEstablished
	PFSExpired     = types.PFSExpired

	SourceKDC       = types.SourceKDC
	SourcePFS       = types.SourcePFS
	SourceLifecycle = types.SourceLifecycle

	LinkPending  = types.LinkPending
	LinkAccepted = types.LinkAccepted
	LinkBlocked  = types.LinkBlocked

	SignatureValid    = types.SignatureValid
	SignatureInvalid  = types.SignatureInvalid
	SignatureUnsigned = types.SignatureUnsigned
)

// Realtime event kinds.
const (
	KDCNewSessionKey    = types.KDCNewSessionKey
	KDCKeyRevoked       = types.KDCKeyRevoked
	LifecycleRotated    = types.LifecycleRotated
	LifecycleRevoked    = types.LifecycleRevoked
	LifecycleDestroyed  = types.LifecycleDestroyed
	LifecycleExpired    = types.LifecycleExpired
	PFSInitiatedEvent   = types.PFSInitiatedEvent
	PFSEstablishedEvent = types.PFSEstablishedEvent
)

// Key event types.
const (
	EventGenerated      = types.EventGenerated
	EventRotated        = types.EventRotated
	EventRevoked        = types.EventRevoked
	EventDestroyed      = types.EventDestroyed
	EventExpired        = types.EventExpired
	EventMaterialPurged = types.EventMaterialPurged
	EventPFSInitiated   = types.EventPFSInitiated
	EventPFSEstablished = types.EventPFSEstablished
)

// Error taxonomy shared by every service and the HTTP layer.
var (
	ErrNotLinked               = types.ErrNotLinked
	ErrNotFound                = types.ErrNotFound
	ErrForbidden               = types.ErrForbidden
	ErrSelfSession             = types.ErrSelfSession
	ErrAlreadyTerminal         = types.ErrAlreadyTerminal
	ErrInvalidState            = types.ErrInvalidState
	ErrUnknownOrExpiredSession = types.ErrUnknownOrExpiredSession
	ErrDecryptionFailure       = types.ErrDecryptionFailure
	ErrSignatureInvalid        = types.ErrSignatureInvalid
	ErrChainTampered           = types.ErrChainTampered
	ErrRateLimited             = types.ErrRateLimited
	ErrInvalidKey              = types.ErrInvalidKey
	ErrInvalidInput            = types.ErrInvalidInput
	ErrStorage                 = types.ErrStorage
	ErrUserExists              = types.ErrUserExists
	ErrProofRejected           = types.ErrProofRejected
	ErrStaleKey                = types.ErrStaleKey
)

// OrderedPair sorts a user pair into its canonical link order.
func OrderedPair(a, b UserID) (UserID, UserID) { return types.OrderedPair(a, b) }

// EncodeEvent renders a realtime event as its wire envelope.
func EncodeEvent(ev Event) ([]byte, error) { return types.EncodeEvent(ev) }

// DecodeEvent parses a realtime wire envelope into one of the event variants.
func DecodeEvent(b []byte) (Event, error) { return types.DecodeEvent(b) }
