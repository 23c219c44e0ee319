package types

import "errors"

var (
	// ErrNotLinked is returned when two users have no accepted ContactLink.
	ErrNotLinked = errors.New("users are not linked")
	// ErrNotFound is returned when a record is missing or not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller is not a participant.
	ErrForbidden = errors.New("not authorized for this session")
	// ErrSelfSession is returned when a user asks for a key with themselves.
	ErrSelfSession = errors.New("cannot open a session with self")
	// ErrAlreadyTerminal is returned by lifecycle operations on a revoked or
	// destroyed session.
	ErrAlreadyTerminal = errors.New("session is already terminal")
	// ErrInvalidState is the lifecycle-facing name of ErrAlreadyTerminal.
	ErrInvalidState = ErrAlreadyTerminal
	// ErrUnknownOrExpiredSession is returned when completing a handshake
	// that is missing, already used, or past its TTL.
	ErrUnknownOrExpiredSession = errors.New("unknown or expired pfs session")
	// ErrDecryptionFailure is returned for a wrong key or corrupted ciphertext.
	ErrDecryptionFailure = errors.New("decryption failed")
	// ErrSignatureInvalid is returned when a signature does not verify.
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrChainTampered is returned when ledger validation finds a broken block.
	ErrChainTampered = errors.New("audit chain tampered")
	// ErrRateLimited is returned when a caller exceeds the request budget.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrInvalidKey is returned for malformed or low-order public keys.
	ErrInvalidKey = errors.New("invalid public key")
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUserExists is returned when registering an id that is bound to
	// other keys.
	ErrUserExists = errors.New("user id already registered")
	// ErrProofRejected is returned when a registration proof is missing,
	// does not verify, is outside the freshness window or was seen before.
	ErrProofRejected = errors.New("registration proof rejected")
	// ErrStaleKey is returned when a message names a session key that is not
	// the live key of its link.
	ErrStaleKey = errors.New("session key is not the live key for this link")
	// ErrStorage wraps failures of the backing store. It is the only fatal class.
	ErrStorage = errors.New("storage failure")
)
