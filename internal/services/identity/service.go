package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

// minPassphraseLength defines the minimum number of characters required for a passphrase.
const minPassphraseLength = 12

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = errors.New("passphrase is too weak")
	// ErrIdentityExists is returned by GenerateIdentity when an identity is
	// already stored. The server binds a user id to its keys on first
	// registration, so replacing them locally would strand the account.
	ErrIdentityExists = errors.New("an identity already exists in this home directory")
)

// Service manages identity key creation and access using a backing store.
//
// The identity contains:
//   - X25519 key pair that the KDC seals session key copies to.
//   - Ed25519 key pair for signing outgoing messages.
type Service struct {
	store domain.IdentityStore
}

// New returns an identity service backed by the given store.
func New(s domain.IdentityStore) *Service { return &Service{store: s} }

// Summary is the displayable public half of an identity.
type Summary struct {
	Fingerprint domain.Fingerprint
	IdentityKey string // base64 X25519 public key
	SigningKey  string // base64 Ed25519 public key
}

// GenerateIdentity creates a new identity and saves it encrypted with the
// passphrase. It refuses to replace an existing one.
//
// Steps:
//  1. Enforce the passphrase policy.
//  2. Probe the store; anything but "not found" means an identity exists
//     (a wrong-passphrase failure still proves a file is there).
//  3. Generate both key pairs, persist, and return the fingerprint.
func (s *Service) GenerateIdentity(passphrase string) (domain.Identity, domain.Fingerprint, error) {
	if err := checkPassphrase(passphrase); err != nil {
		return domain.Identity{}, "", err
	}
	if _, err := s.store.LoadIdentity(passphrase); !errors.Is(err, domain.ErrNotFound) {
		return domain.Identity{}, "", ErrIdentityExists
	}

	xpriv, xpub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.Identity{}, "", err
	}
	edpriv, edpub, err := crypto.GenerateEd25519()
	if err != nil {
		return domain.Identity{}, "", err
	}
	id := domain.Identity{XPub: xpub, XPriv: xpriv, EdPub: edpub, EdPriv: edpriv}
	if err := s.store.SaveIdentity(passphrase, id); err != nil {
		return domain.Identity{}, "", err
	}
	return id, Fingerprint(id), nil
}

// LoadIdentity decrypts and returns the local identity.
func (s *Service) LoadIdentity(passphrase string) (domain.Identity, error) {
	return s.store.LoadIdentity(passphrase)
}

// FingerprintIdentity returns the short fingerprint of the local identity.
func (s *Service) FingerprintIdentity(passphrase string) (domain.Fingerprint, error) {
	id, err := s.store.LoadIdentity(passphrase)
	if err != nil {
		return "", err
	}
	return Fingerprint(id), nil
}

// Describe returns the fingerprint and both public keys of the local identity.
func (s *Service) Describe(passphrase string) (Summary, error) {
	id, err := s.store.LoadIdentity(passphrase)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Fingerprint: Fingerprint(id),
		IdentityKey: crypto.B64(id.XPub.Slice()),
		SigningKey:  crypto.B64(id.EdPub.Slice()),
	}, nil
}

// Fingerprint covers both public keys, so a peer comparing it out of band
// checks the sealing key and the signing key at once.
func Fingerprint(id domain.Identity) domain.Fingerprint {
	return domain.Fingerprint(crypto.Fingerprint(id.XPub.Slice(), id.EdPub.Slice()))
}

// RegistrationRequest returns a signed request binding userID to the public
// keys of id. The signature by id.EdPriv proves possession of the signing
// key; issuedAt must be close to the server's clock.
func RegistrationRequest(userID domain.UserID, id domain.Identity, issuedAt time.Time) domain.RegisterRequest {
	req := domain.RegisterRequest{
		UserID:      userID,
		IdentityKey: id.XPub,
		SigningKey:  id.EdPub,
		IssuedAt:    issuedAt.UTC(),
	}
	req.Proof = crypto.SignEd25519(id.EdPriv, req.ProofMessage())
	return req
}

// passphraseClasses are the character classes a passphrase must mix.
var passphraseClasses = []struct {
	name string
	in   func(rune) bool
}{
	{"an upper-case letter", unicode.IsUpper},
	{"a lower-case letter", unicode.IsLower},
	{"a digit", unicode.IsDigit},
	{"a symbol", func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) }},
}

// checkPassphrase returns nil or ErrWeakPassphrase naming what is missing.
func checkPassphrase(passphrase string) error {
	var missing []string
	if n := utf8.RuneCountInString(passphrase); n < minPassphraseLength {
		missing = append(missing, fmt.Sprintf("%d more characters", minPassphraseLength-n))
	}
	for _, c := range passphraseClasses {
		if !strings.ContainsFunc(passphrase, c.in) {
			missing = append(missing, c.name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: needs %s", ErrWeakPassphrase, strings.Join(missing, ", "))
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
