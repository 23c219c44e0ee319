package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"cipherlink/internal/domain"
	"cipherlink/internal/relay"
	identitysvc "cipherlink/internal/services/identity"
	"cipherlink/internal/store"
)

// ErrNotRegistered is returned when the CLI has no profile for the server.
var ErrNotRegistered = errors.New("not registered with this server; run register first")

// Wire bundles the local stores and the relay client for the CLI.
type Wire struct {
	Identity domain.IdentityStore
	IDs      *identitysvc.Service
	Profiles domain.ProfileStore
	Relay    *relay.HTTP
	Profile  domain.Profile
	HTTP     *http.Client
	Log      logrus.FieldLogger

	serverURL string
}

// NewWire constructs the dependency graph from cfg. A stored profile for
// cfg.ServerURL is loaded and its token attached to the relay client.
func NewWire(cfg Config, log logrus.FieldLogger) (*Wire, error) {
	if log == nil {
		log = logrus.New()
	}
	identityStore := store.NewIdentityFileStore(cfg.Home)
	profileStore := store.NewProfileFileStore(cfg.Home)

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	rc := relay.NewHTTP(cfg.ServerURL)
	rc.HTTP = httpClient

	w := &Wire{
		Identity:  identityStore,
		IDs:       identitysvc.New(identityStore),
		Profiles:  profileStore,
		Relay:     rc,
		HTTP:      httpClient,
		Log:       log,
		serverURL: cfg.ServerURL,
	}
	if cfg.ServerURL == "" {
		return w, nil
	}
	p, ok, err := profileStore.LoadProfile(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if ok {
		w.Profile = p
		rc.WithToken(p.Token)
	}
	return w, nil
}

// Registered reports whether a profile exists for the configured server.
func (w *Wire) Registered() bool { return w.Profile.Token != "" }

// Register signs a registration for user with the identity unlocked by
// passphrase, sends it and saves the returned token. Running it again on an
// already registered id re-issues a token for the same keys.
func (w *Wire) Register(ctx context.Context, user domain.UserID, passphrase string) error {
	id, err := w.IDs.LoadIdentity(passphrase)
	if err != nil {
		return err
	}
	token, err := w.Relay.Register(ctx, identitysvc.RegistrationRequest(user, id, time.Now()))
	if err != nil {
		return err
	}
	return w.SaveRegistration(user, token)
}

// SaveRegistration stores the profile for user after a successful register.
func (w *Wire) SaveRegistration(user domain.UserID, token string) error {
	p := domain.Profile{ServerURL: w.serverURL, UserID: user, Token: token}
	if err := w.Profiles.SaveProfile(p); err != nil {
		return err
	}
	w.Profile = p
	w.Relay.WithToken(token)
	return nil
}
