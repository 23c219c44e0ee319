package app

import (
	"context"

	"cipherlink/internal/domain"
	"cipherlink/internal/keycache"
	"cipherlink/internal/realtime"
	messagesvc "cipherlink/internal/services/message"
)

// Session is an unlocked client: the user's identity plus the key cache
// and message pipeline built on it.
type Session struct {
	Me       domain.UserID
	Identity domain.Identity
	Keys     *keycache.Cache
	Messages *messagesvc.Client
	Relay    domain.RelayClient

	wire *Wire
}

// Open unlocks the identity with passphrase and binds it to the stored
// profile. demoSign selects the throwaway signer instead of the identity
// key.
func (w *Wire) Open(passphrase string, demoSign bool) (*Session, error) {
	if !w.Registered() {
		return nil, ErrNotRegistered
	}
	id, err := w.IDs.LoadIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	keys := keycache.New(w.Profile.UserID, id.XPriv, w.Relay, keycache.Config{Logger: w.Log})

	var signer messagesvc.Signer = messagesvc.Ed25519Signer{Priv: id.EdPriv, Pub: id.EdPub}
	if demoSign {
		signer = messagesvc.DemoSigner{}
	}
	return &Session{
		Me:       w.Profile.UserID,
		Identity: id,
		Keys:     keys,
		Messages: messagesvc.NewClient(keys, w.Relay, signer),
		Relay:    w.Relay,
		wire:     w,
	}, nil
}

// Listen streams realtime events into the key cache and then to handle,
// until ctx is cancelled.
func (s *Session) Listen(ctx context.Context, handle func(domain.Event)) error {
	return realtime.Listen(ctx, s.wire.Relay.Base, s.wire.Profile.Token, s.wire.Log, func(ev domain.Event) {
		s.Keys.HandleEvent(ev)
		if handle != nil {
			handle(ev)
		}
	})
}
