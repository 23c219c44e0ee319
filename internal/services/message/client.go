package message

import (
	"context"
	"errors"
	"fmt"

	"cipherlink/internal/domain"
	"cipherlink/internal/keycache"
)

// Sender is the part of the relay client the message client needs.
type Sender interface {
	SendMessage(ctx context.Context, msg domain.OutboundMessage) (domain.Message, error)
}

// Client sends and opens messages for one user.
type Client struct {
	keys   *keycache.Cache
	relay  Sender
	signer Signer
}

// NewClient returns a message client. A nil signer sends unsigned messages.
func NewClient(keys *keycache.Cache, relay Sender, signer Signer) *Client {
	return &Client{keys: keys, relay: relay, signer: signer}
}

// Send encrypts plaintext for peer and submits it. An empty peer sends on
// the broadcast channel. A key the relay refuses as stale is dropped and
// the send is retried once with a fresh one.
func (c *Client) Send(ctx context.Context, peer domain.UserID, plaintext []byte) (domain.Message, error) {
	m, err := c.send(ctx, peer, plaintext)
	if peer == "" || !errors.Is(err, domain.ErrStaleKey) {
		return m, err
	}
	c.keys.Invalidate(peer)
	return c.send(ctx, peer, plaintext)
}

func (c *Client) send(ctx context.Context, peer domain.UserID, plaintext []byte) (domain.Message, error) {
	key, err := c.key(ctx, peer)
	if err != nil {
		return domain.Message{}, err
	}
	ct, iv, err := Encrypt(plaintext, key.Key)
	if err != nil {
		return domain.Message{}, err
	}
	out := domain.OutboundMessage{
		LinkID:         key.LinkID,
		Ciphertext:     ct,
		IV:             iv,
		KeyFingerprint: key.Fingerprint,
	}
	if c.signer != nil {
		sig, pub, err := c.signer.Sign(signedBytes(ct, iv))
		if err != nil {
			return domain.Message{}, fmt.Errorf("sign message: %w", err)
		}
		out.Signature, out.SignerKey = sig, pub
	}
	return c.relay.SendMessage(ctx, out)
}

// Open decrypts m, which was exchanged with peer (empty for broadcast).
// It never fails: problems are reported on the returned value. A link
// message under the cached key is only opened once the KDC confirms that
// key is still live.
func (c *Client) Open(ctx context.Context, peer domain.UserID, m domain.Message) domain.DeliveredMessage {
	d := domain.DeliveredMessage{Message: m, SignatureStatus: m.SignatureStatus}
	if d.SignatureStatus == "" {
		d.SignatureStatus = VerifyMessage(m, m.SignerKey)
	}

	if m.Broadcast() {
		peer = ""
	}
	key, err := c.key(ctx, peer)
	if err != nil {
		d.Undecryptable = true
		d.Reason = "no session key: " + err.Error()
		return d
	}
	if !m.Broadcast() && m.KeyFingerprint == key.Fingerprint {
		live, err := c.keys.Confirm(ctx, peer, key.Fingerprint)
		switch {
		case err != nil:
			d.Undecryptable = true
			d.Reason = "cannot confirm key is live: " + err.Error()
			return d
		case !live:
			d.Undecryptable, d.StaleKey = true, true
			d.Reason = fmt.Sprintf("sent under key %s, which is no longer live", short(key.Fingerprint))
			return d
		}
	}
	pt, err := Decrypt(m.Ciphertext, m.IV, key.Key)
	if err != nil {
		d.Undecryptable = true
		d.Reason = reason(err, key, m)
		return d
	}
	d.Plaintext = pt
	if d.SignatureStatus == domain.SignatureInvalid {
		d.Reason = domain.ErrSignatureInvalid.Error() + ": does not verify against the sender's registered key"
	}
	return d
}

func (c *Client) key(ctx context.Context, peer domain.UserID) (keycache.Entry, error) {
	if peer == "" {
		return c.keys.Broadcast(ctx)
	}
	return c.keys.Get(ctx, peer)
}

func reason(err error, key keycache.Entry, m domain.Message) string {
	if m.KeyFingerprint != "" && m.KeyFingerprint != key.Fingerprint {
		return fmt.Sprintf("sent under key %s, cached key is %s", short(m.KeyFingerprint), short(key.Fingerprint))
	}
	if errors.Is(err, domain.ErrDecryptionFailure) {
		return "ciphertext failed authentication"
	}
	return err.Error()
}

func short(fp domain.Fingerprint) string {
	if len(fp) > 12 {
		return string(fp[:12])
	}
	return string(fp)
}
