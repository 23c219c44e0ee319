package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cipherlink/internal/auth"
	"cipherlink/internal/domain"
)

// StatusError is a non-2xx response.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("relay %s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

// Unwrap maps the status back to its domain error.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		if strings.Contains(e.Message, domain.ErrProofRejected.Error()) {
			return domain.ErrProofRejected
		}
		return auth.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		for _, err := range []error{domain.ErrUserExists, domain.ErrStaleKey} {
			if strings.Contains(e.Message, err.Error()) {
				return err
			}
		}
		return domain.ErrAlreadyTerminal
	case http.StatusGone:
		return domain.ErrUnknownOrExpiredSession
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case http.StatusBadRequest:
		for _, err := range []error{
			domain.ErrNotLinked,
			domain.ErrSelfSession,
			domain.ErrInvalidKey,
		} {
			if strings.Contains(e.Message, err.Error()) {
				return err
			}
		}
		return domain.ErrInvalidInput
	case http.StatusInternalServerError:
		if e.Message == domain.ErrStorage.Error() {
			return domain.ErrStorage
		}
	}
	return nil
}

// HTTP is a RelayClient over the server's REST surface.
type HTTP struct {
	Base  string
	HTTP  *http.Client
	token string
}

// NewHTTP returns a client for the server at base.
func NewHTTP(base string) *HTTP {
	return &HTTP{Base: strings.TrimRight(base, "/"), HTTP: http.DefaultClient}
}

// WithToken sets the bearer token sent on every request.
func (c *HTTP) WithToken(token string) *HTTP {
	c.token = token
	return c
}

// Token returns the current bearer token.
func (c *HTTP) Token() string { return c.token }

// Register sends a signed registration and keeps the returned token.
func (c *HTTP) Register(ctx context.Context, req domain.RegisterRequest) (string, error) {
	var out domain.RegisterResponse
	if err := c.post(ctx, "/users/register", req, &out); err != nil {
		return "", err
	}
	c.token = out.Token
	return out.Token, nil
}

func (c *HTTP) FetchUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	var out domain.User
	return out, c.get(ctx, "/users/"+url.PathEscape(id.String()), nil, &out)
}

func (c *HTTP) Link(ctx context.Context, peer domain.UserID) (domain.ContactLink, error) {
	var out domain.ContactLink
	return out, c.post(ctx, "/contacts/link", domain.PeerRequest{PeerID: peer}, &out)
}

func (c *HTTP) RequestSessionKey(ctx context.Context, peer domain.UserID) (domain.IssuedSession, error) {
	var out domain.IssuedSession
	return out, c.post(ctx, "/kdc/request-session-key", domain.PeerRequest{PeerID: peer}, &out)
}

func (c *HTTP) SessionInfo(ctx context.Context, id domain.SessionID) (domain.SessionInfo, error) {
	var out domain.SessionInfo
	return out, c.get(ctx, "/kdc/session-info/"+url.PathEscape(id.String()), nil, &out)
}

func (c *HTTP) CurrentKey(ctx context.Context, peer domain.UserID) (domain.CurrentKey, error) {
	var out domain.CurrentKey
	return out, c.get(ctx, "/kdc/current/"+url.PathEscape(peer.String()), nil, &out)
}

func (c *HTTP) BroadcastKey(ctx context.Context) (domain.BroadcastKey, error) {
	var out domain.BroadcastKey
	return out, c.get(ctx, "/kdc/broadcast-key", nil, &out)
}

func (c *HTTP) StartPFS(ctx context.Context, peer domain.UserID) (domain.PFSStart, error) {
	var out domain.PFSStart
	return out, c.post(ctx, "/pfs/start", domain.PFSStartRequest{PeerID: peer}, &out)
}

func (c *HTTP) CompletePFS(
	ctx context.Context,
	id domain.PFSSessionID,
	clientKey domain.X25519Public,
) (domain.PFSCompletion, error) {
	var out domain.PFSCompletion
	req := domain.PFSCompleteRequest{PFSSessionID: id, ClientEphemeralKey: clientKey}
	return out, c.post(ctx, "/pfs/complete", req, &out)
}

func (c *HTTP) RotateSessionKey(ctx context.Context, id domain.SessionID) (domain.SessionInfo, error) {
	return c.lifecycle(ctx, "rotate", id)
}

func (c *HTTP) RevokeSessionKey(ctx context.Context, id domain.SessionID) (domain.SessionInfo, error) {
	return c.lifecycle(ctx, "revoke", id)
}

func (c *HTTP) DestroySessionKey(ctx context.Context, id domain.SessionID) (domain.SessionInfo, error) {
	return c.lifecycle(ctx, "destroy", id)
}

func (c *HTTP) lifecycle(ctx context.Context, op string, id domain.SessionID) (domain.SessionInfo, error) {
	var out domain.SessionInfo
	return out, c.post(ctx, "/lifecycle/"+op+"-session-key", domain.SessionRequest{SessionID: id}, &out)
}

func (c *HTTP) KeyEvents(ctx context.Context, f domain.KeyEventFilter) ([]domain.KeyEvent, error) {
	q := url.Values{}
	if f.SessionID != "" {
		q.Set("sessionId", f.SessionID.String())
	}
	if f.Source != "" {
		q.Set("source", string(f.Source))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	var out []domain.KeyEvent
	return out, c.get(ctx, "/lifecycle/key-events", q, &out)
}

func (c *HTTP) SendMessage(ctx context.Context, msg domain.OutboundMessage) (domain.Message, error) {
	var out domain.Message
	return out, c.post(ctx, "/messages", msg, &out)
}

func (c *HTTP) History(ctx context.Context, peer domain.UserID, limit int) ([]domain.Message, error) {
	q := url.Values{}
	if peer != "" {
		q.Set("peerId", peer.String())
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []domain.Message
	return out, c.get(ctx, "/messages/history", q, &out)
}

func (c *HTTP) Chain(ctx context.Context) ([]domain.Block, error) {
	var out []domain.Block
	return out, c.get(ctx, "/blockchain/chain", nil, &out)
}

func (c *HTTP) ValidateChain(ctx context.Context) (domain.ChainReport, error) {
	var out domain.ChainReport
	return out, c.get(ctx, "/blockchain/validate", nil, &out)
}

func (c *HTTP) post(ctx context.Context, path string, in, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *HTTP) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.Base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *HTTP) do(req *http.Request, path string, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("relay %s %s: %w", req.Method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		se := &StatusError{Method: req.Method, Path: path, Status: resp.StatusCode}
		var body domain.ErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
			se.Message = body.Error
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("relay %s %s: decode: %w", req.Method, path, err)
	}
	return nil
}

var _ domain.RelayClient = (*HTTP)(nil)
