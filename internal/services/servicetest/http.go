package servicetest

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"cipherlink/internal/auth"
	"cipherlink/internal/realtime"
	"cipherlink/internal/server"
)

// TokenSecret signs the bearer tokens of an HTTP harness.
const TokenSecret = "servicetest-token-secret"

// HTTP is an Env served over a real listener.
type HTTP struct {
	*Env
	Server *httptest.Server
	Tokens *auth.Tokens
	Hub    *realtime.Hub
}

// NewHTTP wires Env behind the REST server. Pushes reach both the Recorder
// and the websocket hub.
func NewHTTP(t testing.TB, opts ...Options) *HTTP {
	t.Helper()
	env := New(t, opts...)
	tokens, err := auth.NewTokens(TokenSecret, 0, env.Clock.Now)
	require.NoError(t, err)
	hub := realtime.NewHub(realtime.Config{Logger: env.Logger})
	env.Events.Tee(hub)

	srv, err := server.New(server.Services{
		Directory: env.Directory,
		KDC:       env.KDC,
		PFS:       env.PFS,
		Lifecycle: env.Lifecycle,
		Ledger:    env.Ledger,
		Relay:     env.Relay,
		Hub:       hub,
	}, server.Config{Tokens: tokens, Logger: env.Logger})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return &HTTP{Env: env, Server: ts, Tokens: tokens, Hub: hub}
}

// Token returns a bearer token for u.
func (h *HTTP) Token(t testing.TB, u User) string {
	t.Helper()
	tok, err := h.Tokens.Issue(u.ID)
	require.NoError(t, err)
	return tok
}
