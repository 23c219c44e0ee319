package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"cipherlink/internal/domain"
)

// WebsocketURL turns the server base URL into the URL of its event stream.
func WebsocketURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

// Listen connects to the event stream of serverURL with token and calls
// handle for every event until ctx is cancelled or the connection drops.
// Frames that do not decode are logged and skipped.
func Listen(
	ctx context.Context,
	serverURL, token string,
	log logrus.FieldLogger,
	handle func(domain.Event),
) error {
	if log == nil {
		log = logrus.New()
	}
	wsURL, err := WebsocketURL(serverURL)
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", wsURL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		ev, err := domain.DecodeEvent(data)
		if err != nil {
			log.WithError(err).Warn("skipping undecodable event")
			continue
		}
		handle(ev)
	}
}
