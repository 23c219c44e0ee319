package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"cipherlink/internal/auth"
	"cipherlink/internal/domain"
	"cipherlink/internal/metrics"
	"cipherlink/internal/realtime"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

// Services are the server-side components the routes call into.
type Services struct {
	Directory domain.DirectoryService
	KDC       domain.KDCService
	PFS       domain.PFSService
	Lifecycle domain.LifecycleService
	Ledger    domain.Ledger
	Relay     domain.MessageRelay
	Hub       *realtime.Hub
}

// Config tunes a Server. Tokens is required.
type Config struct {
	Tokens  *auth.Tokens
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Server is the REST and websocket front of the KDC.
type Server struct {
	svc     Services
	tokens  *auth.Tokens
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	handler http.Handler
}

// New builds the route table.
func New(svc Services, cfg Config) (*Server, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("server: token authority required")
	}
	if svc.Directory == nil || svc.KDC == nil || svc.PFS == nil || svc.Lifecycle == nil ||
		svc.Ledger == nil || svc.Relay == nil || svc.Hub == nil {
		return nil, errors.New("server: all services are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	s := &Server{svc: svc, tokens: cfg.Tokens, log: cfg.Logger, metrics: cfg.Metrics}
	s.handler = s.accessLog(s.routes())
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	authed := s.tokens.Middleware(s.fail)
	handle := func(pattern string, h http.HandlerFunc) { mux.Handle(pattern, authed(h)) }

	mux.HandleFunc("POST /users/register", s.register)
	mux.HandleFunc("GET /users/{id}", s.lookupUser)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	handle("POST /contacts/link", s.link)

	handle("POST /kdc/request-session-key", s.requestSessionKey)
	handle("GET /kdc/session-info/{id}", s.sessionInfo)
	handle("GET /kdc/current/{peerId}", s.currentKey)
	handle("GET /kdc/broadcast-key", s.broadcastKey)

	handle("POST /pfs/start", s.startPFS)
	handle("POST /pfs/complete", s.completePFS)

	handle("POST /lifecycle/rotate-session-key", s.transition(s.svc.Lifecycle.Rotate))
	handle("POST /lifecycle/revoke-session-key", s.transition(s.svc.Lifecycle.Revoke))
	handle("POST /lifecycle/destroy-session-key", s.transition(s.svc.Lifecycle.Destroy))
	handle("GET /lifecycle/key-events", s.keyEvents)

	handle("GET /blockchain/chain", s.chain)
	handle("GET /blockchain/validate", s.validate)
	handle("POST /blockchain/add-block", s.addBlock)

	handle("POST /messages", s.submitMessage)
	handle("GET /messages/history", s.history)

	handle("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		s.svc.Hub.Serve(w, r, caller(r))
	})
	return mux
}

// Serve runs the server on addr until ctx is cancelled, then drains
// in-flight requests for up to grace.
func (s *Server) Serve(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	s.svc.Hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// caller is set by the auth middleware on every authed route.
func caller(r *http.Request) domain.UserID {
	u, _ := auth.UserFrom(r.Context())
	return u
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
	writeJSON(w, status, domain.ErrorResponse{Error: publicMessage(err, status)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return nil
}
