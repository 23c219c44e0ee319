package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"cipherlink/internal/domain"
)

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.svc.Directory.Register(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		s.fail(w, r, fmt.Errorf("issue token: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, domain.RegisterResponse{User: u, Token: token})
}

func (s *Server) lookupUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.Directory.Lookup(r.Context(), domain.UserID(r.PathValue("id")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) link(w http.ResponseWriter, r *http.Request) {
	var req domain.PeerRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	l, err := s.svc.Directory.Link(r.Context(), caller(r), req.PeerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) requestSessionKey(w http.ResponseWriter, r *http.Request) {
	var req domain.PeerRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	issued, err := s.svc.KDC.RequestSessionKey(r.Context(), caller(r), req.PeerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if issued.Fresh {
		status = http.StatusCreated
	}
	writeJSON(w, status, issued)
}

func (s *Server) sessionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.KDC.SessionInfo(r.Context(), caller(r), domain.SessionID(r.PathValue("id")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) currentKey(w http.ResponseWriter, r *http.Request) {
	k, err := s.svc.KDC.CurrentKey(r.Context(), caller(r), domain.UserID(r.PathValue("peerId")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (s *Server) broadcastKey(w http.ResponseWriter, r *http.Request) {
	k, err := s.svc.KDC.BroadcastKey(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (s *Server) startPFS(w http.ResponseWriter, r *http.Request) {
	var req domain.PFSStartRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	me := caller(r)
	if req.InitiatorID != "" && req.InitiatorID != me {
		s.fail(w, r, fmt.Errorf("%w: initiator must be the caller", domain.ErrForbidden))
		return
	}
	start, err := s.svc.PFS.Start(r.Context(), me, req.PeerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, start)
}

func (s *Server) completePFS(w http.ResponseWriter, r *http.Request) {
	var req domain.PFSCompleteRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	done, err := s.svc.PFS.Complete(r.Context(), caller(r), req.PFSSessionID, req.ClientEphemeralKey)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, done)
}

type transitionFunc func(context.Context, domain.UserID, domain.SessionID) (domain.SessionInfo, error)

// transition adapts one lifecycle operation to a {sessionId} body.
func (s *Server) transition(op transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.SessionRequest
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if req.SessionID == "" {
			s.fail(w, r, fmt.Errorf("%w: sessionId required", domain.ErrInvalidInput))
			return
		}
		info, err := op(r.Context(), caller(r), req.SessionID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func (s *Server) keyEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.KeyEventFilter{
		SessionID: domain.SessionID(q.Get("sessionId")),
		Source:    domain.EventSource(q.Get("source")),
	}
	if f.Source != "" && !f.Source.Valid() {
		s.fail(w, r, fmt.Errorf("%w: unknown source %q", domain.ErrInvalidInput, f.Source))
		return
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.SessionID != "" {
		// Only participants may read a session's history.
		if _, err := s.svc.KDC.SessionInfo(r.Context(), caller(r), f.SessionID); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	events, err := s.svc.Lifecycle.KeyEvents(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if events == nil {
		events = []domain.KeyEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) chain(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.svc.Ledger.Blocks(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Ledger.Validate(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !report.Valid {
		s.log.WithFields(logrus.Fields{
			"first_invalid": report.FirstInvalid,
			"issues":        len(report.Issues),
		}).Warn("audit chain failed validation")
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) addBlock(w http.ResponseWriter, r *http.Request) {
	var req domain.AddBlockRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.MessageHash == "" {
		s.fail(w, r, fmt.Errorf("%w: messageHash required", domain.ErrInvalidInput))
		return
	}
	payload := &domain.BlockPayload{
		SenderID:   caller(r),
		ReceiverID: req.ReceiverID,
		Meta:       map[string]string{"source": "api"},
	}
	if req.SenderID != "" && req.SenderID != payload.SenderID {
		s.fail(w, r, fmt.Errorf("%w: sender must be the caller", domain.ErrForbidden))
		return
	}
	b, err := s.svc.Ledger.Append(r.Context(), req.MessageHash, payload)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) submitMessage(w http.ResponseWriter, r *http.Request) {
	var req domain.OutboundMessage
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.svc.Relay.Submit(r.Context(), caller(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	msgs, err := s.svc.Relay.History(r.Context(), caller(r), domain.UserID(q.Get("peerId")), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// intParam parses an optional non-negative query integer.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q is not a non-negative integer", domain.ErrInvalidInput, v)
	}
	return n, nil
}
