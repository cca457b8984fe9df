// Package httpapi exposes the gate services over HTTP.  Bodies are JSON by
// default and google.protobuf.Struct when the client sends or accepts
// application/x-protobuf.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
	"github.com/BrandonDHaskell/gatehouse/internal/metrics"
)

type Dependencies struct {
	Logger *zap.Logger
	Addr   string

	Sessions  *service.SessionService
	Approvals *service.ApprovalService
	Visits    *service.VisitService

	// Auth resolves tenant and actor; nil trusts the dev headers.
	Auth *Authenticator
	// Metrics is optional.  Gatherer backs GET /metrics and defaults to the
	// global Prometheus registry.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	auth       *Authenticator

	sessions  *service.SessionService
	approvals *service.ApprovalService
	visits    *service.VisitService
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	auth := d.Auth
	if auth == nil {
		auth = NewAuthenticator("")
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		logger:    logger.Named("http"),
		mux:       mux,
		auth:      auth,
		sessions:  d.Sessions,
		approvals: d.Approvals,
		visits:    d.Visits,
	}

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.Handle("POST /v1/gate/entry", s.authed(s.handleEntry))
	mux.Handle("POST /v1/gate/exit", s.authed(s.handleExit))
	mux.Handle("POST /v1/gate/exit-pass", s.authed(s.handleIssueExitPass))
	mux.Handle("POST /v1/gate/sessions/{id}/approved-exit", s.authed(s.handleApprovedExit))
	mux.Handle("GET /v1/gate/sessions", s.authed(s.handleListSessions))
	mux.Handle("GET /v1/gate/sessions/{id}", s.authed(s.handleGetSession))
	mux.Handle("GET /v1/gate/events", s.authed(s.handleListEvents))

	mux.Handle("POST /v1/approvals", s.authed(s.handleRequestApproval))
	mux.Handle("GET /v1/approvals/pending", s.authed(s.handleListPending))
	mux.Handle("GET /v1/approvals/{id}", s.authed(s.handleGetApproval))
	mux.Handle("POST /v1/approvals/{id}/approve", s.authed(s.handleApprove))
	mux.Handle("POST /v1/approvals/{id}/deny", s.authed(s.handleDeny))

	mux.Handle("POST /v1/visitors/{id}/passes", s.authed(s.handleIssuePass))
	mux.Handle("POST /v1/visitors/{id}/passes/regenerate", s.authed(s.handleRegeneratePass))
	mux.Handle("POST /v1/visitors/{id}/revoke", s.authed(s.handleRevokeVisitor))
	mux.Handle("POST /v1/visitors/check-in", s.authed(s.handleCheckIn))
	mux.Handle("POST /v1/visitors/{id}/check-out", s.authed(s.handleCheckOut))

	handler := loggingMiddleware(s.logger, d.Metrics, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// decode reads the request body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	var err error
	if optional {
		err = decodeOptional(r, v)
	} else {
		err = decodeBody(r, v)
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return false
	}
	return true
}

// reply writes v with status, or maps err.
func (s *Server) reply(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, status, v)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, healthResponse{Status: "ok"})
}

// ── Gate sessions ────────────────────────────────────────────────────────────

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	var req types.EntryRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	sess, err := s.sessions.Entry(r.Context(), req)
	s.reply(w, r, http.StatusCreated, sess, err)
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	var req types.ExitRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	sess, err := s.sessions.ExitWithPass(r.Context(), req)
	s.reply(w, r, http.StatusOK, sess, err)
}

func (s *Server) handleIssueExitPass(w http.ResponseWriter, r *http.Request) {
	var req types.ExitPassRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	pass, err := s.sessions.IssueExitPass(r.Context(), req.VehicleID)
	s.reply(w, r, http.StatusCreated, pass, err)
}

func (s *Server) handleApprovedExit(w http.ResponseWriter, r *http.Request) {
	var req types.ApprovedExitRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	sess, err := s.sessions.ExitWithApproval(r.Context(), r.PathValue("id"), req.Note)
	s.reply(w, r, http.StatusOK, sess, err)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	items, total, err := s.sessions.ListSessions(r.Context(), sessionFilterFromQuery(r.URL.Query()), page)
	s.reply(w, r, http.StatusOK, newListResponse(items, total, page), err)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.GetSession(r.Context(), r.PathValue("id"))
	s.reply(w, r, http.StatusOK, sess, err)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	items, total, err := s.sessions.ListEvents(r.Context(), eventFilterFromQuery(r.URL.Query()), page)
	s.reply(w, r, http.StatusOK, newListResponse(items, total, page), err)
}

// ── Exit approvals ───────────────────────────────────────────────────────────

func (s *Server) handleRequestApproval(w http.ResponseWriter, r *http.Request) {
	var req types.ApprovalRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	a, err := s.approvals.Request(r.Context(), req.SessionID, req.Note)
	s.reply(w, r, http.StatusCreated, a, err)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	items, err := s.approvals.ListPending(r.Context())
	s.reply(w, r, http.StatusOK, newListResponse(items, len(items), store.Page{Limit: len(items)}), err)
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	a, err := s.approvals.Get(r.Context(), r.PathValue("id"))
	s.reply(w, r, http.StatusOK, a, err)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	a, err := s.approvals.Approve(r.Context(), r.PathValue("id"))
	s.reply(w, r, http.StatusOK, a, err)
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	var req types.DenyRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	a, err := s.approvals.Deny(r.Context(), r.PathValue("id"), req.Note)
	s.reply(w, r, http.StatusOK, a, err)
}

// ── Visitors ─────────────────────────────────────────────────────────────────

func (s *Server) handleIssuePass(w http.ResponseWriter, r *http.Request) {
	var spec types.PassSpec
	if !s.decode(w, r, &spec, false) {
		return
	}
	p, err := s.visits.IssuePass(r.Context(), r.PathValue("id"), spec)
	s.reply(w, r, http.StatusCreated, p, err)
}

func (s *Server) handleRegeneratePass(w http.ResponseWriter, r *http.Request) {
	p, err := s.visits.RegeneratePass(r.Context(), r.PathValue("id"))
	s.reply(w, r, http.StatusCreated, p, err)
}

func (s *Server) handleRevokeVisitor(w http.ResponseWriter, r *http.Request) {
	v, err := s.visits.RevokeVisitor(r.Context(), r.PathValue("id"))
	s.reply(w, r, http.StatusOK, v, err)
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req types.CheckInRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	res, err := s.visits.CheckIn(r.Context(), req)
	s.reply(w, r, http.StatusOK, res, err)
}

func (s *Server) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	v, err := s.visits.CheckOut(r.Context(), r.PathValue("id"))
	s.reply(w, r, http.StatusOK, v, err)
}
