package grpcapi

import (
	"context"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/gateerr"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
	"github.com/BrandonDHaskell/gatehouse/internal/metrics"
	"github.com/BrandonDHaskell/gatehouse/internal/wire"
)

type Dependencies struct {
	Logger    *zap.Logger
	Sessions  *service.SessionService
	Approvals *service.ApprovalService
	Visits    *service.VisitService
	Metrics   *metrics.Metrics
}

// Server owns the grpc.Server, the gate service and the standard health
// service.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	gate       *gateService
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("grpc")

	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor(logger, d.Metrics),
		metadataInterceptor(),
	))
	gate := &gateService{
		logger:    logger,
		sessions:  d.Sessions,
		approvals: d.Approvals,
		visits:    d.Visits,
	}
	RegisterGateServer(gs, gate)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{grpcServer: gs, health: hs, gate: gate}
}

// Serve blocks accepting connections on lis.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Shutdown reports NOT_SERVING and drains in-flight calls until ctx is done,
// then stops hard.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// ── Gate service ─────────────────────────────────────────────────────────────

type gateService struct {
	logger    *zap.Logger
	sessions  *service.SessionService
	approvals *service.ApprovalService
	visits    *service.VisitService
}

var _ GateServer = (*gateService)(nil)

type approvalIDRequest struct {
	ID string `json:"id"`
}

type denyRequest struct {
	ID   string `json:"id"`
	Note string `json:"note,omitempty"`
}

type checkOutRequest struct {
	VisitorID string `json:"visitor_id"`
}

func decode(in *structpb.Struct, v any) error {
	if err := wire.FromStruct(in, v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

// reply encodes v, or maps err to a gRPC status.
func (g *gateService) reply(v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, g.toStatus(err)
	}
	out, err := wire.ToStruct(v)
	if err != nil {
		return nil, g.toStatus(err)
	}
	return out, nil
}

func (g *gateService) Entry(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.EntryRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return g.reply(g.sessions.Entry(ctx, req))
}

func (g *gateService) ExitWithPass(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.ExitRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return g.reply(g.sessions.ExitWithPass(ctx, req))
}

func (g *gateService) RequestApproval(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.ApprovalRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return g.reply(g.approvals.Request(ctx, req.SessionID, req.Note))
}

func (g *gateService) Approve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req approvalIDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return g.reply(g.approvals.Approve(ctx, req.ID))
}

func (g *gateService) Deny(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req denyRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return g.reply(g.approvals.Deny(ctx, req.ID, req.Note))
}

func (g *gateService) CheckIn(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.CheckInRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return g.reply(g.visits.CheckIn(ctx, req))
}

func (g *gateService) CheckOut(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req checkOutRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return g.reply(g.visits.CheckOut(ctx, req.VisitorID))
}

// ── Errors ───────────────────────────────────────────────────────────────────

func codeFor(kind gateerr.Kind) codes.Code {
	switch kind {
	case gateerr.KindNotFound:
		return codes.NotFound
	case gateerr.KindAccessDenied, gateerr.KindBlacklisted:
		return codes.PermissionDenied
	case gateerr.KindInvalidState:
		return codes.FailedPrecondition
	case gateerr.KindUnauthorized:
		return codes.Unauthenticated
	case gateerr.KindInvalid:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// toStatus converts a service error.  Internal errors are logged and their
// text is not sent to the client.
func (g *gateService) toStatus(err error) error {
	code := codeFor(gateerr.KindOf(err))
	if code == codes.Internal {
		g.logger.Error("gate call failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, gateerr.ReasonOf(err))
}
