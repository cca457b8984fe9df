package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/gateerr"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
	"github.com/BrandonDHaskell/gatehouse/internal/reqctx"
)

const (
	expiredOnRead  = "read"
	expiredOnSweep = "sweep"

	// sweeperActor is the actor recorded on events raised by the sweeper.
	sweeperActor = "system:approval-sweeper"
)

// ApprovalService runs remote exit approvals.  A guard asks the resident of
// a vehicle with an open session to approve its exit; the request is only
// actionable until its expiry.  Expiry is evaluated whenever a request is
// read or acted on, so a stale PENDING row is never approvable even if the
// sweeper has not reached it.
type ApprovalService struct {
	base
	ttl time.Duration
}

func NewApprovalService(d Deps, ttl time.Duration) *ApprovalService {
	return &ApprovalService{base: newBase(d, "approvals"), ttl: ttl}
}

// WithClock overrides the clock for deterministic testing.
func (s *ApprovalService) WithClock(now func() time.Time) *ApprovalService {
	s.now = now
	return s
}

// Request opens a PENDING approval for an OPEN session.
func (s *ApprovalService) Request(ctx context.Context, sessionID, note string) (types.ApprovalView, error) {
	tenantID, guardID, err := reqctx.Require(ctx)
	if err != nil {
		return types.ApprovalView{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return types.ApprovalView{}, gateerr.Invalid("session_id is required")
	}

	now := s.now()
	var a types.ExitApproval

	err = s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		sess, err := r.Sessions().GetSession(ctx, tenantID, sessionID)
		if err != nil {
			return lookupErr(err, "session")
		}
		if sess.Status != types.SessionOpen {
			return deny(gateerr.AccessDenied("session not open"), types.GateEvent{
				TenantID:   tenantID,
				SessionID:  sess.ID,
				VehicleID:  sess.VehicleID,
				ResidentID: sess.ResidentID,
				Kind:       types.EventRemoteApprovalRequested,
				ActorID:    guardID,
				Details:    "session " + strings.ToLower(string(sess.Status)),
			})
		}

		a = types.ExitApproval{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			SessionID:  sess.ID,
			VehicleID:  sess.VehicleID,
			ResidentID: sess.ResidentID,
			GuardID:    guardID,
			Status:     types.ApprovalPending,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.ttl),
			Note:       note,
		}
		if err := r.Approvals().CreateApproval(ctx, a); err != nil {
			return fmt.Errorf("create approval: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.ApprovalView{}, s.settle(ctx, err)
	}

	s.emit(ctx, approvalEvent(a, types.EventRemoteApprovalRequested, guardID, note))
	return s.view(ctx, a), nil
}

// Get returns one request, expiring it first if it is stale.
func (s *ApprovalService) Get(ctx context.Context, id string) (types.ApprovalView, error) {
	tenantID, actorID, err := reqctx.Require(ctx)
	if err != nil {
		return types.ApprovalView{}, err
	}

	var (
		a       types.ExitApproval
		expired bool
	)
	err = s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		a, expired, err = s.load(ctx, r, tenantID, id)
		return err
	})
	if err != nil {
		return types.ApprovalView{}, err
	}
	if expired {
		s.noteExpired(ctx, a, actorID, expiredOnRead)
	}
	return s.view(ctx, a), nil
}

// ListPending returns the calling resident's actionable requests, oldest
// first.  Stale requests found on the way are expired and left out.
func (s *ApprovalService) ListPending(ctx context.Context) ([]types.ApprovalView, error) {
	tenantID, residentID, err := reqctx.Require(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var pending, expired []types.ExitApproval

	err = s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		pending, expired = nil, nil
		list, err := r.Approvals().ListApprovalsByResident(ctx, tenantID, residentID, types.ApprovalPending)
		if err != nil {
			return fmt.Errorf("list approvals: %w", err)
		}
		for _, a := range list {
			if !a.ExpiredAt(now) {
				pending = append(pending, a)
				continue
			}
			a.Status = types.ApprovalExpired
			if err := r.Approvals().UpdateApproval(ctx, a); err != nil {
				return fmt.Errorf("expire approval: %w", err)
			}
			expired = append(expired, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, a := range expired {
		s.noteExpired(ctx, a, residentID, expiredOnRead)
	}
	out := make([]types.ApprovalView, 0, len(pending))
	for _, a := range pending {
		out = append(out, s.view(ctx, a))
	}
	return out, nil
}

// Approve lets the vehicle's resident release it.
func (s *ApprovalService) Approve(ctx context.Context, id string) (types.ApprovalView, error) {
	return s.respond(ctx, id, types.ApprovalApproved, "")
}

// Deny refuses the exit.  note is recorded on the audit event.
func (s *ApprovalService) Deny(ctx context.Context, id, note string) (types.ApprovalView, error) {
	return s.respond(ctx, id, types.ApprovalDenied, note)
}

func (s *ApprovalService) respond(ctx context.Context, id string, to types.ApprovalStatus, note string) (types.ApprovalView, error) {
	tenantID, actorID, err := reqctx.Require(ctx)
	if err != nil {
		return types.ApprovalView{}, err
	}

	now := s.now()
	var (
		a       types.ExitApproval
		expired bool
	)

	err = s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		a, expired, err = s.load(ctx, r, tenantID, id)
		if err != nil || expired {
			// An expiry is committed even though the response is refused.
			return err
		}
		if a.Status != types.ApprovalPending {
			return gateerr.InvalidState("approval is already " + strings.ToLower(string(a.Status)))
		}
		if to == types.ApprovalApproved && a.ResidentID != actorID {
			failed := approvalEvent(a, types.EventRemoteApprovalApproved, actorID, "actor is not the vehicle's resident")
			failed.Success = false
			return deny(gateerr.AccessDenied("only the vehicle's resident can approve this exit"), failed)
		}

		a.Status = to
		a.RespondedAt = &now
		if err := r.Approvals().UpdateApproval(ctx, a); err != nil {
			return fmt.Errorf("update approval: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.ApprovalView{}, s.settle(ctx, err)
	}
	if expired {
		s.noteExpired(ctx, a, actorID, expiredOnRead)
		return types.ApprovalView{}, gateerr.InvalidState("approval has expired")
	}

	kind := types.EventRemoteApprovalApproved
	if to == types.ApprovalDenied {
		kind = types.EventRemoteApprovalDenied
	}
	s.emit(ctx, approvalEvent(a, kind, actorID, note))
	return s.view(ctx, a), nil
}

// load fetches a request and persists EXPIRED if it is stale.
func (s *ApprovalService) load(ctx context.Context, r store.Repos, tenantID, id string) (types.ExitApproval, bool, error) {
	a, err := r.Approvals().GetApproval(ctx, tenantID, id)
	if err != nil {
		return types.ExitApproval{}, false, lookupErr(err, "approval")
	}
	if !a.ExpiredAt(s.now()) {
		return a, false, nil
	}
	a.Status = types.ApprovalExpired
	if err := r.Approvals().UpdateApproval(ctx, a); err != nil {
		return types.ExitApproval{}, false, fmt.Errorf("expire approval: %w", err)
	}
	return a, true, nil
}

// ExpireStale moves up to limit stale PENDING requests, across all tenants,
// to EXPIRED.  It returns how many it expired.
func (s *ApprovalService) ExpireStale(ctx context.Context, limit int) (int, error) {
	now := s.now()
	stale, err := s.store.Approvals().ListStalePending(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale approvals: %w", err)
	}

	n := 0
	for _, candidate := range stale {
		var (
			a       types.ExitApproval
			expired bool
		)
		err := s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
			var err error
			a, expired, err = s.load(ctx, r, candidate.TenantID, candidate.ID)
			return err
		})
		if errors.Is(err, gateerr.ErrNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		// Another caller may have acted on it since the listing.
		if !expired {
			continue
		}
		s.noteExpired(ctx, a, sweeperActor, expiredOnSweep)
		n++
	}
	return n, nil
}

func (s *ApprovalService) noteExpired(ctx context.Context, a types.ExitApproval, actorID, source string) {
	if s.metrics != nil {
		s.metrics.ApprovalsExpired.WithLabelValues(source).Inc()
	}
	s.emit(ctx, approvalEvent(a, types.EventRemoteApprovalExpired, actorID, "expired at "+a.ExpiresAt.Format(time.RFC3339)))
}

// view attaches the vehicle description.  A missing vehicle leaves the block
// empty.
func (s *ApprovalService) view(ctx context.Context, a types.ExitApproval) types.ApprovalView {
	out := types.ApprovalView{ExitApproval: a}
	v, err := s.store.Vehicles().GetVehicle(ctx, a.TenantID, a.VehicleID)
	if err != nil {
		s.log.Debug("approval vehicle unavailable",
			zap.String("approval_id", a.ID),
			zap.String("vehicle_id", a.VehicleID),
			zap.Error(err))
		return out
	}
	out.Vehicle = v.Summary()
	return out
}

func approvalEvent(a types.ExitApproval, kind types.EventKind, actorID, details string) types.GateEvent {
	return types.GateEvent{
		TenantID:   a.TenantID,
		SessionID:  a.SessionID,
		VehicleID:  a.VehicleID,
		ResidentID: a.ResidentID,
		Kind:       kind,
		ActorID:    actorID,
		Details:    details,
		Success:    kind != types.EventRemoteApprovalExpired,
	}
}
