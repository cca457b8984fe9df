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
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/normalize"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/token"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
	"github.com/BrandonDHaskell/gatehouse/internal/reqctx"
)

// SessionService runs the gate session state machine: a vehicle enters and
// opens a session, and leaves by presenting an exit pass or after a resident
// approves its exit.  A vehicle has at most one OPEN session per tenant.
type SessionService struct {
	base
	exitCodec   *token.Codec
	exitPassTTL time.Duration
}

func NewSessionService(d Deps, exitCodec *token.Codec, exitPassTTL time.Duration) *SessionService {
	return &SessionService{
		base:        newBase(d, "sessions"),
		exitCodec:   exitCodec,
		exitPassTTL: exitPassTTL,
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// Entry admits a vehicle identified by plate or tag code and opens a session
// for it.
func (s *SessionService) Entry(ctx context.Context, req types.EntryRequest) (types.GateSession, error) {
	tenantID, guardID, err := reqctx.Require(ctx)
	if err != nil {
		return types.GateSession{}, err
	}
	code := normalize.Code(req.VehicleCode)
	if code == "" {
		return types.GateSession{}, gateerr.Invalid("vehicle_code is required")
	}

	now := s.now()
	var sess types.GateSession

	err = s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		failed := types.GateEvent{
			TenantID: tenantID,
			Kind:     types.EventEntryScan,
			ActorID:  guardID,
		}

		v, err := r.Vehicles().FindVehicleByCode(ctx, tenantID, code)
		if errors.Is(err, store.ErrNotFound) {
			failed.Details = "unknown vehicle " + code
			return deny(gateerr.NotFound("vehicle not found"), failed)
		}
		if err != nil {
			return fmt.Errorf("find vehicle: %w", err)
		}
		failed.VehicleID = v.ID
		failed.ResidentID = v.ResidentID

		if v.Status != types.VehicleActive {
			failed.Details = "vehicle " + strings.ToLower(string(v.Status))
			return deny(gateerr.AccessDenied("vehicle is not active"), failed)
		}

		open, err := r.Sessions().FindOpenSession(ctx, tenantID, v.ID)
		switch {
		case err == nil:
			failed.SessionID = open.ID
			failed.Details = "vehicle already inside"
			return deny(gateerr.AccessDenied("vehicle already has an open session"), failed)
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("find open session: %w", err)
		}

		sess = types.GateSession{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			VehicleID:  v.ID,
			ResidentID: v.ResidentID,
			Plate:      v.Plate,
			Status:     types.SessionOpen,
			EntryAt:    now,
			EntryGuard: guardID,
			EntryNote:  req.Note,
		}
		if err := r.Sessions().CreateSession(ctx, sess); err != nil {
			if errors.Is(err, store.ErrConflict) {
				failed.Details = "vehicle already inside"
				return deny(gateerr.AccessDenied("vehicle already has an open session"), failed)
			}
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.GateSession{}, s.settle(ctx, err)
	}

	s.emit(ctx, types.GateEvent{
		TenantID:   tenantID,
		SessionID:  sess.ID,
		VehicleID:  sess.VehicleID,
		ResidentID: sess.ResidentID,
		Kind:       types.EventEntryScan,
		ActorID:    guardID,
		Details:    req.Note,
		Success:    true,
	})
	s.log.Debug("vehicle entered",
		zap.String("tenant_id", tenantID),
		zap.String("session_id", sess.ID),
		zap.String("plate", sess.Plate))
	return sess, nil
}

// IssueExitPass signs an exit pass for one of the caller's vehicles.
func (s *SessionService) IssueExitPass(ctx context.Context, vehicleID string) (types.ExitPass, error) {
	tenantID, actorID, err := reqctx.Require(ctx)
	if err != nil {
		return types.ExitPass{}, err
	}
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return types.ExitPass{}, gateerr.Invalid("vehicle_id is required")
	}

	v, err := s.store.Vehicles().GetVehicle(ctx, tenantID, vehicleID)
	if err != nil {
		return types.ExitPass{}, lookupErr(err, "vehicle")
	}
	refuse := func(reason, details string) error {
		s.emit(ctx, types.GateEvent{
			TenantID:   tenantID,
			VehicleID:  v.ID,
			ResidentID: v.ResidentID,
			Kind:       types.EventExitPassFailed,
			ActorID:    actorID,
			Details:    details,
		})
		return gateerr.AccessDenied(reason)
	}
	if v.ResidentID != actorID {
		return types.ExitPass{}, refuse("vehicle belongs to another resident", "issue refused: actor is not the vehicle's resident")
	}
	if v.Status != types.VehicleActive {
		return types.ExitPass{}, refuse("vehicle is not active", "issue refused: vehicle "+strings.ToLower(string(v.Status)))
	}

	tok, expiresAt, err := s.exitCodec.Issue(v.ID, v.ResidentID, tenantID, s.exitPassTTL)
	if err != nil {
		return types.ExitPass{}, gateerr.Wrap(gateerr.KindInvalid, "cannot sign exit pass", err)
	}
	return types.ExitPass{VehicleID: v.ID, Token: tok, ExpiresAt: expiresAt}, nil
}

// ExitWithPass closes the vehicle's open session if the presented exit pass
// verifies.
func (s *SessionService) ExitWithPass(ctx context.Context, req types.ExitRequest) (types.GateSession, error) {
	tenantID, guardID, err := reqctx.Require(ctx)
	if err != nil {
		return types.GateSession{}, err
	}
	code := normalize.Code(req.VehicleCode)
	if code == "" {
		return types.GateSession{}, gateerr.Invalid("vehicle_code is required")
	}

	now := s.now()
	var sess types.GateSession

	err = s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		v, err := r.Vehicles().FindVehicleByCode(ctx, tenantID, code)
		if err != nil {
			return lookupErr(err, "vehicle")
		}
		sess, err = r.Sessions().FindOpenSession(ctx, tenantID, v.ID)
		if err != nil {
			return lookupErr(err, "open session")
		}

		if res := s.exitCodec.Check(req.Token, v.ID, tenantID); res != token.Valid {
			return deny(gateerr.AccessDenied("exit pass rejected: "+res.String()), types.GateEvent{
				TenantID:   tenantID,
				SessionID:  sess.ID,
				VehicleID:  v.ID,
				ResidentID: v.ResidentID,
				Kind:       types.EventExitPassFailed,
				ActorID:    guardID,
				Details:    res.String(),
			})
		}

		return closeSession(ctx, r, &sess, now, guardID, req.Note, types.ExitByPass)
	})
	if err != nil {
		return types.GateSession{}, s.settle(ctx, err)
	}

	ev := types.GateEvent{
		TenantID:   tenantID,
		SessionID:  sess.ID,
		VehicleID:  sess.VehicleID,
		ResidentID: sess.ResidentID,
		ActorID:    guardID,
		Success:    true,
	}
	ev.Kind = types.EventExitPassValidated
	s.emit(ctx, ev)
	ev.Kind = types.EventExitScan
	ev.Details = req.Note
	s.emit(ctx, ev)
	return sess, nil
}

// ExitWithApproval closes an open session whose exit a resident approved.
func (s *SessionService) ExitWithApproval(ctx context.Context, sessionID, note string) (types.GateSession, error) {
	tenantID, guardID, err := reqctx.Require(ctx)
	if err != nil {
		return types.GateSession{}, err
	}

	now := s.now()
	var (
		sess     types.GateSession
		approval types.ExitApproval
	)

	err = s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		sess, err = r.Sessions().GetSession(ctx, tenantID, sessionID)
		if err != nil {
			return lookupErr(err, "session")
		}
		if sess.Status != types.SessionOpen {
			return gateerr.InvalidState("session is already closed")
		}

		approval, err = r.Approvals().LatestApprovalForSession(ctx, tenantID, sessionID, types.ApprovalApproved)
		if errors.Is(err, store.ErrNotFound) {
			return deny(gateerr.AccessDenied("exit has not been approved"), types.GateEvent{
				TenantID:   tenantID,
				SessionID:  sess.ID,
				VehicleID:  sess.VehicleID,
				ResidentID: sess.ResidentID,
				Kind:       types.EventExitScan,
				ActorID:    guardID,
				Details:    "no approved remote exit",
			})
		}
		if err != nil {
			return fmt.Errorf("load approval: %w", err)
		}

		return closeSession(ctx, r, &sess, now, guardID, note, types.ExitByRemoteApproval)
	})
	if err != nil {
		return types.GateSession{}, s.settle(ctx, err)
	}

	s.emit(ctx, types.GateEvent{
		TenantID:   tenantID,
		SessionID:  sess.ID,
		VehicleID:  sess.VehicleID,
		ResidentID: sess.ResidentID,
		Kind:       types.EventExitScan,
		ActorID:    guardID,
		Details:    "remote approval " + approval.ID,
		Success:    true,
	})
	return sess, nil
}

func closeSession(ctx context.Context, r store.Repos, sess *types.GateSession, now time.Time, guardID, note string, method types.ExitMethod) error {
	sess.Status = types.SessionClosed
	sess.ExitAt = &now
	sess.ExitGuard = guardID
	sess.ExitNote = note
	sess.ExitMethod = method
	if err := r.Sessions().CloseSession(ctx, *sess); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return gateerr.NotFound("open session not found")
		}
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (s *SessionService) GetSession(ctx context.Context, id string) (types.GateSession, error) {
	tenantID, _, err := reqctx.Require(ctx)
	if err != nil {
		return types.GateSession{}, err
	}
	sess, err := s.store.Sessions().GetSession(ctx, tenantID, id)
	if err != nil {
		return types.GateSession{}, lookupErr(err, "session")
	}
	return sess, nil
}

// ListSessions returns a page of sessions, newest first, and the total count.
func (s *SessionService) ListSessions(ctx context.Context, f store.SessionFilter, p store.Page) ([]types.GateSession, int, error) {
	tenantID, _, err := reqctx.Require(ctx)
	if err != nil {
		return nil, 0, err
	}
	out, total, err := s.store.Sessions().ListSessions(ctx, tenantID, f, p.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	return out, total, nil
}

// ListEvents returns a page of the access log, newest first.
func (s *SessionService) ListEvents(ctx context.Context, f store.EventFilter, p store.Page) ([]types.GateEvent, int, error) {
	tenantID, _, err := reqctx.Require(ctx)
	if err != nil {
		return nil, 0, err
	}
	if s.eventLog == nil {
		return nil, 0, nil
	}
	out, total, err := s.eventLog.ListEvents(ctx, tenantID, f, p.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	return out, total, nil
}
