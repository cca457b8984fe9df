package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/gateerr"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/normalize"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/token"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
	"github.com/BrandonDHaskell/gatehouse/internal/reqctx"
)

const verificationCodeAttempts = 5

type VisitOptions struct {
	// Location is the estate time zone for recurring windows.  Defaults to
	// UTC.
	Location *time.Location
}

// VisitService issues visit passes and admits visitors against them.
type VisitService struct {
	base
	blacklist store.BlacklistStore
	codec     *token.Codec
	loc       *time.Location
}

func NewVisitService(d Deps, blacklist store.BlacklistStore, visitorCodec *token.Codec, opts VisitOptions) *VisitService {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &VisitService{
		base:      newBase(d, "visits"),
		blacklist: blacklist,
		codec:     visitorCodec,
		loc:       loc,
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *VisitService) WithClock(now func() time.Time) *VisitService {
	s.now = now
	return s
}

// ═══════════════════════════════════════════════════════════════════════════
// Pass issuance
// ═══════════════════════════════════════════════════════════════════════════

// IssuePass creates an ACTIVE pass for a visitor.
func (s *VisitService) IssuePass(ctx context.Context, visitorID string, spec types.PassSpec) (types.VisitPass, error) {
	tenantID, _, err := reqctx.Require(ctx)
	if err != nil {
		return types.VisitPass{}, err
	}
	spec, err = s.checkSpec(spec)
	if err != nil {
		return types.VisitPass{}, err
	}

	var p types.VisitPass
	err = s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		v, err := r.Visitors().GetVisitor(ctx, tenantID, visitorID)
		if err != nil {
			return lookupErr(err, "visitor")
		}
		if v.Status == types.VisitorRevoked {
			return gateerr.InvalidState("visitor has been revoked")
		}
		p, err = s.createPass(ctx, r, v, spec)
		return err
	})
	if err != nil {
		return types.VisitPass{}, err
	}
	return p, nil
}

// RegeneratePass revokes the visitor's newest ACTIVE pass and issues a fresh
// one with the same type, window, quota and recurrence.
func (s *VisitService) RegeneratePass(ctx context.Context, visitorID string) (types.VisitPass, error) {
	tenantID, _, err := reqctx.Require(ctx)
	if err != nil {
		return types.VisitPass{}, err
	}

	var p types.VisitPass
	err = s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		v, err := r.Visitors().GetVisitor(ctx, tenantID, visitorID)
		if err != nil {
			return lookupErr(err, "visitor")
		}
		old, err := r.Passes().LatestActivePass(ctx, tenantID, visitorID)
		if err != nil {
			return lookupErr(err, "active pass")
		}

		old.Status = types.PassRevoked
		if err := r.Passes().UpdatePass(ctx, old); err != nil {
			return fmt.Errorf("revoke pass: %w", err)
		}

		spec, err := s.checkSpec(old.Spec())
		if err != nil {
			return err
		}
		p, err = s.createPass(ctx, r, v, spec)
		return err
	})
	if err != nil {
		return types.VisitPass{}, err
	}
	return p, nil
}

// checkSpec validates and canonicalizes a pass configuration.
func (s *VisitService) checkSpec(spec types.PassSpec) (types.PassSpec, error) {
	switch spec.Type {
	case types.PassSingleUse, types.PassMultiUse, types.PassRecurring:
	default:
		return spec, gateerr.Newf(gateerr.KindInvalid, "unknown pass type %q", spec.Type)
	}
	if spec.ValidFrom.IsZero() || spec.ValidTo.IsZero() {
		return spec, gateerr.Invalid("valid_from and valid_to are required")
	}
	if !spec.ValidTo.After(spec.ValidFrom) {
		return spec, gateerr.Invalid("valid_to must be after valid_from")
	}
	if !spec.ValidTo.After(s.now()) {
		return spec, gateerr.Invalid("valid_to is in the past")
	}
	spec.ValidFrom = spec.ValidFrom.UTC()
	spec.ValidTo = spec.ValidTo.UTC()

	if spec.MaxEntries != nil && *spec.MaxEntries < 1 {
		return spec, gateerr.Invalid("max_entries must be at least 1")
	}
	if spec.Type == types.PassSingleUse {
		one := 1
		spec.MaxEntries = &one
	}

	if spec.Type != types.PassRecurring {
		spec.RecurringDays, spec.RecurringStart, spec.RecurringEnd = nil, "", ""
		return spec, nil
	}
	days, err := parseDays(spec.RecurringDays)
	if err != nil {
		return spec, gateerr.Wrap(gateerr.KindInvalid, "bad recurring_days", err)
	}
	spec.RecurringDays = days
	if (spec.RecurringStart == "") != (spec.RecurringEnd == "") {
		return spec, gateerr.Invalid("recurring_start and recurring_end go together")
	}
	for _, t := range []string{spec.RecurringStart, spec.RecurringEnd} {
		if t == "" {
			continue
		}
		if _, err := parseClock(t); err != nil {
			return spec, gateerr.Wrap(gateerr.KindInvalid, "bad recurring window", err)
		}
	}
	return spec, nil
}

func (s *VisitService) createPass(ctx context.Context, r store.Repos, v types.Visitor, spec types.PassSpec) (types.VisitPass, error) {
	now := s.now()
	passCode := newPassCode()

	owner := v.ResidentID
	if owner == "" {
		owner = v.ID
	}
	tok, _, err := s.codec.Issue(passCode, owner, v.TenantID, spec.ValidTo.Sub(now))
	if err != nil {
		return types.VisitPass{}, gateerr.Wrap(gateerr.KindInvalid, "cannot sign visit pass", err)
	}

	code, err := s.uniqueVerificationCode(ctx, r, v.TenantID)
	if err != nil {
		return types.VisitPass{}, err
	}

	p := types.VisitPass{
		ID:               uuid.NewString(),
		TenantID:         v.TenantID,
		VisitorID:        v.ID,
		PassCode:         passCode,
		Token:            tok,
		VerificationCode: code,
		Type:             spec.Type,
		Status:           types.PassActive,
		ValidFrom:        spec.ValidFrom,
		ValidTo:          spec.ValidTo,
		MaxEntries:       spec.MaxEntries,
		RecurringDays:    spec.RecurringDays,
		RecurringStart:   spec.RecurringStart,
		RecurringEnd:     spec.RecurringEnd,
		CreatedAt:        now,
	}
	if err := r.Passes().CreatePass(ctx, p); err != nil {
		return types.VisitPass{}, fmt.Errorf("create pass: %w", err)
	}
	return p, nil
}

func (s *VisitService) uniqueVerificationCode(ctx context.Context, r store.Repos, tenantID string) (string, error) {
	for range verificationCodeAttempts {
		code, err := newVerificationCode()
		if err != nil {
			return "", fmt.Errorf("verification code: %w", err)
		}
		_, err = r.Passes().FindActivePassByCode(ctx, tenantID, code)
		if errors.Is(err, store.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("check verification code: %w", err)
		}
	}
	return "", fmt.Errorf("no free verification code after %d attempts", verificationCodeAttempts)
}

// newPassCode returns a printable pass reference such as "VP-3F2A9C01BE".
func newPassCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "VP-" + strings.ToUpper(id[:10])
}

// newVerificationCode returns six random digits.
func newVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Check-in / check-out
// ═══════════════════════════════════════════════════════════════════════════

// CheckIn admits a visitor presenting a signed pass token or a verification
// code.  Every refusal is recorded on the access log.
func (s *VisitService) CheckIn(ctx context.Context, req types.CheckInRequest) (types.CheckInResult, error) {
	tenantID, guardID, err := reqctx.Require(ctx)
	if err != nil {
		return types.CheckInResult{}, err
	}

	failed := types.GateEvent{
		TenantID: tenantID,
		Kind:     types.EventVisitorPassFailed,
		ActorID:  guardID,
	}
	refuse := func(err error, details string) (types.CheckInResult, error) {
		failed.Details = details
		s.emit(ctx, failed)
		return types.CheckInResult{}, err
	}

	tok := strings.TrimSpace(req.Token)
	code := normalize.Code(req.VerificationCode)
	if tok == "" && code == "" {
		return refuse(gateerr.AccessDenied("a pass token or verification code is required"), "no credentials")
	}

	pass, err := s.findPass(ctx, tenantID, tok, code)
	var tokenErr *tokenRejected
	switch {
	case errors.As(err, &tokenErr):
		return refuse(gateerr.AccessDenied("pass token rejected: "+tokenErr.res.String()), "token "+tokenErr.res.String())
	case errors.Is(err, store.ErrNotFound):
		return refuse(gateerr.NotFound("pass not found"), "pass not found")
	case err != nil:
		return types.CheckInResult{}, fmt.Errorf("find pass: %w", err)
	}
	failed.VisitorID = pass.VisitorID

	visitor, err := s.store.Visitors().GetVisitor(ctx, tenantID, pass.VisitorID)
	if err != nil {
		return types.CheckInResult{}, lookupErr(err, "visitor")
	}
	failed.ResidentID = visitor.ResidentID

	if pass.Status != types.PassActive {
		return refuse(gateerr.AccessDenied("pass is "+strings.ToLower(string(pass.Status))), "pass "+strings.ToLower(string(pass.Status)))
	}

	if hit, what, err := s.blacklisted(ctx, tenantID, visitor); err != nil {
		return types.CheckInResult{}, err
	} else if hit {
		failed.Kind = types.EventVisitorDeniedBlacklist
		return refuse(gateerr.Blacklisted("visitor is blacklisted"), what+" blacklisted")
	}

	now := s.now()
	err = s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		// Re-read under the unit of work: a concurrent check-in may have
		// consumed the last entry.
		var err error
		pass, err = r.Passes().GetPassByToken(ctx, tenantID, pass.Token)
		if err != nil {
			return lookupErr(err, "pass")
		}
		visitor, err = r.Visitors().GetVisitor(ctx, tenantID, pass.VisitorID)
		if err != nil {
			return lookupErr(err, "visitor")
		}

		if ok, why := s.admissible(pass, now); !ok {
			failed.Details = why
			return deny(gateerr.AccessDenied("pass not valid: "+why), failed)
		}

		pass.UsedEntries++
		if pass.Type == types.PassSingleUse {
			pass.Status = types.PassUsed
		}
		if err := r.Passes().UpdatePass(ctx, pass); err != nil {
			return fmt.Errorf("update pass: %w", err)
		}

		visitor.Status = types.VisitorCheckedIn
		visitor.CheckedInAt = &now
		if err := r.Visitors().UpdateVisitor(ctx, visitor); err != nil {
			return fmt.Errorf("update visitor: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.CheckInResult{}, s.settle(ctx, err)
	}

	ok := types.GateEvent{
		TenantID:   tenantID,
		ResidentID: visitor.ResidentID,
		VisitorID:  visitor.ID,
		ActorID:    guardID,
		Success:    true,
	}
	ok.Kind = types.EventVisitorPassValidated
	ok.Details = pass.PassCode
	s.emit(ctx, ok)
	ok.Kind = types.EventVisitorCheckIn
	ok.Details = ""
	s.emit(ctx, ok)

	return types.CheckInResult{Visitor: visitor, Pass: pass}, nil
}

type tokenRejected struct{ res token.Result }

func (e *tokenRejected) Error() string { return "token " + e.res.String() }

// findPass resolves the pass by token when one is presented, else by
// verification code among ACTIVE passes.
func (s *VisitService) findPass(ctx context.Context, tenantID, tok, code string) (types.VisitPass, error) {
	if tok == "" {
		return s.store.Passes().FindActivePassByCode(ctx, tenantID, code)
	}

	claims, res := s.codec.Inspect(tok, tenantID)
	if res != token.Valid {
		return types.VisitPass{}, &tokenRejected{res: res}
	}
	p, err := s.store.Passes().GetPassByToken(ctx, tenantID, tok)
	if err != nil {
		return types.VisitPass{}, err
	}
	if p.PassCode != claims.Subject {
		return types.VisitPass{}, &tokenRejected{res: token.SubjectMismatch}
	}
	return p, nil
}

// blacklisted checks the visitor's phone and vehicle plate.
func (s *VisitService) blacklisted(ctx context.Context, tenantID string, v types.Visitor) (bool, string, error) {
	if s.blacklist == nil {
		return false, "", nil
	}
	if phone := normalize.Phone(v.Phone); phone != "" {
		hit, err := s.blacklist.IsPhoneBlacklisted(ctx, tenantID, phone)
		if err != nil {
			return false, "", fmt.Errorf("blacklist phone lookup: %w", err)
		}
		if hit {
			return true, "phone", nil
		}
	}
	if plate := normalize.Plate(v.VehiclePlate); plate != "" {
		hit, err := s.blacklist.IsPlateBlacklisted(ctx, tenantID, plate)
		if err != nil {
			return false, "", fmt.Errorf("blacklist plate lookup: %w", err)
		}
		if hit {
			return true, "plate", nil
		}
	}
	return false, "", nil
}

// admissible applies status, window, recurrence and quota in that order.
func (s *VisitService) admissible(p types.VisitPass, now time.Time) (bool, string) {
	if p.Status != types.PassActive {
		return false, "pass " + strings.ToLower(string(p.Status))
	}
	if now.Before(p.ValidFrom) {
		return false, "not yet valid"
	}
	if now.After(p.ValidTo) {
		return false, "expired"
	}
	if p.Type == types.PassRecurring {
		if ok, why := recurringAllows(p, now.In(s.loc)); !ok {
			return false, why
		}
	}
	if p.MaxEntries != nil && p.UsedEntries >= *p.MaxEntries {
		return false, "quota exhausted"
	}
	return true, ""
}

// CheckOut records a checked-in visitor leaving.
func (s *VisitService) CheckOut(ctx context.Context, visitorID string) (types.Visitor, error) {
	tenantID, guardID, err := reqctx.Require(ctx)
	if err != nil {
		return types.Visitor{}, err
	}

	now := s.now()
	var v types.Visitor
	err = s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		v, err = r.Visitors().GetVisitor(ctx, tenantID, visitorID)
		if err != nil {
			return lookupErr(err, "visitor")
		}
		if v.Status != types.VisitorCheckedIn {
			return deny(gateerr.AccessDenied("visitor is not checked in"), types.GateEvent{
				TenantID:   tenantID,
				ResidentID: v.ResidentID,
				VisitorID:  v.ID,
				Kind:       types.EventVisitorCheckOut,
				ActorID:    guardID,
				Details:    "visitor " + strings.ToLower(string(v.Status)),
			})
		}
		v.Status = types.VisitorCheckedOut
		v.CheckedOutAt = &now
		if err := r.Visitors().UpdateVisitor(ctx, v); err != nil {
			return fmt.Errorf("update visitor: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.Visitor{}, s.settle(ctx, err)
	}

	s.emit(ctx, types.GateEvent{
		TenantID:   tenantID,
		ResidentID: v.ResidentID,
		VisitorID:  v.ID,
		Kind:       types.EventVisitorCheckOut,
		ActorID:    guardID,
		Success:    true,
	})
	return v, nil
}

// RevokeVisitor revokes every ACTIVE pass of the visitor and marks the
// visitor REVOKED.
func (s *VisitService) RevokeVisitor(ctx context.Context, visitorID string) (types.Visitor, error) {
	tenantID, _, err := reqctx.Require(ctx)
	if err != nil {
		return types.Visitor{}, err
	}

	var v types.Visitor
	err = s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		v, err = r.Visitors().GetVisitor(ctx, tenantID, visitorID)
		if err != nil {
			return lookupErr(err, "visitor")
		}
		passes, err := r.Passes().ListActivePasses(ctx, tenantID, visitorID)
		if err != nil {
			return fmt.Errorf("list passes: %w", err)
		}
		for _, p := range passes {
			p.Status = types.PassRevoked
			if err := r.Passes().UpdatePass(ctx, p); err != nil {
				return fmt.Errorf("revoke pass %s: %w", p.ID, err)
			}
		}
		v.Status = types.VisitorRevoked
		if err := r.Visitors().UpdateVisitor(ctx, v); err != nil {
			return fmt.Errorf("update visitor: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.Visitor{}, err
	}
	return v, nil
}
