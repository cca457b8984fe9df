// Package store declares the persistence boundary of the gate core.  The
// memory and sqlite subpackages implement it; redisbl provides an alternative
// blacklist backend.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

var (
	// ErrNotFound is returned when a record does not exist in the tenant.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write would violate a uniqueness
	// guarantee, most importantly a second OPEN session for a vehicle.
	ErrConflict = errors.New("store: conflict")
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// Page selects a window of a list query.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type SessionFilter struct {
	VehicleID string
	Status    types.SessionStatus
}

type EventFilter struct {
	SessionID string
	VehicleID string
	VisitorID string
	Kind      types.EventKind
}

type VehicleRepo interface {
	GetVehicle(ctx context.Context, tenantID, id string) (types.Vehicle, error)
	// FindVehicleByCode matches a normalized plate or tag code.
	FindVehicleByCode(ctx context.Context, tenantID, code string) (types.Vehicle, error)
}

type SessionRepo interface {
	GetSession(ctx context.Context, tenantID, id string) (types.GateSession, error)
	FindOpenSession(ctx context.Context, tenantID, vehicleID string) (types.GateSession, error)
	// CreateSession returns ErrConflict if the vehicle already has an OPEN
	// session.
	CreateSession(ctx context.Context, s types.GateSession) error
	// CloseSession persists the exit fields of an OPEN session.  It returns
	// ErrNotFound if the session is missing or no longer OPEN.
	CloseSession(ctx context.Context, s types.GateSession) error
	ListSessions(ctx context.Context, tenantID string, f SessionFilter, p Page) ([]types.GateSession, int, error)
}

type ApprovalRepo interface {
	GetApproval(ctx context.Context, tenantID, id string) (types.ExitApproval, error)
	CreateApproval(ctx context.Context, a types.ExitApproval) error
	UpdateApproval(ctx context.Context, a types.ExitApproval) error
	// ListApprovalsByResident returns the resident's requests in the given
	// status, oldest first.
	ListApprovalsByResident(ctx context.Context, tenantID, residentID string, status types.ApprovalStatus) ([]types.ExitApproval, error)
	// LatestApprovalForSession returns the newest request for the session in
	// the given status.
	LatestApprovalForSession(ctx context.Context, tenantID, sessionID string, status types.ApprovalStatus) (types.ExitApproval, error)
	// ListStalePending returns PENDING requests whose expiry is before now,
	// across all tenants.
	ListStalePending(ctx context.Context, now time.Time, limit int) ([]types.ExitApproval, error)
}

type VisitorRepo interface {
	GetVisitor(ctx context.Context, tenantID, id string) (types.Visitor, error)
	UpdateVisitor(ctx context.Context, v types.Visitor) error
}

type PassRepo interface {
	GetPassByToken(ctx context.Context, tenantID, token string) (types.VisitPass, error)
	// FindActivePassByCode looks up an ACTIVE pass by verification code.
	FindActivePassByCode(ctx context.Context, tenantID, code string) (types.VisitPass, error)
	// LatestActivePass returns the visitor's most recently created ACTIVE
	// pass.
	LatestActivePass(ctx context.Context, tenantID, visitorID string) (types.VisitPass, error)
	ListActivePasses(ctx context.Context, tenantID, visitorID string) ([]types.VisitPass, error)
	CreatePass(ctx context.Context, p types.VisitPass) error
	UpdatePass(ctx context.Context, p types.VisitPass) error
}

// Repos is the set of repositories a unit of work may touch.
type Repos interface {
	Vehicles() VehicleRepo
	Sessions() SessionRepo
	Approvals() ApprovalRepo
	Visitors() VisitorRepo
	Passes() PassRepo
}

// Store is the transactional entry point for the gate services.
type Store interface {
	Repos
	// Atomic runs fn as one unit of work.  Reads and writes made through the
	// Repos handed to fn are isolated from concurrent units; returning an
	// error discards the writes.
	Atomic(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}

// BlacklistStore is the tenant-scoped denylist.  Values are normalized by the
// caller.
type BlacklistStore interface {
	IsPlateBlacklisted(ctx context.Context, tenantID, plate string) (bool, error)
	IsPhoneBlacklisted(ctx context.Context, tenantID, phone string) (bool, error)
}

// GateEventStore persists the gate access log.
type GateEventStore interface {
	AppendEvent(ctx context.Context, ev types.GateEvent) error
	ListEvents(ctx context.Context, tenantID string, f EventFilter, p Page) ([]types.GateEvent, int, error)
}
