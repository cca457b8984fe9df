// Package memory is an in-process implementation of the gate store, used in
// tests and dev environments.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/normalize"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

// Store keeps all gate state in maps.  txMu serializes units of work, and mu
// guards the maps themselves so reads outside a unit stay consistent.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	d    data
}

type data struct {
	vehicles  map[string]types.Vehicle
	visitors  map[string]types.Visitor
	sessions  map[string]types.GateSession
	approvals map[string]types.ExitApproval
	passes    map[string]types.VisitPass

	// insertion order, oldest first
	sessionOrder  []string
	approvalOrder []string
	passOrder     []string
}

func (d data) clone() data {
	return data{
		vehicles:      maps.Clone(d.vehicles),
		visitors:      maps.Clone(d.visitors),
		sessions:      maps.Clone(d.sessions),
		approvals:     maps.Clone(d.approvals),
		passes:        maps.Clone(d.passes),
		sessionOrder:  append([]string(nil), d.sessionOrder...),
		approvalOrder: append([]string(nil), d.approvalOrder...),
		passOrder:     append([]string(nil), d.passOrder...),
	}
}

func New() *Store {
	return &Store{d: data{
		vehicles:  make(map[string]types.Vehicle),
		visitors:  make(map[string]types.Visitor),
		sessions:  make(map[string]types.GateSession),
		approvals: make(map[string]types.ExitApproval),
		passes:    make(map[string]types.VisitPass),
	}}
}

var _ store.Store = (*Store)(nil)

// Atomic runs fn while holding the write lock for the whole unit.  If fn
// fails the maps are restored to their state before the call.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, r store.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.d.clone()
	s.mu.RUnlock()

	if err := fn(ctx, repos{s: s, inTx: true}); err != nil {
		s.mu.Lock()
		s.d = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Vehicles() store.VehicleRepo   { return repos{s: s} }
func (s *Store) Sessions() store.SessionRepo   { return repos{s: s} }
func (s *Store) Approvals() store.ApprovalRepo { return repos{s: s} }
func (s *Store) Visitors() store.VisitorRepo   { return repos{s: s} }
func (s *Store) Passes() store.PassRepo        { return repos{s: s} }

// PutVehicle inserts or replaces a vehicle, normalizing its plate and tag
// code.  Vehicles are owned by the estate registry; this is the seeding hook.
func (s *Store) PutVehicle(v types.Vehicle) {
	v.Plate = normalize.Plate(v.Plate)
	v.TagCode = normalize.Code(v.TagCode)
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.vehicles[v.ID] = v
}

// PutVisitor inserts or replaces a visitor, normalizing phone and plate.
func (s *Store) PutVisitor(v types.Visitor) {
	v.Phone = normalize.Phone(v.Phone)
	v.VehiclePlate = normalize.Plate(v.VehiclePlate)
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.visitors[v.ID] = v
}

// repos implements every repository over the shared maps.  Writes made
// outside Atomic take txMu themselves so they cannot interleave with a unit
// of work.
type repos struct {
	s    *Store
	inTx bool
}

func (r repos) Vehicles() store.VehicleRepo   { return r }
func (r repos) Sessions() store.SessionRepo   { return r }
func (r repos) Approvals() store.ApprovalRepo { return r }
func (r repos) Visitors() store.VisitorRepo   { return r }
func (r repos) Passes() store.PassRepo        { return r }

// write runs fn with the maps locked for writing.
func (r repos) write(fn func(d *data) error) error {
	if !r.inTx {
		r.s.txMu.Lock()
		defer r.s.txMu.Unlock()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return fn(&r.s.d)
}

func (r repos) read(fn func(d *data)) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	fn(&r.s.d)
}

func paginate[T any](rows []T, p store.Page) []T {
	p = p.Normalize()
	if p.Offset >= len(rows) {
		return []T{}
	}
	end := min(p.Offset+p.Limit, len(rows))
	return rows[p.Offset:end]
}
