package memory

import (
	"context"
	"slices"
	"time"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

// ── Vehicles ────────────────────────────────────────────────────────────────

func (r repos) GetVehicle(_ context.Context, tenantID, id string) (types.Vehicle, error) {
	var (
		v  types.Vehicle
		ok bool
	)
	r.read(func(d *data) { v, ok = d.vehicles[id] })
	if !ok || v.TenantID != tenantID {
		return types.Vehicle{}, store.ErrNotFound
	}
	return v, nil
}

func (r repos) FindVehicleByCode(_ context.Context, tenantID, code string) (types.Vehicle, error) {
	var (
		found types.Vehicle
		ok    bool
	)
	r.read(func(d *data) {
		for _, v := range d.vehicles {
			if v.TenantID != tenantID {
				continue
			}
			if v.Plate == code || (v.TagCode != "" && v.TagCode == code) {
				found, ok = v, true
				return
			}
		}
	})
	if !ok || code == "" {
		return types.Vehicle{}, store.ErrNotFound
	}
	return found, nil
}

// ── Sessions ────────────────────────────────────────────────────────────────

func (r repos) GetSession(_ context.Context, tenantID, id string) (types.GateSession, error) {
	var (
		s  types.GateSession
		ok bool
	)
	r.read(func(d *data) { s, ok = d.sessions[id] })
	if !ok || s.TenantID != tenantID {
		return types.GateSession{}, store.ErrNotFound
	}
	return s, nil
}

func (r repos) FindOpenSession(_ context.Context, tenantID, vehicleID string) (types.GateSession, error) {
	var (
		s  types.GateSession
		ok bool
	)
	r.read(func(d *data) { s, ok = d.openSession(tenantID, vehicleID) })
	if !ok {
		return types.GateSession{}, store.ErrNotFound
	}
	return s, nil
}

func (d *data) openSession(tenantID, vehicleID string) (types.GateSession, bool) {
	for _, s := range d.sessions {
		if s.TenantID == tenantID && s.VehicleID == vehicleID && s.Status == types.SessionOpen {
			return s, true
		}
	}
	return types.GateSession{}, false
}

func (r repos) CreateSession(_ context.Context, s types.GateSession) error {
	return r.write(func(d *data) error {
		if _, exists := d.sessions[s.ID]; exists {
			return store.ErrConflict
		}
		if s.Status == types.SessionOpen {
			if _, open := d.openSession(s.TenantID, s.VehicleID); open {
				return store.ErrConflict
			}
		}
		d.sessions[s.ID] = s
		d.sessionOrder = append(d.sessionOrder, s.ID)
		return nil
	})
}

func (r repos) CloseSession(_ context.Context, s types.GateSession) error {
	return r.write(func(d *data) error {
		cur, ok := d.sessions[s.ID]
		if !ok || cur.TenantID != s.TenantID || cur.Status != types.SessionOpen {
			return store.ErrNotFound
		}
		cur.Status = types.SessionClosed
		cur.ExitAt = s.ExitAt
		cur.ExitGuard = s.ExitGuard
		cur.ExitNote = s.ExitNote
		cur.ExitMethod = s.ExitMethod
		d.sessions[s.ID] = cur
		return nil
	})
}

// ListSessions returns matching sessions newest first.
func (r repos) ListSessions(_ context.Context, tenantID string, f store.SessionFilter, p store.Page) ([]types.GateSession, int, error) {
	var out []types.GateSession
	r.read(func(d *data) {
		for _, id := range slices.Backward(d.sessionOrder) {
			s := d.sessions[id]
			if s.TenantID != tenantID {
				continue
			}
			if f.VehicleID != "" && s.VehicleID != f.VehicleID {
				continue
			}
			if f.Status != "" && s.Status != f.Status {
				continue
			}
			out = append(out, s)
		}
	})
	return paginate(out, p), len(out), nil
}

// ── Approvals ───────────────────────────────────────────────────────────────

func (r repos) GetApproval(_ context.Context, tenantID, id string) (types.ExitApproval, error) {
	var (
		a  types.ExitApproval
		ok bool
	)
	r.read(func(d *data) { a, ok = d.approvals[id] })
	if !ok || a.TenantID != tenantID {
		return types.ExitApproval{}, store.ErrNotFound
	}
	return a, nil
}

func (r repos) CreateApproval(_ context.Context, a types.ExitApproval) error {
	return r.write(func(d *data) error {
		if _, exists := d.approvals[a.ID]; exists {
			return store.ErrConflict
		}
		d.approvals[a.ID] = a
		d.approvalOrder = append(d.approvalOrder, a.ID)
		return nil
	})
}

func (r repos) UpdateApproval(_ context.Context, a types.ExitApproval) error {
	return r.write(func(d *data) error {
		cur, ok := d.approvals[a.ID]
		if !ok || cur.TenantID != a.TenantID {
			return store.ErrNotFound
		}
		d.approvals[a.ID] = a
		return nil
	})
}

func (r repos) ListApprovalsByResident(_ context.Context, tenantID, residentID string, status types.ApprovalStatus) ([]types.ExitApproval, error) {
	var out []types.ExitApproval
	r.read(func(d *data) {
		for _, id := range d.approvalOrder {
			a := d.approvals[id]
			if a.TenantID == tenantID && a.ResidentID == residentID && a.Status == status {
				out = append(out, a)
			}
		}
	})
	return out, nil
}

func (r repos) LatestApprovalForSession(_ context.Context, tenantID, sessionID string, status types.ApprovalStatus) (types.ExitApproval, error) {
	var (
		found types.ExitApproval
		ok    bool
	)
	r.read(func(d *data) {
		for _, id := range slices.Backward(d.approvalOrder) {
			a := d.approvals[id]
			if a.TenantID == tenantID && a.SessionID == sessionID && a.Status == status {
				found, ok = a, true
				return
			}
		}
	})
	if !ok {
		return types.ExitApproval{}, store.ErrNotFound
	}
	return found, nil
}

func (r repos) ListStalePending(_ context.Context, now time.Time, limit int) ([]types.ExitApproval, error) {
	var out []types.ExitApproval
	r.read(func(d *data) {
		for _, id := range d.approvalOrder {
			if limit > 0 && len(out) >= limit {
				return
			}
			if a := d.approvals[id]; a.ExpiredAt(now) {
				out = append(out, a)
			}
		}
	})
	return out, nil
}

// ── Visitors ────────────────────────────────────────────────────────────────

func (r repos) GetVisitor(_ context.Context, tenantID, id string) (types.Visitor, error) {
	var (
		v  types.Visitor
		ok bool
	)
	r.read(func(d *data) { v, ok = d.visitors[id] })
	if !ok || v.TenantID != tenantID {
		return types.Visitor{}, store.ErrNotFound
	}
	return v, nil
}

func (r repos) UpdateVisitor(_ context.Context, v types.Visitor) error {
	return r.write(func(d *data) error {
		cur, ok := d.visitors[v.ID]
		if !ok || cur.TenantID != v.TenantID {
			return store.ErrNotFound
		}
		d.visitors[v.ID] = v
		return nil
	})
}

// ── Passes ──────────────────────────────────────────────────────────────────

func (r repos) findPass(match func(p types.VisitPass) bool, newestFirst bool) (types.VisitPass, bool) {
	var (
		found types.VisitPass
		ok    bool
	)
	r.read(func(d *data) {
		order := d.passOrder
		if newestFirst {
			order = slices.Clone(order)
			slices.Reverse(order)
		}
		for _, id := range order {
			if p := d.passes[id]; match(p) {
				found, ok = p, true
				return
			}
		}
	})
	return found, ok
}

func (r repos) GetPassByToken(_ context.Context, tenantID, token string) (types.VisitPass, error) {
	p, ok := r.findPass(func(p types.VisitPass) bool {
		return p.TenantID == tenantID && p.Token == token
	}, false)
	if !ok || token == "" {
		return types.VisitPass{}, store.ErrNotFound
	}
	return p, nil
}

func (r repos) FindActivePassByCode(_ context.Context, tenantID, code string) (types.VisitPass, error) {
	p, ok := r.findPass(func(p types.VisitPass) bool {
		return p.TenantID == tenantID && p.Status == types.PassActive && p.VerificationCode == code
	}, true)
	if !ok || code == "" {
		return types.VisitPass{}, store.ErrNotFound
	}
	return p, nil
}

func (r repos) LatestActivePass(_ context.Context, tenantID, visitorID string) (types.VisitPass, error) {
	p, ok := r.findPass(func(p types.VisitPass) bool {
		return p.TenantID == tenantID && p.VisitorID == visitorID && p.Status == types.PassActive
	}, true)
	if !ok {
		return types.VisitPass{}, store.ErrNotFound
	}
	return p, nil
}

func (r repos) ListActivePasses(_ context.Context, tenantID, visitorID string) ([]types.VisitPass, error) {
	var out []types.VisitPass
	r.read(func(d *data) {
		for _, id := range d.passOrder {
			p := d.passes[id]
			if p.TenantID == tenantID && p.VisitorID == visitorID && p.Status == types.PassActive {
				out = append(out, p)
			}
		}
	})
	return out, nil
}

func (r repos) CreatePass(_ context.Context, p types.VisitPass) error {
	return r.write(func(d *data) error {
		if _, exists := d.passes[p.ID]; exists {
			return store.ErrConflict
		}
		for _, other := range d.passes {
			if other.TenantID != p.TenantID {
				continue
			}
			if other.PassCode == p.PassCode || other.Token == p.Token {
				return store.ErrConflict
			}
			if other.Status == types.PassActive && p.Status == types.PassActive &&
				other.VerificationCode == p.VerificationCode {
				return store.ErrConflict
			}
		}
		d.passes[p.ID] = p
		d.passOrder = append(d.passOrder, p.ID)
		return nil
	})
}

func (r repos) UpdatePass(_ context.Context, p types.VisitPass) error {
	return r.write(func(d *data) error {
		cur, ok := d.passes[p.ID]
		if !ok || cur.TenantID != p.TenantID {
			return store.ErrNotFound
		}
		if p.MaxEntries != nil && p.UsedEntries > *p.MaxEntries {
			return store.ErrConflict
		}
		d.passes[p.ID] = p
		return nil
	})
}
