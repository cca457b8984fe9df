package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// Vehicles
// ═══════════════════════════════════════════════════════════════════════════

func (r repos) GetVehicle(ctx context.Context, tenantID, id string) (types.Vehicle, error) {
	var row vehicleRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT `+vehicleCols+` FROM vehicles WHERE tenant_id = ? AND id = ?;`, tenantID, id)
	if notFound(err) {
		return types.Vehicle{}, store.ErrNotFound
	}
	if err != nil {
		return types.Vehicle{}, fmt.Errorf("GetVehicle: %w", err)
	}
	return row.toVehicle(), nil
}

func (r repos) FindVehicleByCode(ctx context.Context, tenantID, code string) (types.Vehicle, error) {
	if code == "" {
		return types.Vehicle{}, store.ErrNotFound
	}
	var row vehicleRow
	err := sqlx.GetContext(ctx, r.q, &row, `
SELECT `+vehicleCols+` FROM vehicles
WHERE tenant_id = ? AND (plate = ? OR (tag_code <> '' AND tag_code = ?))
ORDER BY plate = ? DESC
LIMIT 1;`, tenantID, code, code, code)
	if notFound(err) {
		return types.Vehicle{}, store.ErrNotFound
	}
	if err != nil {
		return types.Vehicle{}, fmt.Errorf("FindVehicleByCode: %w", err)
	}
	return row.toVehicle(), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Sessions
// ═══════════════════════════════════════════════════════════════════════════

func (r repos) GetSession(ctx context.Context, tenantID, id string) (types.GateSession, error) {
	var row sessionRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT `+sessionCols+` FROM gate_sessions WHERE tenant_id = ? AND id = ?;`, tenantID, id)
	if notFound(err) {
		return types.GateSession{}, store.ErrNotFound
	}
	if err != nil {
		return types.GateSession{}, fmt.Errorf("GetSession: %w", err)
	}
	return row.toSession(), nil
}

func (r repos) FindOpenSession(ctx context.Context, tenantID, vehicleID string) (types.GateSession, error) {
	var row sessionRow
	err := sqlx.GetContext(ctx, r.q, &row, `
SELECT `+sessionCols+` FROM gate_sessions
WHERE tenant_id = ? AND vehicle_id = ? AND status = 'OPEN';`, tenantID, vehicleID)
	if notFound(err) {
		return types.GateSession{}, store.ErrNotFound
	}
	if err != nil {
		return types.GateSession{}, fmt.Errorf("FindOpenSession: %w", err)
	}
	return row.toSession(), nil
}

func (r repos) CreateSession(ctx context.Context, s types.GateSession) error {
	return r.write(ctx, func(ctx context.Context, q sqlx.ExtContext) error {
		_, err := sqlx.NamedExecContext(ctx, q, `
INSERT INTO gate_sessions(`+sessionCols+`)
VALUES (:id, :tenant_id, :vehicle_id, :resident_id, :plate, :status, :entry_at_ms, :entry_guard_id,
  :entry_note, :exit_at_ms, :exit_guard_id, :exit_note, :exit_method);`, toSessionRow(s))
		if err != nil {
			return fmt.Errorf("CreateSession: %w", mapErr(err))
		}
		return nil
	})
}

func (r repos) CloseSession(ctx context.Context, s types.GateSession) error {
	row := toSessionRow(s)
	return r.write(ctx, func(ctx context.Context, q sqlx.ExtContext) error {
		res, err := q.ExecContext(ctx, `
UPDATE gate_sessions
SET status = 'CLOSED', exit_at_ms = ?, exit_guard_id = ?, exit_note = ?, exit_method = ?
WHERE tenant_id = ? AND id = ? AND status = 'OPEN';`,
			row.ExitAtMs, row.ExitGuardID, row.ExitNote, row.ExitMethod, row.TenantID, row.ID)
		if err != nil {
			return fmt.Errorf("CloseSession: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("CloseSession rows: %w", err)
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (r repos) ListSessions(ctx context.Context, tenantID string, f store.SessionFilter, p store.Page) ([]types.GateSession, int, error) {
	p = p.Normalize()
	where := []string{"tenant_id = ?"}
	args := []any{tenantID}
	if f.VehicleID != "" {
		where = append(where, "vehicle_id = ?")
		args = append(args, f.VehicleID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, `SELECT COUNT(*) FROM gate_sessions WHERE `+cond+`;`, args...); err != nil {
		return nil, 0, fmt.Errorf("ListSessions count: %w", err)
	}

	var rows []sessionRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
SELECT `+sessionCols+` FROM gate_sessions WHERE `+cond+`
ORDER BY entry_at_ms DESC, rowid DESC
LIMIT ? OFFSET ?;`, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListSessions: %w", err)
	}

	out := make([]types.GateSession, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toSession())
	}
	return out, total, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Approvals
// ═══════════════════════════════════════════════════════════════════════════

func (r repos) GetApproval(ctx context.Context, tenantID, id string) (types.ExitApproval, error) {
	var row approvalRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT `+approvalCols+` FROM exit_approvals WHERE tenant_id = ? AND id = ?;`, tenantID, id)
	if notFound(err) {
		return types.ExitApproval{}, store.ErrNotFound
	}
	if err != nil {
		return types.ExitApproval{}, fmt.Errorf("GetApproval: %w", err)
	}
	return row.toApproval(), nil
}

func (r repos) CreateApproval(ctx context.Context, a types.ExitApproval) error {
	return r.write(ctx, func(ctx context.Context, q sqlx.ExtContext) error {
		_, err := sqlx.NamedExecContext(ctx, q, `
INSERT INTO exit_approvals(`+approvalCols+`)
VALUES (:id, :tenant_id, :session_id, :vehicle_id, :resident_id, :guard_id, :status,
  :created_at_ms, :expires_at_ms, :responded_at_ms, :note);`, toApprovalRow(a))
		if err != nil {
			return fmt.Errorf("CreateApproval: %w", mapErr(err))
		}
		return nil
	})
}

func (r repos) UpdateApproval(ctx context.Context, a types.ExitApproval) error {
	row := toApprovalRow(a)
	return r.write(ctx, func(ctx context.Context, q sqlx.ExtContext) error {
		res, err := q.ExecContext(ctx, `
UPDATE exit_approvals SET status = ?, responded_at_ms = ?, note = ?
WHERE tenant_id = ? AND id = ?;`,
			row.Status, row.RespondedAtMs, row.Note, row.TenantID, row.ID)
		if err != nil {
			return fmt.Errorf("UpdateApproval: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (r repos) ListApprovalsByResident(ctx context.Context, tenantID, residentID string, status types.ApprovalStatus) ([]types.ExitApproval, error) {
	var rows []approvalRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
SELECT `+approvalCols+` FROM exit_approvals
WHERE tenant_id = ? AND resident_id = ? AND status = ?
ORDER BY created_at_ms, rowid;`, tenantID, residentID, string(status))
	if err != nil {
		return nil, fmt.Errorf("ListApprovalsByResident: %w", err)
	}
	return approvalsFromRows(rows), nil
}

func (r repos) LatestApprovalForSession(ctx context.Context, tenantID, sessionID string, status types.ApprovalStatus) (types.ExitApproval, error) {
	var row approvalRow
	err := sqlx.GetContext(ctx, r.q, &row, `
SELECT `+approvalCols+` FROM exit_approvals
WHERE tenant_id = ? AND session_id = ? AND status = ?
ORDER BY created_at_ms DESC, rowid DESC
LIMIT 1;`, tenantID, sessionID, string(status))
	if notFound(err) {
		return types.ExitApproval{}, store.ErrNotFound
	}
	if err != nil {
		return types.ExitApproval{}, fmt.Errorf("LatestApprovalForSession: %w", err)
	}
	return row.toApproval(), nil
}

func (r repos) ListStalePending(ctx context.Context, now time.Time, limit int) ([]types.ExitApproval, error) {
	if limit <= 0 {
		limit = store.MaxPageLimit
	}
	var rows []approvalRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
SELECT `+approvalCols+` FROM exit_approvals
WHERE status = 'PENDING' AND expires_at_ms < ?
ORDER BY expires_at_ms, rowid
LIMIT ?;`, toMs(now), limit)
	if err != nil {
		return nil, fmt.Errorf("ListStalePending: %w", err)
	}
	return approvalsFromRows(rows), nil
}

func approvalsFromRows(rows []approvalRow) []types.ExitApproval {
	out := make([]types.ExitApproval, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toApproval())
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// Visitors
// ═══════════════════════════════════════════════════════════════════════════

func (r repos) GetVisitor(ctx context.Context, tenantID, id string) (types.Visitor, error) {
	var row visitorRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT `+visitorCols+` FROM visitors WHERE tenant_id = ? AND id = ?;`, tenantID, id)
	if notFound(err) {
		return types.Visitor{}, store.ErrNotFound
	}
	if err != nil {
		return types.Visitor{}, fmt.Errorf("GetVisitor: %w", err)
	}
	return row.toVisitor(), nil
}

func (r repos) UpdateVisitor(ctx context.Context, v types.Visitor) error {
	row := toVisitorRow(v)
	return r.write(ctx, func(ctx context.Context, q sqlx.ExtContext) error {
		res, err := q.ExecContext(ctx, `
UPDATE visitors SET status = ?, checked_in_at_ms = ?, checked_out_at_ms = ?
WHERE tenant_id = ? AND id = ?;`,
			row.Status, row.CheckedInAtMs, row.CheckedOutAtMs, row.TenantID, row.ID)
		if err != nil {
			return fmt.Errorf("UpdateVisitor: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// Passes
// ═══════════════════════════════════════════════════════════════════════════

func (r repos) getPass(ctx context.Context, op, where string, args ...any) (types.VisitPass, error) {
	var row passRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT `+passCols+` FROM visit_passes WHERE `+where+` ORDER BY created_at_ms DESC, rowid DESC LIMIT 1;`, args...)
	if notFound(err) {
		return types.VisitPass{}, store.ErrNotFound
	}
	if err != nil {
		return types.VisitPass{}, fmt.Errorf("%s: %w", op, err)
	}
	return row.toPass(), nil
}

func (r repos) GetPassByToken(ctx context.Context, tenantID, token string) (types.VisitPass, error) {
	if token == "" {
		return types.VisitPass{}, store.ErrNotFound
	}
	return r.getPass(ctx, "GetPassByToken", "tenant_id = ? AND token = ?", tenantID, token)
}

func (r repos) FindActivePassByCode(ctx context.Context, tenantID, code string) (types.VisitPass, error) {
	if code == "" {
		return types.VisitPass{}, store.ErrNotFound
	}
	return r.getPass(ctx, "FindActivePassByCode",
		"tenant_id = ? AND verification_code = ? AND status = 'ACTIVE'", tenantID, code)
}

func (r repos) LatestActivePass(ctx context.Context, tenantID, visitorID string) (types.VisitPass, error) {
	return r.getPass(ctx, "LatestActivePass",
		"tenant_id = ? AND visitor_id = ? AND status = 'ACTIVE'", tenantID, visitorID)
}

func (r repos) ListActivePasses(ctx context.Context, tenantID, visitorID string) ([]types.VisitPass, error) {
	var rows []passRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
SELECT `+passCols+` FROM visit_passes
WHERE tenant_id = ? AND visitor_id = ? AND status = 'ACTIVE'
ORDER BY created_at_ms, rowid;`, tenantID, visitorID)
	if err != nil {
		return nil, fmt.Errorf("ListActivePasses: %w", err)
	}
	out := make([]types.VisitPass, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toPass())
	}
	return out, nil
}

func (r repos) CreatePass(ctx context.Context, p types.VisitPass) error {
	return r.write(ctx, func(ctx context.Context, q sqlx.ExtContext) error {
		_, err := sqlx.NamedExecContext(ctx, q, `
INSERT INTO visit_passes(`+passCols+`)
VALUES (:id, :tenant_id, :visitor_id, :pass_code, :token, :verification_code, :pass_type, :status,
  :valid_from_ms, :valid_to_ms, :max_entries, :used_entries, :recurring_days, :recurring_start,
  :recurring_end, :created_at_ms);`, toPassRow(p))
		if err != nil {
			return fmt.Errorf("CreatePass: %w", mapErr(err))
		}
		return nil
	})
}

// UpdatePass persists status and usage.  The CHECK on used_entries turns an
// over-quota write into ErrConflict.
func (r repos) UpdatePass(ctx context.Context, p types.VisitPass) error {
	row := toPassRow(p)
	return r.write(ctx, func(ctx context.Context, q sqlx.ExtContext) error {
		res, err := q.ExecContext(ctx, `
UPDATE visit_passes SET status = ?, used_entries = ?
WHERE tenant_id = ? AND id = ?;`,
			row.Status, row.UsedEntries, row.TenantID, row.ID)
		if err != nil {
			return fmt.Errorf("UpdatePass: %w", mapErr(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}
