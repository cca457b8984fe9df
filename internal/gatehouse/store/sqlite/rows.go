package sqlite

import (
	"database/sql"
	"strings"
	"time"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

func toMs(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMs(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func toNullMs(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMs(*t), Valid: true}
}

func fromNullMs(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMs(n.Int64)
	return &t
}

// ── vehicles ────────────────────────────────────────────────────────────────

const vehicleCols = `id, tenant_id, resident_id, plate, tag_code, make, model, color, status, updated_at_ms`

type vehicleRow struct {
	ID          string `db:"id"`
	TenantID    string `db:"tenant_id"`
	ResidentID  string `db:"resident_id"`
	Plate       string `db:"plate"`
	TagCode     string `db:"tag_code"`
	Make        string `db:"make"`
	Model       string `db:"model"`
	Color       string `db:"color"`
	Status      string `db:"status"`
	UpdatedAtMs int64  `db:"updated_at_ms"`
}

func toVehicleRow(v types.Vehicle) vehicleRow {
	return vehicleRow{
		ID:          v.ID,
		TenantID:    v.TenantID,
		ResidentID:  v.ResidentID,
		Plate:       v.Plate,
		TagCode:     v.TagCode,
		Make:        v.Make,
		Model:       v.Model,
		Color:       v.Color,
		Status:      string(v.Status),
		UpdatedAtMs: time.Now().UTC().UnixMilli(),
	}
}

func (r vehicleRow) toVehicle() types.Vehicle {
	return types.Vehicle{
		ID:         r.ID,
		TenantID:   r.TenantID,
		ResidentID: r.ResidentID,
		Plate:      r.Plate,
		TagCode:    r.TagCode,
		Make:       r.Make,
		Model:      r.Model,
		Color:      r.Color,
		Status:     types.VehicleStatus(r.Status),
	}
}

// ── visitors ────────────────────────────────────────────────────────────────

const visitorCols = `id, tenant_id, resident_id, name, phone, vehicle_plate, status, checked_in_at_ms, checked_out_at_ms`

type visitorRow struct {
	ID             string        `db:"id"`
	TenantID       string        `db:"tenant_id"`
	ResidentID     string        `db:"resident_id"`
	Name           string        `db:"name"`
	Phone          string        `db:"phone"`
	VehiclePlate   string        `db:"vehicle_plate"`
	Status         string        `db:"status"`
	CheckedInAtMs  sql.NullInt64 `db:"checked_in_at_ms"`
	CheckedOutAtMs sql.NullInt64 `db:"checked_out_at_ms"`
}

func toVisitorRow(v types.Visitor) visitorRow {
	return visitorRow{
		ID:             v.ID,
		TenantID:       v.TenantID,
		ResidentID:     v.ResidentID,
		Name:           v.Name,
		Phone:          v.Phone,
		VehiclePlate:   v.VehiclePlate,
		Status:         string(v.Status),
		CheckedInAtMs:  toNullMs(v.CheckedInAt),
		CheckedOutAtMs: toNullMs(v.CheckedOutAt),
	}
}

func (r visitorRow) toVisitor() types.Visitor {
	return types.Visitor{
		ID:           r.ID,
		TenantID:     r.TenantID,
		ResidentID:   r.ResidentID,
		Name:         r.Name,
		Phone:        r.Phone,
		VehiclePlate: r.VehiclePlate,
		Status:       types.VisitorStatus(r.Status),
		CheckedInAt:  fromNullMs(r.CheckedInAtMs),
		CheckedOutAt: fromNullMs(r.CheckedOutAtMs),
	}
}

// ── sessions ────────────────────────────────────────────────────────────────

const sessionCols = `id, tenant_id, vehicle_id, resident_id, plate, status, entry_at_ms, entry_guard_id,
  entry_note, exit_at_ms, exit_guard_id, exit_note, exit_method`

type sessionRow struct {
	ID           string        `db:"id"`
	TenantID     string        `db:"tenant_id"`
	VehicleID    string        `db:"vehicle_id"`
	ResidentID   string        `db:"resident_id"`
	Plate        string        `db:"plate"`
	Status       string        `db:"status"`
	EntryAtMs    int64         `db:"entry_at_ms"`
	EntryGuardID string        `db:"entry_guard_id"`
	EntryNote    string        `db:"entry_note"`
	ExitAtMs     sql.NullInt64 `db:"exit_at_ms"`
	ExitGuardID  string        `db:"exit_guard_id"`
	ExitNote     string        `db:"exit_note"`
	ExitMethod   string        `db:"exit_method"`
}

func toSessionRow(s types.GateSession) sessionRow {
	return sessionRow{
		ID:           s.ID,
		TenantID:     s.TenantID,
		VehicleID:    s.VehicleID,
		ResidentID:   s.ResidentID,
		Plate:        s.Plate,
		Status:       string(s.Status),
		EntryAtMs:    toMs(s.EntryAt),
		EntryGuardID: s.EntryGuard,
		EntryNote:    s.EntryNote,
		ExitAtMs:     toNullMs(s.ExitAt),
		ExitGuardID:  s.ExitGuard,
		ExitNote:     s.ExitNote,
		ExitMethod:   string(s.ExitMethod),
	}
}

func (r sessionRow) toSession() types.GateSession {
	return types.GateSession{
		ID:         r.ID,
		TenantID:   r.TenantID,
		VehicleID:  r.VehicleID,
		ResidentID: r.ResidentID,
		Plate:      r.Plate,
		Status:     types.SessionStatus(r.Status),
		EntryAt:    fromMs(r.EntryAtMs),
		EntryGuard: r.EntryGuardID,
		EntryNote:  r.EntryNote,
		ExitAt:     fromNullMs(r.ExitAtMs),
		ExitGuard:  r.ExitGuardID,
		ExitNote:   r.ExitNote,
		ExitMethod: types.ExitMethod(r.ExitMethod),
	}
}

// ── approvals ───────────────────────────────────────────────────────────────

const approvalCols = `id, tenant_id, session_id, vehicle_id, resident_id, guard_id, status,
  created_at_ms, expires_at_ms, responded_at_ms, note`

type approvalRow struct {
	ID            string        `db:"id"`
	TenantID      string        `db:"tenant_id"`
	SessionID     string        `db:"session_id"`
	VehicleID     string        `db:"vehicle_id"`
	ResidentID    string        `db:"resident_id"`
	GuardID       string        `db:"guard_id"`
	Status        string        `db:"status"`
	CreatedAtMs   int64         `db:"created_at_ms"`
	ExpiresAtMs   int64         `db:"expires_at_ms"`
	RespondedAtMs sql.NullInt64 `db:"responded_at_ms"`
	Note          string        `db:"note"`
}

func toApprovalRow(a types.ExitApproval) approvalRow {
	return approvalRow{
		ID:            a.ID,
		TenantID:      a.TenantID,
		SessionID:     a.SessionID,
		VehicleID:     a.VehicleID,
		ResidentID:    a.ResidentID,
		GuardID:       a.GuardID,
		Status:        string(a.Status),
		CreatedAtMs:   toMs(a.CreatedAt),
		ExpiresAtMs:   toMs(a.ExpiresAt),
		RespondedAtMs: toNullMs(a.RespondedAt),
		Note:          a.Note,
	}
}

func (r approvalRow) toApproval() types.ExitApproval {
	return types.ExitApproval{
		ID:          r.ID,
		TenantID:    r.TenantID,
		SessionID:   r.SessionID,
		VehicleID:   r.VehicleID,
		ResidentID:  r.ResidentID,
		GuardID:     r.GuardID,
		Status:      types.ApprovalStatus(r.Status),
		CreatedAt:   fromMs(r.CreatedAtMs),
		ExpiresAt:   fromMs(r.ExpiresAtMs),
		RespondedAt: fromNullMs(r.RespondedAtMs),
		Note:        r.Note,
	}
}

// ── passes ──────────────────────────────────────────────────────────────────

const passCols = `id, tenant_id, visitor_id, pass_code, token, verification_code, pass_type, status,
  valid_from_ms, valid_to_ms, max_entries, used_entries, recurring_days, recurring_start,
  recurring_end, created_at_ms`

type passRow struct {
	ID               string        `db:"id"`
	TenantID         string        `db:"tenant_id"`
	VisitorID        string        `db:"visitor_id"`
	PassCode         string        `db:"pass_code"`
	Token            string        `db:"token"`
	VerificationCode string        `db:"verification_code"`
	PassType         string        `db:"pass_type"`
	Status           string        `db:"status"`
	ValidFromMs      int64         `db:"valid_from_ms"`
	ValidToMs        int64         `db:"valid_to_ms"`
	MaxEntries       sql.NullInt64 `db:"max_entries"`
	UsedEntries      int           `db:"used_entries"`
	RecurringDays    string        `db:"recurring_days"` // comma separated
	RecurringStart   string        `db:"recurring_start"`
	RecurringEnd     string        `db:"recurring_end"`
	CreatedAtMs      int64         `db:"created_at_ms"`
}

func toPassRow(p types.VisitPass) passRow {
	var maxEntries sql.NullInt64
	if p.MaxEntries != nil {
		maxEntries = sql.NullInt64{Int64: int64(*p.MaxEntries), Valid: true}
	}
	return passRow{
		ID:               p.ID,
		TenantID:         p.TenantID,
		VisitorID:        p.VisitorID,
		PassCode:         p.PassCode,
		Token:            p.Token,
		VerificationCode: p.VerificationCode,
		PassType:         string(p.Type),
		Status:           string(p.Status),
		ValidFromMs:      toMs(p.ValidFrom),
		ValidToMs:        toMs(p.ValidTo),
		MaxEntries:       maxEntries,
		UsedEntries:      p.UsedEntries,
		RecurringDays:    strings.Join(p.RecurringDays, ","),
		RecurringStart:   p.RecurringStart,
		RecurringEnd:     p.RecurringEnd,
		CreatedAtMs:      toMs(p.CreatedAt),
	}
}

func (r passRow) toPass() types.VisitPass {
	var maxEntries *int
	if r.MaxEntries.Valid {
		n := int(r.MaxEntries.Int64)
		maxEntries = &n
	}
	var days []string
	if r.RecurringDays != "" {
		days = strings.Split(r.RecurringDays, ",")
	}
	return types.VisitPass{
		ID:               r.ID,
		TenantID:         r.TenantID,
		VisitorID:        r.VisitorID,
		PassCode:         r.PassCode,
		Token:            r.Token,
		VerificationCode: r.VerificationCode,
		Type:             types.PassType(r.PassType),
		Status:           types.PassStatus(r.Status),
		ValidFrom:        fromMs(r.ValidFromMs),
		ValidTo:          fromMs(r.ValidToMs),
		MaxEntries:       maxEntries,
		UsedEntries:      r.UsedEntries,
		RecurringDays:    days,
		RecurringStart:   r.RecurringStart,
		RecurringEnd:     r.RecurringEnd,
		CreatedAt:        fromMs(r.CreatedAtMs),
	}
}

// ── events ──────────────────────────────────────────────────────────────────

const eventCols = `id, tenant_id, session_id, vehicle_id, resident_id, visitor_id, kind, actor_id,
  details, success, occurred_at_ms`

type eventRow struct {
	ID           string `db:"id"`
	TenantID     string `db:"tenant_id"`
	SessionID    string `db:"session_id"`
	VehicleID    string `db:"vehicle_id"`
	ResidentID   string `db:"resident_id"`
	VisitorID    string `db:"visitor_id"`
	Kind         string `db:"kind"`
	ActorID      string `db:"actor_id"`
	Details      string `db:"details"`
	Success      bool   `db:"success"`
	OccurredAtMs int64  `db:"occurred_at_ms"`
}

func toEventRow(ev types.GateEvent) eventRow {
	return eventRow{
		ID:           ev.ID,
		TenantID:     ev.TenantID,
		SessionID:    ev.SessionID,
		VehicleID:    ev.VehicleID,
		ResidentID:   ev.ResidentID,
		VisitorID:    ev.VisitorID,
		Kind:         string(ev.Kind),
		ActorID:      ev.ActorID,
		Details:      ev.Details,
		Success:      ev.Success,
		OccurredAtMs: toMs(ev.OccurredAt),
	}
}

func (r eventRow) toEvent() types.GateEvent {
	return types.GateEvent{
		ID:         r.ID,
		TenantID:   r.TenantID,
		SessionID:  r.SessionID,
		VehicleID:  r.VehicleID,
		ResidentID: r.ResidentID,
		VisitorID:  r.VisitorID,
		Kind:       types.EventKind(r.Kind),
		ActorID:    r.ActorID,
		Details:    r.Details,
		Success:    r.Success,
		OccurredAt: fromMs(r.OccurredAtMs),
	}
}
