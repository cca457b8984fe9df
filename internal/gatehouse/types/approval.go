package types

import "time"

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalDenied   ApprovalStatus = "DENIED"
	ApprovalExpired  ApprovalStatus = "EXPIRED"
)

// ExitApproval is a resident-in-the-loop request to let a vehicle out
// without an exit pass.  Only PENDING may transition; every other status is
// terminal.
type ExitApproval struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	SessionID   string         `json:"session_id"`
	VehicleID   string         `json:"vehicle_id"`
	ResidentID  string         `json:"resident_id"`
	GuardID     string         `json:"guard_id"`
	Status      ApprovalStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	RespondedAt *time.Time     `json:"responded_at,omitempty"`
	Note        string         `json:"note,omitempty"`
}

// ExpiredAt reports whether a PENDING request has outlived its TTL at now.
func (a ExitApproval) ExpiredAt(now time.Time) bool {
	return a.Status == ApprovalPending && a.ExpiresAt.Before(now)
}

// ApprovalView is an approval enriched for display.  Vehicle is nil when the
// vehicle record could not be loaded.
type ApprovalView struct {
	ExitApproval
	Vehicle *VehicleSummary `json:"vehicle,omitempty"`
}

type ApprovalRequest struct {
	SessionID string `json:"session_id"`
	Note      string `json:"note,omitempty"`
}

type DenyRequest struct {
	Note string `json:"note,omitempty"`
}
