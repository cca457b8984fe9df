package types

import "time"

type SessionStatus string

const (
	SessionOpen   SessionStatus = "OPEN"
	SessionClosed SessionStatus = "CLOSED"
)

type ExitMethod string

const (
	ExitByPass           ExitMethod = "PASS"
	ExitByRemoteApproval ExitMethod = "REMOTE_APPROVAL"
)

// GateSession is one dwell of a vehicle inside the estate.
type GateSession struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenant_id"`
	VehicleID  string        `json:"vehicle_id"`
	ResidentID string        `json:"resident_id"`
	Plate      string        `json:"plate"`
	Status     SessionStatus `json:"status"`
	EntryAt    time.Time     `json:"entry_at"`
	EntryGuard string        `json:"entry_guard_id"`
	EntryNote  string        `json:"entry_note,omitempty"`
	ExitAt     *time.Time    `json:"exit_at,omitempty"`
	ExitGuard  string        `json:"exit_guard_id,omitempty"`
	ExitNote   string        `json:"exit_note,omitempty"`
	ExitMethod ExitMethod    `json:"exit_method,omitempty"`
}

type EntryRequest struct {
	VehicleCode string `json:"vehicle_code"` // plate or tag code, any formatting
	Note        string `json:"note,omitempty"`
}

type ExitRequest struct {
	VehicleCode string `json:"vehicle_code"`
	Token       string `json:"token"`
	Note        string `json:"note,omitempty"`
}

type ApprovedExitRequest struct {
	Note string `json:"note,omitempty"`
}

type ExitPassRequest struct {
	VehicleID string `json:"vehicle_id"`
}

// ExitPass is a freshly signed exit token.
type ExitPass struct {
	VehicleID string    `json:"vehicle_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
