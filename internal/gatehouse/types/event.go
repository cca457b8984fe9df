package types

import "time"

type EventKind string

const (
	EventEntryScan               EventKind = "ENTRY_SCAN"
	EventExitScan                EventKind = "EXIT_SCAN"
	EventExitPassValidated       EventKind = "EXIT_PASS_VALIDATED"
	EventExitPassFailed          EventKind = "EXIT_PASS_FAILED"
	EventRemoteApprovalRequested EventKind = "REMOTE_APPROVAL_REQUESTED"
	EventRemoteApprovalApproved  EventKind = "REMOTE_APPROVAL_APPROVED"
	EventRemoteApprovalDenied    EventKind = "REMOTE_APPROVAL_DENIED"
	EventRemoteApprovalExpired   EventKind = "REMOTE_APPROVAL_EXPIRED"
	EventVisitorPassValidated    EventKind = "VISITOR_PASS_VALIDATED"
	EventVisitorPassFailed       EventKind = "VISITOR_PASS_FAILED"
	EventVisitorCheckIn          EventKind = "VISITOR_CHECK_IN"
	EventVisitorCheckOut         EventKind = "VISITOR_CHECK_OUT"
	EventVisitorDeniedBlacklist  EventKind = "VISITOR_DENIED_BLACKLIST"
)

// GateEvent is one entry of the gate access log.  The id fields are empty
// when not applicable.
type GateEvent struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	SessionID  string    `json:"session_id,omitempty"`
	VehicleID  string    `json:"vehicle_id,omitempty"`
	ResidentID string    `json:"resident_id,omitempty"`
	VisitorID  string    `json:"visitor_id,omitempty"`
	Kind       EventKind `json:"kind"`
	ActorID    string    `json:"actor_id"`
	Details    string    `json:"details,omitempty"`
	Success    bool      `json:"success"`
	OccurredAt time.Time `json:"occurred_at"`
}
