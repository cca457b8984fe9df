package types

import "time"

type VehicleStatus string

const (
	VehicleActive    VehicleStatus = "ACTIVE"
	VehicleInactive  VehicleStatus = "INACTIVE"
	VehicleSuspended VehicleStatus = "SUSPENDED"
)

// Vehicle is the read model of a registered vehicle.  Plate and TagCode are
// stored normalized.
type Vehicle struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenant_id"`
	ResidentID string        `json:"resident_id"`
	Plate      string        `json:"plate"`
	TagCode    string        `json:"tag_code,omitempty"`
	Make       string        `json:"make,omitempty"`
	Model      string        `json:"model,omitempty"`
	Color      string        `json:"color,omitempty"`
	Status     VehicleStatus `json:"status"`
}

// VehicleSummary is the guard-facing display block attached to approvals.
type VehicleSummary struct {
	Plate string `json:"plate"`
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Color string `json:"color,omitempty"`
}

func (v Vehicle) Summary() *VehicleSummary {
	return &VehicleSummary{Plate: v.Plate, Make: v.Make, Model: v.Model, Color: v.Color}
}

type VisitorStatus string

const (
	VisitorExpected   VisitorStatus = "EXPECTED"
	VisitorCheckedIn  VisitorStatus = "CHECKED_IN"
	VisitorCheckedOut VisitorStatus = "CHECKED_OUT"
	VisitorRevoked    VisitorStatus = "REVOKED"
)

// Visitor is a person expected by a resident.  Phone and VehiclePlate are
// stored normalized.
type Visitor struct {
	ID           string        `json:"id"`
	TenantID     string        `json:"tenant_id"`
	ResidentID   string        `json:"resident_id"`
	Name         string        `json:"name"`
	Phone        string        `json:"phone,omitempty"`
	VehiclePlate string        `json:"vehicle_plate,omitempty"`
	Status       VisitorStatus `json:"status"`
	CheckedInAt  *time.Time    `json:"checked_in_at,omitempty"`
	CheckedOutAt *time.Time    `json:"checked_out_at,omitempty"`
}
