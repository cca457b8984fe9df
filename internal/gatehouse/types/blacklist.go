package types

type BlacklistKind string

const (
	BlacklistPlate BlacklistKind = "PLATE"
	BlacklistPhone BlacklistKind = "PHONE"
)

// BlacklistEntry denies a plate or phone within one tenant.  Value is stored
// normalized.
type BlacklistEntry struct {
	TenantID string        `json:"tenant_id"`
	Kind     BlacklistKind `json:"kind"`
	Value    string        `json:"value"`
	Active   bool          `json:"active"`
	Reason   string        `json:"reason,omitempty"`
}
