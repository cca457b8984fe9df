package types

import "time"

type PassType string

const (
	PassSingleUse PassType = "SINGLE_USE"
	PassMultiUse  PassType = "MULTI_USE"
	PassRecurring PassType = "RECURRING"
)

type PassStatus string

const (
	PassActive  PassStatus = "ACTIVE"
	PassUsed    PassStatus = "USED"
	PassRevoked PassStatus = "REVOKED"
	PassExpired PassStatus = "EXPIRED"
)

// VisitPass admits a visitor under type-specific rules.
type VisitPass struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	VisitorID        string     `json:"visitor_id"`
	PassCode         string     `json:"pass_code"`
	Token            string     `json:"token"`
	VerificationCode string     `json:"verification_code"`
	Type             PassType   `json:"type"`
	Status           PassStatus `json:"status"`
	ValidFrom        time.Time  `json:"valid_from"`
	ValidTo          time.Time  `json:"valid_to"`
	MaxEntries       *int       `json:"max_entries,omitempty"`
	UsedEntries      int        `json:"used_entries"`
	RecurringDays    []string   `json:"recurring_days,omitempty"`
	RecurringStart   string     `json:"recurring_start,omitempty"` // "HH:MM"
	RecurringEnd     string     `json:"recurring_end,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// PassSpec is the configuration copied between a pass and its regeneration.
type PassSpec struct {
	Type           PassType  `json:"type"`
	ValidFrom      time.Time `json:"valid_from"`
	ValidTo        time.Time `json:"valid_to"`
	MaxEntries     *int      `json:"max_entries,omitempty"`
	RecurringDays  []string  `json:"recurring_days,omitempty"`
	RecurringStart string    `json:"recurring_start,omitempty"`
	RecurringEnd   string    `json:"recurring_end,omitempty"`
}

func (p VisitPass) Spec() PassSpec {
	var maxEntries *int
	if p.MaxEntries != nil {
		n := *p.MaxEntries
		maxEntries = &n
	}
	return PassSpec{
		Type:           p.Type,
		ValidFrom:      p.ValidFrom,
		ValidTo:        p.ValidTo,
		MaxEntries:     maxEntries,
		RecurringDays:  append([]string(nil), p.RecurringDays...),
		RecurringStart: p.RecurringStart,
		RecurringEnd:   p.RecurringEnd,
	}
}

// CheckInRequest carries either a signed token or a verification code.
type CheckInRequest struct {
	Token            string `json:"token,omitempty"`
	VerificationCode string `json:"verification_code,omitempty"`
}

type CheckInResult struct {
	Visitor Visitor   `json:"visitor"`
	Pass    VisitPass `json:"pass"`
}
