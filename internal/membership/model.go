package membership

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Membership is a member's plan subscription. A nil ClassesRemaining means
// the plan is unlimited.
type Membership struct {
	ID               int       `db:"id" json:"id"`
	MemberID         int       `db:"member_id" json:"member_id"`
	PlanName         string    `db:"plan_name" json:"plan_name"`
	Status           Status    `db:"status" json:"status"`
	ClassesRemaining *int      `db:"classes_remaining" json:"classes_remaining,omitempty"`
	ValidFrom        time.Time `db:"valid_from" json:"valid_from"`
	ValidUntil       time.Time `db:"valid_until" json:"valid_until"`
	PriceCents       int64     `db:"price_cents" json:"price_cents"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

func (m *Membership) IsMetered() bool {
	return m.ClassesRemaining != nil
}

func (m *Membership) InForce(at time.Time) bool {
	return m.Status == StatusActive && !at.Before(m.ValidFrom) && !at.After(m.ValidUntil)
}

type CreateMembershipRequest struct {
	PlanName         string `json:"plan_name" validate:"required,max=100"`
	ClassesRemaining *int   `json:"classes_remaining" validate:"omitempty,gte=0"`
	ValidFrom        string `json:"valid_from"`
	DurationDays     int    `json:"duration_days" validate:"required,gte=1,lte=730"`
	PriceCents       int64  `json:"price_cents" validate:"gte=0"`
	ChargeWallet     bool   `json:"charge_wallet"`
}
