package booking

import (
	"time"

	"classbook/internal/classpack"
	"classbook/internal/gymclass"
)

type Status string
type PaymentSource string

const (
	StatusConfirmed  Status = "CONFIRMED"
	StatusWaitlisted Status = "WAITLISTED"
	StatusCancelled  Status = "CANCELLED"
	StatusCheckedIn  Status = "CHECKED_IN"
	StatusNoShow     Status = "NO_SHOW"

	SourceMembership    PaymentSource = "MEMBERSHIP_INCLUDED"
	SourceClassPack     PaymentSource = "CLASS_PACK"
	SourcePayPerEntry   PaymentSource = "PAY_PER_ENTRY"
	SourceComplimentary PaymentSource = "COMPLIMENTARY"
)

// Events published for bookings and sessions.
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingPromoted  = "booking.promoted"
	EventBookingCancelled = "booking.cancelled"
	EventBookingCheckedIn = "booking.checked_in"
	EventBookingNoShow    = "booking.no_show"
	EventSessionCancelled = "session.cancelled"
)

type Booking struct {
	ID                 int           `db:"id" json:"id"`
	SessionID          int           `db:"session_id" json:"session_id"`
	MemberID           int           `db:"member_id" json:"member_id"`
	Status             Status        `db:"status" json:"status"`
	PaymentSource      PaymentSource `db:"payment_source" json:"payment_source"`
	MembershipID       *int          `db:"membership_id" json:"membership_id,omitempty"`
	ClassPackBalanceID *int          `db:"class_pack_balance_id" json:"class_pack_balance_id,omitempty"`
	CategoryBalanceID  *int          `db:"category_balance_id" json:"category_balance_id,omitempty"`
	PaidAmountCents    int64         `db:"paid_amount_cents" json:"paid_amount_cents"`
	WaitlistPosition   *int          `db:"waitlist_position" json:"waitlist_position,omitempty"`
	Notes              string        `db:"notes" json:"notes"`
	BookedBy           *int          `db:"booked_by" json:"booked_by,omitempty"`
	CancellationReason string        `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	LateCancellation   bool          `db:"late_cancellation" json:"late_cancellation"`
	CheckedInAt        *time.Time    `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CancelledAt        *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the booking still holds a seat or a waitlist
// place.
func (b *Booking) IsActive() bool {
	return b.Status == StatusConfirmed || b.Status == StatusWaitlisted
}

func (b *Booking) Deletable() bool {
	return b.Status == StatusCancelled || b.Status == StatusNoShow
}

// BookingDetails is a booking joined with its session, class and member.
type BookingDetails struct {
	Booking
	SessionStartsAt time.Time `db:"session_starts_at" json:"session_starts_at"`
	SessionEndsAt   time.Time `db:"session_ends_at" json:"session_ends_at"`
	ClassName       string    `db:"class_name" json:"class_name"`
	Location        string    `db:"location" json:"location"`
	MemberName      string    `db:"member_name" json:"member_name"`
	MemberEmail     string    `db:"member_email" json:"member_email"`
}

type MemberScope string

const (
	ScopeAll      MemberScope = ""
	ScopeUpcoming MemberScope = "upcoming"
	ScopePast     MemberScope = "past"
)

type CreateBookingRequest struct {
	SessionID          int           `json:"session_id" validate:"required"`
	MemberID           int           `json:"member_id"`
	PaymentSource      PaymentSource `json:"payment_source" validate:"required,oneof=MEMBERSHIP_INCLUDED CLASS_PACK PAY_PER_ENTRY COMPLIMENTARY"`
	ClassPackBalanceID *int          `json:"class_pack_balance_id"`
	Notes              string        `json:"notes" validate:"max=500"`
}

// Actor is who performs a booking operation.
type Actor struct {
	UserID   int
	MemberID int
	Staff    bool
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type BulkCreateRequest struct {
	SessionID     int           `json:"session_id" validate:"required"`
	MemberIDs     []int         `json:"member_ids" validate:"required,min=1,max=100"`
	PaymentSource PaymentSource `json:"payment_source" validate:"required,oneof=MEMBERSHIP_INCLUDED CLASS_PACK PAY_PER_ENTRY COMPLIMENTARY"`
	Notes         string        `json:"notes" validate:"max=500"`
}

type BulkIDsRequest struct {
	BookingIDs []int  `json:"booking_ids" validate:"required,min=1,max=100"`
	Reason     string `json:"reason" validate:"max=500"`
}

// BulkResult is the outcome of one item of a bulk operation. ID is the member
// id for bulk create and the booking id otherwise.
type BulkResult struct {
	ID      int      `json:"id"`
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Booking *Booking `json:"booking,omitempty"`
}

type BulkResponse struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Results   []BulkResult `json:"results"`
}

func NewBulkResponse(results []BulkResult) BulkResponse {
	resp := BulkResponse{Results: results}
	for _, r := range results {
		if r.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	return resp
}

type CancelResult struct {
	Booking          *Booking `json:"booking"`
	LateCancellation bool     `json:"late_cancellation"`
	LateFeeCents     int64    `json:"late_fee_cents"`
	Refunded         bool     `json:"refunded"`
	Promoted         *Booking `json:"promoted,omitempty"`
}

type CancelSessionRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type SessionResult struct {
	Session  *gymclass.Session `json:"session"`
	Affected int               `json:"affected_bookings"`
}

type MembershipOption struct {
	Available        bool   `json:"available"`
	MembershipID     *int   `json:"membership_id,omitempty"`
	PlanName         string `json:"plan_name,omitempty"`
	ClassesRemaining *int   `json:"classes_remaining,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

type PayPerEntryOption struct {
	Available  bool   `json:"available"`
	PriceCents int64  `json:"price_cents"`
	TaxCents   int64  `json:"tax_cents"`
	TotalCents int64  `json:"total_cents"`
	Reason     string `json:"reason,omitempty"`
}

// PaymentOptions lists the ways a member can pay for a session.
type PaymentOptions struct {
	SessionID    int                 `json:"session_id"`
	PricingModel string              `json:"pricing_model"`
	Membership   MembershipOption    `json:"membership"`
	ClassPacks   []classpack.Balance `json:"class_packs"`
	PayPerEntry  PayPerEntryOption   `json:"pay_per_entry"`
}

type StatsGroup string

const (
	GroupByDay   StatsGroup = "day"
	GroupByClass StatsGroup = "class"
)

type Stats struct {
	Key        string `db:"key" json:"key"`
	Confirmed  int    `db:"confirmed" json:"confirmed"`
	Waitlisted int    `db:"waitlisted" json:"waitlisted"`
	Cancelled  int    `db:"cancelled" json:"cancelled"`
	CheckedIn  int    `db:"checked_in" json:"checked_in"`
	NoShow     int    `db:"no_show" json:"no_show"`
	Total      int    `db:"total" json:"total"`
}
