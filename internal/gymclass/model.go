package gymclass

import (
	"time"
)

type ClassStatus string
type PricingModel string
type AccessPolicy string
type SessionStatus string

const (
	ClassActive   ClassStatus = "ACTIVE"
	ClassInactive ClassStatus = "INACTIVE"
	ClassArchived ClassStatus = "ARCHIVED"

	PricingIncluded  PricingModel = "INCLUDED_IN_MEMBERSHIP"
	PricingClassPack PricingModel = "CLASS_PACK_ONLY"
	PricingPerEntry  PricingModel = "PAY_PER_ENTRY"
	PricingHybrid    PricingModel = "HYBRID"

	AccessMembersOnly AccessPolicy = "MEMBERS_ONLY"
	AccessOpen        AccessPolicy = "OPEN"

	SessionScheduled  SessionStatus = "SCHEDULED"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionCancelled  SessionStatus = "CANCELLED"
)

type Category struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GymClass is the template sessions are created from.
type GymClass struct {
	ID                        int          `db:"id" json:"id"`
	Name                      string       `db:"name" json:"name"`
	Description               string       `db:"description" json:"description"`
	Location                  string       `db:"location" json:"location"`
	TrainerID                 *int         `db:"trainer_id" json:"trainer_id,omitempty"`
	CategoryID                *int         `db:"category_id" json:"category_id,omitempty"`
	ClassType                 string       `db:"class_type" json:"class_type"`
	MaxCapacity               int          `db:"max_capacity" json:"max_capacity"`
	WaitlistEnabled           bool         `db:"waitlist_enabled" json:"waitlist_enabled"`
	MaxWaitlistSize           int          `db:"max_waitlist_size" json:"max_waitlist_size"`
	PricingModel              PricingModel `db:"pricing_model" json:"pricing_model"`
	DropInPriceCents          *int64       `db:"drop_in_price_cents" json:"drop_in_price_cents,omitempty"`
	TaxRateBP                 int          `db:"tax_rate_bp" json:"tax_rate_bp"`
	DeductsClassFromPlan      bool         `db:"deducts_class_from_plan" json:"deducts_class_from_plan"`
	AccessPolicy              AccessPolicy `db:"access_policy" json:"access_policy"`
	AdvanceBookingDays        int          `db:"advance_booking_days" json:"advance_booking_days"`
	CancellationDeadlineHours int          `db:"cancellation_deadline_hours" json:"cancellation_deadline_hours"`
	LateCancellationFeeCents  int64        `db:"late_cancellation_fee_cents" json:"late_cancellation_fee_cents"`
	ImageKey                  string       `db:"image_key" json:"-"`
	ImageURL                  string       `db:"-" json:"image_url,omitempty"`
	Status                    ClassStatus  `db:"status" json:"status"`
	CreatedAt                 time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt                 time.Time    `db:"updated_at" json:"updated_at"`
}

func (g *GymClass) IsActive() bool {
	return g.Status == ClassActive
}

func (g *GymClass) Activate() error {
	if g.Status == ClassArchived {
		return ErrClassArchived
	}
	g.Status = ClassActive
	return nil
}

func (g *GymClass) Deactivate() error {
	if g.Status != ClassActive {
		return ErrInvalidClassState
	}
	g.Status = ClassInactive
	return nil
}

func (g *GymClass) Archive() {
	g.Status = ClassArchived
}

func (g *GymClass) AcceptsMembership() bool {
	return g.PricingModel == PricingIncluded || g.PricingModel == PricingHybrid
}

func (g *GymClass) AcceptsClassPack() bool {
	return g.PricingModel == PricingClassPack || g.PricingModel == PricingHybrid
}

func (g *GymClass) AcceptsPayPerEntry() bool {
	return g.PricingModel == PricingPerEntry || g.PricingModel == PricingHybrid
}

func (g *GymClass) ValidatePricing() error {
	if g.AcceptsPayPerEntry() && (g.DropInPriceCents == nil || *g.DropInPriceCents <= 0) {
		return ErrDropInPriceRequired
	}
	return nil
}

// DropInPrice returns the configured price, its tax rounded half up, and the
// total. ok is false when the class has no drop-in price.
func (g *GymClass) DropInPrice() (price, tax, total int64, ok bool) {
	if g.DropInPriceCents == nil {
		return 0, 0, 0, false
	}
	price = *g.DropInPriceCents
	tax = TaxCents(price, g.TaxRateBP)
	return price, tax, price + tax, true
}

// TaxCents applies a basis-point rate to amount, rounding half up.
func TaxCents(amount int64, rateBP int) int64 {
	return (amount*int64(rateBP) + 5000) / 10000
}

// Schedule is a weekly recurring slot of a class. Times are "HH:MM" in the
// club's zone.
type Schedule struct {
	ID             int        `db:"id" json:"id"`
	GymClassID     int        `db:"gym_class_id" json:"gym_class_id"`
	Weekday        int        `db:"weekday" json:"weekday"`
	StartTime      string     `db:"start_time" json:"start_time"`
	EndTime        string     `db:"end_time" json:"end_time"`
	TrainerID      *int       `db:"trainer_id" json:"trainer_id,omitempty"`
	EffectiveFrom  time.Time  `db:"effective_from" json:"effective_from"`
	EffectiveUntil *time.Time `db:"effective_until" json:"effective_until,omitempty"`
	Active         bool       `db:"active" json:"active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// CoversDate reports whether the schedule produces a session on the given
// calendar day.
func (s *Schedule) CoversDate(day time.Time) bool {
	if !s.Active || int(day.Weekday()) != s.Weekday {
		return false
	}
	d := dateOnly(day)
	if d.Before(dateOnly(s.EffectiveFrom)) {
		return false
	}
	if s.EffectiveUntil != nil && d.After(dateOnly(*s.EffectiveUntil)) {
		return false
	}
	return true
}

// ScheduleSlot is an active schedule joined with its active class.
type ScheduleSlot struct {
	Schedule
	ClassLocation  string `db:"class_location"`
	ClassTrainerID *int   `db:"class_trainer_id"`
	ClassCapacity  int    `db:"class_capacity"`
}

type Session struct {
	ID                 int           `db:"id" json:"id"`
	GymClassID         int           `db:"gym_class_id" json:"gym_class_id"`
	ScheduleID         *int          `db:"schedule_id" json:"schedule_id,omitempty"`
	Location           string        `db:"location" json:"location"`
	TrainerID          *int          `db:"trainer_id" json:"trainer_id,omitempty"`
	StartsAt           time.Time     `db:"starts_at" json:"starts_at"`
	EndsAt             time.Time     `db:"ends_at" json:"ends_at"`
	Capacity           int           `db:"capacity" json:"capacity"`
	BookedCount        int           `db:"booked_count" json:"booked_count"`
	WaitlistCount      int           `db:"waitlist_count" json:"waitlist_count"`
	CheckedInCount     int           `db:"checked_in_count" json:"checked_in_count"`
	Status             SessionStatus `db:"status" json:"status"`
	CancellationReason string        `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

func (s *Session) IsBookable() bool {
	return s.Status == SessionScheduled
}

func (s *Session) HasAvailableSpots() bool {
	return s.BookedCount < s.Capacity
}

func (s *Session) AvailableSpots() int {
	if s.BookedCount >= s.Capacity {
		return 0
	}
	return s.Capacity - s.BookedCount
}

func (s *Session) Start() error {
	if s.Status != SessionScheduled {
		return ErrInvalidSessionState
	}
	s.Status = SessionInProgress
	return nil
}

func (s *Session) Complete() error {
	if s.Status != SessionScheduled && s.Status != SessionInProgress {
		return ErrInvalidSessionState
	}
	s.Status = SessionCompleted
	return nil
}

func (s *Session) Cancel(reason string) error {
	if s.Status != SessionScheduled && s.Status != SessionInProgress {
		return ErrInvalidSessionState
	}
	s.Status = SessionCancelled
	s.CancellationReason = reason
	return nil
}

func (s *Session) Deletable() bool {
	return s.Status == SessionScheduled || s.Status == SessionCancelled
}

func (s *Session) Overlaps(start, end time.Time) bool {
	return s.StartsAt.Before(end) && start.Before(s.EndsAt)
}

type SessionFilter struct {
	From       time.Time
	To         time.Time
	GymClassID *int
	Status     SessionStatus
}

type CreateCategoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type CreateClassRequest struct {
	Name                      string       `json:"name" validate:"required,max=150"`
	Description               string       `json:"description"`
	Location                  string       `json:"location" validate:"max=150"`
	TrainerID                 *int         `json:"trainer_id"`
	CategoryID                *int         `json:"category_id"`
	ClassType                 string       `json:"class_type" validate:"max=50"`
	MaxCapacity               int          `json:"max_capacity" validate:"required,gte=1,lte=1000"`
	WaitlistEnabled           *bool        `json:"waitlist_enabled"`
	MaxWaitlistSize           *int         `json:"max_waitlist_size" validate:"omitempty,gte=0"`
	PricingModel              PricingModel `json:"pricing_model" validate:"omitempty,oneof=INCLUDED_IN_MEMBERSHIP CLASS_PACK_ONLY PAY_PER_ENTRY HYBRID"`
	DropInPriceCents          *int64       `json:"drop_in_price_cents" validate:"omitempty,gte=0"`
	TaxRateBP                 int          `json:"tax_rate_bp" validate:"gte=0,lte=10000"`
	DeductsClassFromPlan      *bool        `json:"deducts_class_from_plan"`
	AccessPolicy              AccessPolicy `json:"access_policy" validate:"omitempty,oneof=MEMBERS_ONLY OPEN"`
	AdvanceBookingDays        int          `json:"advance_booking_days" validate:"gte=0,lte=365"`
	CancellationDeadlineHours *int         `json:"cancellation_deadline_hours" validate:"omitempty,gte=0"`
	LateCancellationFeeCents  int64        `json:"late_cancellation_fee_cents" validate:"gte=0"`
}

type UpdateCapacityRequest struct {
	MaxCapacity int `json:"max_capacity" validate:"required,gte=1,lte=1000"`
}

type CreateScheduleRequest struct {
	Weekday        int     `json:"weekday" validate:"gte=0,lte=6"`
	StartTime      string  `json:"start_time" validate:"required,len=5"`
	EndTime        string  `json:"end_time" validate:"required,len=5"`
	TrainerID      *int    `json:"trainer_id"`
	EffectiveFrom  string  `json:"effective_from" validate:"required"`
	EffectiveUntil *string `json:"effective_until"`
}

type CreateSessionRequest struct {
	GymClassID int    `json:"gym_class_id" validate:"required"`
	StartsAt   string `json:"starts_at" validate:"required"`
	EndsAt     string `json:"ends_at" validate:"required"`
	TrainerID  *int   `json:"trainer_id"`
	Location   string `json:"location"`
	Capacity   *int   `json:"capacity" validate:"omitempty,gte=1"`
}

type GenerateSessionsRequest struct {
	From       string `json:"from" validate:"required"`
	To         string `json:"to" validate:"required"`
	GymClassID *int   `json:"gym_class_id"`
}

type GenerateSessionsResponse struct {
	Created  int       `json:"created"`
	Sessions []Session `json:"sessions"`
}

type ImageUploadRequest struct {
	ContentType string `json:"content_type" validate:"required,oneof=image/jpeg image/png image/webp"`
}

type ImageUploadResponse struct {
	UploadURL string `json:"upload_url"`
	ImageKey  string `json:"image_key"`
	ExpiresIn int    `json:"expires_in"`
}

const dateLayout = "2006-01-02"

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
