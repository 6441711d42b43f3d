package classpack

import (
	"time"

	"classbook/internal/gymclass"

	"github.com/lib/pq"
)

type AllocationMode string
type PackStatus string
type BalanceStatus string

const (
	AllocationFlat        AllocationMode = "FLAT"
	AllocationPerCategory AllocationMode = "PER_CATEGORY"

	PackActive   PackStatus = "ACTIVE"
	PackInactive PackStatus = "INACTIVE"

	BalanceActive    BalanceStatus = "ACTIVE"
	BalanceDepleted  BalanceStatus = "DEPLETED"
	BalanceExpired   BalanceStatus = "EXPIRED"
	BalanceCancelled BalanceStatus = "CANCELLED"
)

type ClassPack struct {
	ID             int            `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Description    string         `db:"description" json:"description"`
	ClassCount     int            `db:"class_count" json:"class_count"`
	PriceCents     int64          `db:"price_cents" json:"price_cents"`
	TaxRateBP      int            `db:"tax_rate_bp" json:"tax_rate_bp"`
	ValidityDays   int            `db:"validity_days" json:"validity_days"`
	ValidClassIDs  pq.Int64Array  `db:"valid_class_ids" json:"valid_class_ids" swaggertype:"array,integer"`
	AllocationMode AllocationMode `db:"allocation_mode" json:"allocation_mode"`
	Status         PackStatus     `db:"status" json:"status"`
	SortOrder      int            `db:"sort_order" json:"sort_order"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
	Allocations    []Allocation   `db:"-" json:"allocations,omitempty"`
}

// ValidForClass reports whether credits of the pack can be spent on the class.
// An empty class list means any class.
func (p *ClassPack) ValidForClass(classID int) bool {
	if len(p.ValidClassIDs) == 0 {
		return true
	}
	for _, id := range p.ValidClassIDs {
		if int(id) == classID {
			return true
		}
	}
	return false
}

// TotalPrice returns price plus tax.
func (p *ClassPack) TotalPrice() int64 {
	return p.PriceCents + gymclass.TaxCents(p.PriceCents, p.TaxRateBP)
}

type Allocation struct {
	ID          int `db:"id" json:"id"`
	ClassPackID int `db:"class_pack_id" json:"class_pack_id"`
	CategoryID  int `db:"category_id" json:"category_id"`
	CreditCount int `db:"credit_count" json:"credit_count"`
}

// Balance is the credits a member holds from one pack.
type Balance struct {
	ID               int               `db:"id" json:"id"`
	MemberID         int               `db:"member_id" json:"member_id"`
	ClassPackID      int               `db:"class_pack_id" json:"class_pack_id"`
	ClassesPurchased int               `db:"classes_purchased" json:"classes_purchased"`
	ClassesUsed      int               `db:"classes_used" json:"classes_used"`
	Status           BalanceStatus     `db:"status" json:"status"`
	PricePaidCents   int64             `db:"price_paid_cents" json:"price_paid_cents"`
	ExpiresAt        time.Time         `db:"expires_at" json:"expires_at"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
	Categories       []CategoryBalance `db:"-" json:"categories,omitempty"`
}

func (b *Balance) Remaining() int {
	return b.ClassesPurchased - b.ClassesUsed
}

func (b *Balance) UsableAt(at time.Time) bool {
	return b.Status == BalanceActive && b.Remaining() > 0 && at.Before(b.ExpiresAt)
}

func (b *Balance) Use() error {
	if b.Remaining() <= 0 {
		return ErrNoCreditsRemaining
	}
	b.ClassesUsed++
	if b.Remaining() == 0 {
		b.Status = BalanceDepleted
	}
	return nil
}

func (b *Balance) Refund() {
	if b.ClassesUsed > 0 {
		b.ClassesUsed--
	}
	if b.Status == BalanceDepleted && b.Remaining() > 0 {
		b.Status = BalanceActive
	}
}

type CategoryBalance struct {
	ID               int `db:"id" json:"id"`
	BalanceID        int `db:"balance_id" json:"balance_id"`
	CategoryID       int `db:"category_id" json:"category_id"`
	CreditsAllocated int `db:"credits_allocated" json:"credits_allocated"`
	CreditsUsed      int `db:"credits_used" json:"credits_used"`
}

func (c *CategoryBalance) Remaining() int {
	return c.CreditsAllocated - c.CreditsUsed
}

// CreditUse identifies what a single credit was taken from, so it can be
// given back.
type CreditUse struct {
	BalanceID         int
	CategoryBalanceID *int
}

type AllocationRequest struct {
	CategoryID  int `json:"category_id" validate:"required"`
	CreditCount int `json:"credit_count" validate:"required,gte=1"`
}

type CreatePackRequest struct {
	Name           string              `json:"name" validate:"required,max=150"`
	Description    string              `json:"description"`
	ClassCount     int                 `json:"class_count" validate:"required,gte=1"`
	PriceCents     int64               `json:"price_cents" validate:"gte=0"`
	TaxRateBP      int                 `json:"tax_rate_bp" validate:"gte=0,lte=10000"`
	ValidityDays   int                 `json:"validity_days" validate:"required,gte=1"`
	ValidClassIDs  []int64             `json:"valid_class_ids"`
	AllocationMode AllocationMode      `json:"allocation_mode" validate:"omitempty,oneof=FLAT PER_CATEGORY"`
	Allocations    []AllocationRequest `json:"allocations" validate:"dive"`
	SortOrder      int                 `json:"sort_order"`
}

type GrantRequest struct {
	ClassPackID int `json:"class_pack_id" validate:"required"`
}
