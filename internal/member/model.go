package member

import "time"

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusFrozen    Status = "FROZEN"
	StatusCancelled Status = "CANCELLED"
)

type Member struct {
	ID        int       `db:"id" json:"id"`
	UserID    *int      `db:"user_id" json:"user_id,omitempty"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (m *Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

func (m *Member) IsActive() bool {
	return m.Status == StatusActive
}

type CreateMemberRequest struct {
	UserID    *int   `json:"user_id"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"max=32"`
}

type UpdateStatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=ACTIVE FROZEN CANCELLED"`
}
