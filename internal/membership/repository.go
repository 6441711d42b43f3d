package membership

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"classbook/internal/db"

	"github.com/jmoiron/sqlx"
)

const membershipColumns = `id, member_id, plan_name, status, classes_remaining, valid_from, valid_until, price_cents, created_at`

type Repository interface {
	Create(ctx context.Context, m *Membership) (*Membership, error)
	FindByID(ctx context.Context, id int) (*Membership, error)
	GetActiveForMember(ctx context.Context, memberID int, at time.Time) (*Membership, error)
	ListByMember(ctx context.Context, memberID int) ([]Membership, error)
	DecrementClasses(ctx context.Context, id int) error
	IncrementClasses(ctx context.Context, id int) error
	UpdateStatus(ctx context.Context, id int, status Status) error
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, m *Membership) (*Membership, error) {
	out := &Membership{}
	err := db.Conn(ctx, r.db).QueryRowxContext(ctx, `
		INSERT INTO memberships (member_id, plan_name, status, classes_remaining, valid_from, valid_until, price_cents)
		VALUES ($1, $2, 'active', $3, $4, $5, $6)
		RETURNING `+membershipColumns,
		m.MemberID, m.PlanName, m.ClassesRemaining, m.ValidFrom, m.ValidUntil, m.PriceCents,
	).StructScan(out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) FindByID(ctx context.Context, id int) (*Membership, error) {
	m := &Membership{}
	err := db.Conn(ctx, r.db).GetContext(ctx, m, `SELECT `+membershipColumns+` FROM memberships WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return m, nil
}

// GetActiveForMember returns the most recently started membership in force at
// the given instant.
func (r *repository) GetActiveForMember(ctx context.Context, memberID int, at time.Time) (*Membership, error) {
	m := &Membership{}
	err := db.Conn(ctx, r.db).GetContext(ctx, m, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE member_id = $1
		  AND status = 'active'
		  AND valid_from <= $2
		  AND valid_until >= $2
		ORDER BY valid_from DESC, id DESC
		LIMIT 1
	`, memberID, at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoActiveMembership
		}
		return nil, err
	}
	return m, nil
}

func (r *repository) ListByMember(ctx context.Context, memberID int) ([]Membership, error) {
	out := []Membership{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE member_id = $1
		ORDER BY valid_from DESC, id DESC
	`, memberID)
	return out, err
}

// DecrementClasses uses one class from a metered plan. Unlimited plans are
// left untouched.
func (r *repository) DecrementClasses(ctx context.Context, id int) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE memberships
		SET classes_remaining = classes_remaining - 1
		WHERE id = $1 AND classes_remaining > 0
	`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoClassesRemaining
	}
	return nil
}

func (r *repository) IncrementClasses(ctx context.Context, id int) error {
	_, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE memberships
		SET classes_remaining = classes_remaining + 1
		WHERE id = $1 AND classes_remaining IS NOT NULL
	`, id)
	return err
}

func (r *repository) UpdateStatus(ctx context.Context, id int, status Status) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `UPDATE memberships SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMembershipNotFound
	}
	return nil
}
