package classpack

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"classbook/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	packColumns = `id, name, description, class_count, price_cents, tax_rate_bp, validity_days,
		valid_class_ids, allocation_mode, status, sort_order, created_at, updated_at`

	balanceColumns = `id, member_id, class_pack_id, classes_purchased, classes_used, status,
		price_paid_cents, expires_at, created_at, updated_at`

	categoryBalanceColumns = `id, balance_id, category_id, credits_allocated, credits_used`
)

type Repository interface {
	CreatePack(ctx context.Context, p *ClassPack) (*ClassPack, error)
	CreateAllocation(ctx context.Context, a *Allocation) error
	GetPack(ctx context.Context, id int) (*ClassPack, error)
	ListPacks(ctx context.Context, activeOnly bool) ([]ClassPack, error)
	ListAllocations(ctx context.Context, packID int) ([]Allocation, error)
	UpdatePackStatus(ctx context.Context, id int, status PackStatus) error
	DeletePack(ctx context.Context, id int) error
	CountActiveBalances(ctx context.Context, packID int) (int, error)

	CreateBalance(ctx context.Context, b *Balance) (*Balance, error)
	CreateCategoryBalance(ctx context.Context, c *CategoryBalance) error
	GetBalance(ctx context.Context, id int) (*Balance, error)
	LockBalance(ctx context.Context, id int) (*Balance, error)
	ListBalancesByMember(ctx context.Context, memberID int) ([]Balance, error)
	ListUsableBalances(ctx context.Context, memberID int, at time.Time) ([]Balance, error)
	ListCategoryBalances(ctx context.Context, balanceID int) ([]CategoryBalance, error)
	LockCategoryBalance(ctx context.Context, balanceID, categoryID int) (*CategoryBalance, error)
	LockCategoryBalanceByID(ctx context.Context, id int) (*CategoryBalance, error)
	UpdateBalanceUsage(ctx context.Context, b *Balance) error
	UpdateCategoryUsage(ctx context.Context, c *CategoryBalance) error
	ExpireBalances(ctx context.Context, at time.Time) (int64, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePack(ctx context.Context, p *ClassPack) (*ClassPack, error) {
	var out ClassPack
	err := db.Conn(ctx, r.db).GetContext(ctx, &out, `
		INSERT INTO class_packs (name, description, class_count, price_cents, tax_rate_bp, validity_days,
			valid_class_ids, allocation_mode, status, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+packColumns,
		p.Name, p.Description, p.ClassCount, p.PriceCents, p.TaxRateBP, p.ValidityDays,
		pq.Int64Array(p.ValidClassIDs), p.AllocationMode, p.Status, p.SortOrder,
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *repository) CreateAllocation(ctx context.Context, a *Allocation) error {
	return db.Conn(ctx, r.db).QueryRowxContext(ctx, `
		INSERT INTO class_pack_allocations (class_pack_id, category_id, credit_count)
		VALUES ($1, $2, $3)
		RETURNING id
	`, a.ClassPackID, a.CategoryID, a.CreditCount).Scan(&a.ID)
}

func (r *repository) GetPack(ctx context.Context, id int) (*ClassPack, error) {
	var p ClassPack
	err := db.Conn(ctx, r.db).GetContext(ctx, &p, `SELECT `+packColumns+` FROM class_packs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPackNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListPacks(ctx context.Context, activeOnly bool) ([]ClassPack, error) {
	query := `SELECT ` + packColumns + ` FROM class_packs`
	if activeOnly {
		query += ` WHERE status = 'ACTIVE'`
	}
	query += ` ORDER BY sort_order, id`

	out := []ClassPack{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out, query)
	return out, err
}

func (r *repository) ListAllocations(ctx context.Context, packID int) ([]Allocation, error) {
	out := []Allocation{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out, `
		SELECT id, class_pack_id, category_id, credit_count
		FROM class_pack_allocations
		WHERE class_pack_id = $1
		ORDER BY id
	`, packID)
	return out, err
}

func (r *repository) UpdatePackStatus(ctx context.Context, id int, status PackStatus) error {
	return r.execOne(ctx, ErrPackNotFound,
		`UPDATE class_packs SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
}

func (r *repository) DeletePack(ctx context.Context, id int) error {
	return r.execOne(ctx, ErrPackNotFound, `DELETE FROM class_packs WHERE id = $1`, id)
}

func (r *repository) CountActiveBalances(ctx context.Context, packID int) (int, error) {
	var n int
	err := db.Conn(ctx, r.db).GetContext(ctx, &n,
		`SELECT COUNT(*) FROM member_class_pack_balances WHERE class_pack_id = $1 AND status = 'ACTIVE'`, packID)
	return n, err
}

func (r *repository) CreateBalance(ctx context.Context, b *Balance) (*Balance, error) {
	var out Balance
	err := db.Conn(ctx, r.db).GetContext(ctx, &out, `
		INSERT INTO member_class_pack_balances (member_id, class_pack_id, classes_purchased, status, price_paid_cents, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+balanceColumns,
		b.MemberID, b.ClassPackID, b.ClassesPurchased, b.Status, b.PricePaidCents, b.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *repository) CreateCategoryBalance(ctx context.Context, c *CategoryBalance) error {
	return db.Conn(ctx, r.db).QueryRowxContext(ctx, `
		INSERT INTO member_category_balances (balance_id, category_id, credits_allocated)
		VALUES ($1, $2, $3)
		RETURNING id
	`, c.BalanceID, c.CategoryID, c.CreditsAllocated).Scan(&c.ID)
}

func (r *repository) GetBalance(ctx context.Context, id int) (*Balance, error) {
	return r.getBalance(ctx, `SELECT `+balanceColumns+` FROM member_class_pack_balances WHERE id = $1`, id)
}

func (r *repository) LockBalance(ctx context.Context, id int) (*Balance, error) {
	return r.getBalance(ctx, `SELECT `+balanceColumns+` FROM member_class_pack_balances WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) getBalance(ctx context.Context, query string, id int) (*Balance, error) {
	var b Balance
	err := db.Conn(ctx, r.db).GetContext(ctx, &b, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *repository) ListBalancesByMember(ctx context.Context, memberID int) ([]Balance, error) {
	out := []Balance{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out, `
		SELECT `+balanceColumns+`
		FROM member_class_pack_balances
		WHERE member_id = $1
		ORDER BY created_at DESC, id DESC
	`, memberID)
	return out, err
}

// ListUsableBalances returns active balances with credits left, soonest
// expiry first.
func (r *repository) ListUsableBalances(ctx context.Context, memberID int, at time.Time) ([]Balance, error) {
	out := []Balance{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out, `
		SELECT `+balanceColumns+`
		FROM member_class_pack_balances
		WHERE member_id = $1 AND status = 'ACTIVE' AND expires_at > $2 AND classes_used < classes_purchased
		ORDER BY expires_at, id
	`, memberID, at)
	return out, err
}

func (r *repository) ListCategoryBalances(ctx context.Context, balanceID int) ([]CategoryBalance, error) {
	out := []CategoryBalance{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out,
		`SELECT `+categoryBalanceColumns+` FROM member_category_balances WHERE balance_id = $1 ORDER BY id`, balanceID)
	return out, err
}

func (r *repository) LockCategoryBalance(ctx context.Context, balanceID, categoryID int) (*CategoryBalance, error) {
	var c CategoryBalance
	err := db.Conn(ctx, r.db).GetContext(ctx, &c, `
		SELECT `+categoryBalanceColumns+`
		FROM member_category_balances
		WHERE balance_id = $1 AND category_id = $2
		FOR UPDATE
	`, balanceID, categoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoCategoryCredits
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) LockCategoryBalanceByID(ctx context.Context, id int) (*CategoryBalance, error) {
	var c CategoryBalance
	err := db.Conn(ctx, r.db).GetContext(ctx, &c,
		`SELECT `+categoryBalanceColumns+` FROM member_category_balances WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) UpdateBalanceUsage(ctx context.Context, b *Balance) error {
	return r.execOne(ctx, ErrBalanceNotFound, `
		UPDATE member_class_pack_balances
		SET classes_used = $1, status = $2, updated_at = NOW()
		WHERE id = $3
	`, b.ClassesUsed, b.Status, b.ID)
}

func (r *repository) UpdateCategoryUsage(ctx context.Context, c *CategoryBalance) error {
	return r.execOne(ctx, ErrBalanceNotFound,
		`UPDATE member_category_balances SET credits_used = $1 WHERE id = $2`, c.CreditsUsed, c.ID)
}

func (r *repository) ExpireBalances(ctx context.Context, at time.Time) (int64, error) {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE member_class_pack_balances
		SET status = 'EXPIRED', updated_at = NOW()
		WHERE status = 'ACTIVE' AND expires_at <= $1
	`, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repository) execOne(ctx context.Context, notFound error, query string, args ...interface{}) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
