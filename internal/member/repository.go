package member

import (
	"context"
	"database/sql"
	"errors"

	"classbook/internal/db"

	"github.com/jmoiron/sqlx"
)

const memberColumns = `id, user_id, first_name, last_name, email, phone, status, created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, req CreateMemberRequest) (*Member, error) {
	query := `
		INSERT INTO members (user_id, first_name, last_name, email, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + memberColumns

	var m Member
	err := db.Conn(ctx, r.db).GetContext(ctx, &m, query, req.UserID, req.FirstName, req.LastName, req.Email, req.Phone)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, err
	}

	return &m, nil
}

func (r *repository) FindByID(ctx context.Context, id int) (*Member, error) {
	return r.findOne(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
}

func (r *repository) FindByUserID(ctx context.Context, userID int) (*Member, error) {
	return r.findOne(ctx, `SELECT `+memberColumns+` FROM members WHERE user_id = $1`, userID)
}

func (r *repository) findOne(ctx context.Context, query string, arg interface{}) (*Member, error) {
	var m Member
	err := db.Conn(ctx, r.db).GetContext(ctx, &m, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *repository) EmailExists(ctx context.Context, email string) (bool, error) {
	return db.Exists(ctx, db.Conn(ctx, r.db), `SELECT EXISTS(SELECT 1 FROM members WHERE email = $1)`, email)
}

func (r *repository) List(ctx context.Context, limit, offset int) ([]Member, int, error) {
	q := db.Conn(ctx, r.db)

	var total int
	if err := q.GetContext(ctx, &total, `SELECT COUNT(*) FROM members`); err != nil {
		return nil, 0, err
	}

	var members []Member
	err := q.SelectContext(ctx, &members, `
		SELECT `+memberColumns+`
		FROM members
		ORDER BY last_name, first_name, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	return members, total, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int, status Status) (*Member, error) {
	query := `
		UPDATE members
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + memberColumns

	var m Member
	err := db.Conn(ctx, r.db).GetContext(ctx, &m, query, status, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &m, nil
}
