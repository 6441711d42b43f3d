package webhook

import (
	"context"
	"database/sql"
	"errors"

	"classbook/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const endpointColumns = `id, url, secret, event_types, active, created_at`

type Repository interface {
	Create(ctx context.Context, url, secret string, eventTypes []string) (*Endpoint, error)
	GetByID(ctx context.Context, id int) (*Endpoint, error)
	List(ctx context.Context) ([]Endpoint, error)
	ListActive(ctx context.Context) ([]Endpoint, error)
	Update(ctx context.Context, e *Endpoint) error
	Delete(ctx context.Context, id int) error
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, url, secret string, eventTypes []string) (*Endpoint, error) {
	var e Endpoint
	err := db.Conn(ctx, r.db).GetContext(ctx, &e, `
		INSERT INTO webhook_endpoints (url, secret, event_types)
		VALUES ($1, $2, $3)
		RETURNING `+endpointColumns,
		url, secret, pq.StringArray(eventTypes),
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Endpoint, error) {
	var e Endpoint
	err := db.Conn(ctx, r.db).GetContext(ctx, &e, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEndpointNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *repository) List(ctx context.Context) ([]Endpoint, error) {
	out := []Endpoint{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out, `SELECT `+endpointColumns+` FROM webhook_endpoints ORDER BY id`)
	return out, err
}

func (r *repository) ListActive(ctx context.Context) ([]Endpoint, error) {
	out := []Endpoint{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out,
		`SELECT `+endpointColumns+` FROM webhook_endpoints WHERE active = TRUE ORDER BY id`)
	return out, err
}

func (r *repository) Update(ctx context.Context, e *Endpoint) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE webhook_endpoints SET active = $1, event_types = $2 WHERE id = $3
	`, e.Active, e.EventTypes, e.ID)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (r *repository) Delete(ctx context.Context, id int) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func oneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEndpointNotFound
	}
	return nil
}
