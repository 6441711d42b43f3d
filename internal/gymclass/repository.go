package gymclass

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"classbook/internal/db"

	"github.com/jmoiron/sqlx"
)

const (
	classColumns = `id, name, description, location, trainer_id, category_id, class_type, max_capacity,
		waitlist_enabled, max_waitlist_size, pricing_model, drop_in_price_cents, tax_rate_bp,
		deducts_class_from_plan, access_policy, advance_booking_days, cancellation_deadline_hours,
		late_cancellation_fee_cents, image_key, status, created_at, updated_at`

	scheduleColumns = `id, gym_class_id, weekday, start_time, end_time, trainer_id, effective_from,
		effective_until, active, created_at`

	sessionColumns = `id, gym_class_id, schedule_id, location, trainer_id, starts_at, ends_at, capacity,
		booked_count, waitlist_count, checked_in_count, status, cancellation_reason, created_at, updated_at`
)

type Repository interface {
	CreateCategory(ctx context.Context, name string) (*Category, error)
	ListCategories(ctx context.Context) ([]Category, error)

	CreateClass(ctx context.Context, g *GymClass) (*GymClass, error)
	GetClass(ctx context.Context, id int) (*GymClass, error)
	ListClasses(ctx context.Context, status ClassStatus) ([]GymClass, error)
	UpdateClassStatus(ctx context.Context, id int, status ClassStatus) error
	UpdateClassCapacity(ctx context.Context, id int, capacity int) error
	SetClassImage(ctx context.Context, id int, key string) error

	CreateSchedule(ctx context.Context, s *Schedule) (*Schedule, error)
	GetSchedule(ctx context.Context, id int) (*Schedule, error)
	ListSchedulesByClass(ctx context.Context, classID int) ([]Schedule, error)
	DeactivateSchedule(ctx context.Context, id int) error
	ListActiveScheduleSlots(ctx context.Context, classID *int) ([]ScheduleSlot, error)

	CreateSession(ctx context.Context, s *Session) (*Session, error)
	GetSession(ctx context.Context, id int) (*Session, error)
	LockSession(ctx context.Context, id int) (*Session, error)
	ListSessions(ctx context.Context, f SessionFilter) ([]Session, error)
	SessionExistsForSchedule(ctx context.Context, scheduleID int, startsAt time.Time) (bool, error)
	TrainerHasOverlap(ctx context.Context, trainerID int, startsAt, endsAt time.Time) (bool, error)
	UpdateSessionCounters(ctx context.Context, s *Session) error
	UpdateSessionStatus(ctx context.Context, id int, status SessionStatus, reason string) error
	SessionHasBookings(ctx context.Context, id int) (bool, error)
	DeleteSession(ctx context.Context, id int) error
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateCategory(ctx context.Context, name string) (*Category, error) {
	var c Category
	err := db.Conn(ctx, r.db).GetContext(ctx, &c, `
		INSERT INTO class_categories (name)
		VALUES ($1)
		RETURNING id, name, created_at
	`, name)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrCategoryExists
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) ListCategories(ctx context.Context) ([]Category, error) {
	out := []Category{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out, `SELECT id, name, created_at FROM class_categories ORDER BY name`)
	return out, err
}

func (r *repository) CreateClass(ctx context.Context, g *GymClass) (*GymClass, error) {
	query := `
		INSERT INTO gym_classes (name, description, location, trainer_id, category_id, class_type, max_capacity,
			waitlist_enabled, max_waitlist_size, pricing_model, drop_in_price_cents, tax_rate_bp,
			deducts_class_from_plan, access_policy, advance_booking_days, cancellation_deadline_hours,
			late_cancellation_fee_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING ` + classColumns

	var out GymClass
	err := db.Conn(ctx, r.db).GetContext(ctx, &out, query,
		g.Name, g.Description, g.Location, g.TrainerID, g.CategoryID, g.ClassType, g.MaxCapacity,
		g.WaitlistEnabled, g.MaxWaitlistSize, g.PricingModel, g.DropInPriceCents, g.TaxRateBP,
		g.DeductsClassFromPlan, g.AccessPolicy, g.AdvanceBookingDays, g.CancellationDeadlineHours,
		g.LateCancellationFeeCents, g.Status,
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *repository) GetClass(ctx context.Context, id int) (*GymClass, error) {
	var g GymClass
	err := db.Conn(ctx, r.db).GetContext(ctx, &g, `SELECT `+classColumns+` FROM gym_classes WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClassNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *repository) ListClasses(ctx context.Context, status ClassStatus) ([]GymClass, error) {
	out := []GymClass{}
	query := `SELECT ` + classColumns + ` FROM gym_classes`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY name, id`

	err := db.Conn(ctx, r.db).SelectContext(ctx, &out, query, args...)
	return out, err
}

func (r *repository) UpdateClassStatus(ctx context.Context, id int, status ClassStatus) error {
	return r.execOne(ctx, ErrClassNotFound,
		`UPDATE gym_classes SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
}

func (r *repository) UpdateClassCapacity(ctx context.Context, id int, capacity int) error {
	return r.execOne(ctx, ErrClassNotFound,
		`UPDATE gym_classes SET max_capacity = $1, updated_at = NOW() WHERE id = $2`, capacity, id)
}

func (r *repository) SetClassImage(ctx context.Context, id int, key string) error {
	return r.execOne(ctx, ErrClassNotFound,
		`UPDATE gym_classes SET image_key = $1, updated_at = NOW() WHERE id = $2`, key, id)
}

func (r *repository) CreateSchedule(ctx context.Context, s *Schedule) (*Schedule, error) {
	var out Schedule
	err := db.Conn(ctx, r.db).GetContext(ctx, &out, `
		INSERT INTO class_schedules (gym_class_id, weekday, start_time, end_time, trainer_id, effective_from, effective_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+scheduleColumns,
		s.GymClassID, s.Weekday, s.StartTime, s.EndTime, s.TrainerID, s.EffectiveFrom, s.EffectiveUntil,
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *repository) GetSchedule(ctx context.Context, id int) (*Schedule, error) {
	var s Schedule
	err := db.Conn(ctx, r.db).GetContext(ctx, &s, `SELECT `+scheduleColumns+` FROM class_schedules WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) ListSchedulesByClass(ctx context.Context, classID int) ([]Schedule, error) {
	out := []Schedule{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out, `
		SELECT `+scheduleColumns+`
		FROM class_schedules
		WHERE gym_class_id = $1
		ORDER BY weekday, start_time
	`, classID)
	return out, err
}

func (r *repository) DeactivateSchedule(ctx context.Context, id int) error {
	return r.execOne(ctx, ErrScheduleNotFound, `UPDATE class_schedules SET active = FALSE WHERE id = $1`, id)
}

func (r *repository) ListActiveScheduleSlots(ctx context.Context, classID *int) ([]ScheduleSlot, error) {
	query := `
		SELECT s.id, s.gym_class_id, s.weekday, s.start_time, s.end_time, s.trainer_id, s.effective_from,
			s.effective_until, s.active, s.created_at,
			c.location AS class_location, c.trainer_id AS class_trainer_id, c.max_capacity AS class_capacity
		FROM class_schedules s
		JOIN gym_classes c ON c.id = s.gym_class_id
		WHERE s.active AND c.status = 'ACTIVE'`
	args := []interface{}{}
	if classID != nil {
		query += ` AND s.gym_class_id = $1`
		args = append(args, *classID)
	}
	query += ` ORDER BY s.id`

	out := []ScheduleSlot{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out, query, args...)
	return out, err
}

func (r *repository) CreateSession(ctx context.Context, s *Session) (*Session, error) {
	var out Session
	err := db.Conn(ctx, r.db).GetContext(ctx, &out, `
		INSERT INTO class_sessions (gym_class_id, schedule_id, location, trainer_id, starts_at, ends_at, capacity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+sessionColumns,
		s.GymClassID, s.ScheduleID, s.Location, s.TrainerID, s.StartsAt, s.EndsAt, s.Capacity,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrSessionExists
		}
		return nil, err
	}
	return &out, nil
}

func (r *repository) GetSession(ctx context.Context, id int) (*Session, error) {
	return r.getSession(ctx, `SELECT `+sessionColumns+` FROM class_sessions WHERE id = $1`, id)
}

// LockSession reads the session with a row lock held until the surrounding
// transaction ends.
func (r *repository) LockSession(ctx context.Context, id int) (*Session, error) {
	return r.getSession(ctx, `SELECT `+sessionColumns+` FROM class_sessions WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) getSession(ctx context.Context, query string, id int) (*Session, error) {
	var s Session
	err := db.Conn(ctx, r.db).GetContext(ctx, &s, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) ListSessions(ctx context.Context, f SessionFilter) ([]Session, error) {
	conds := []string{"starts_at >= $1", "starts_at < $2"}
	args := []interface{}{f.From, f.To}
	if f.GymClassID != nil {
		args = append(args, *f.GymClassID)
		conds = append(conds, fmt.Sprintf("gym_class_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + sessionColumns + ` FROM class_sessions WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY starts_at, id`

	out := []Session{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out, query, args...)
	return out, err
}

func (r *repository) SessionExistsForSchedule(ctx context.Context, scheduleID int, startsAt time.Time) (bool, error) {
	return db.Exists(ctx, db.Conn(ctx, r.db),
		`SELECT EXISTS(SELECT 1 FROM class_sessions WHERE schedule_id = $1 AND starts_at = $2)`,
		scheduleID, startsAt)
}

func (r *repository) TrainerHasOverlap(ctx context.Context, trainerID int, startsAt, endsAt time.Time) (bool, error) {
	return db.Exists(ctx, db.Conn(ctx, r.db), `
		SELECT EXISTS(
			SELECT 1 FROM class_sessions
			WHERE trainer_id = $1 AND status <> 'CANCELLED' AND starts_at < $3 AND ends_at > $2
		)`, trainerID, startsAt, endsAt)
}

func (r *repository) UpdateSessionCounters(ctx context.Context, s *Session) error {
	return r.execOne(ctx, ErrSessionNotFound, `
		UPDATE class_sessions
		SET booked_count = $1, waitlist_count = $2, checked_in_count = $3, updated_at = NOW()
		WHERE id = $4
	`, s.BookedCount, s.WaitlistCount, s.CheckedInCount, s.ID)
}

func (r *repository) UpdateSessionStatus(ctx context.Context, id int, status SessionStatus, reason string) error {
	return r.execOne(ctx, ErrSessionNotFound, `
		UPDATE class_sessions
		SET status = $1, cancellation_reason = $2, updated_at = NOW()
		WHERE id = $3
	`, status, reason, id)
}

func (r *repository) SessionHasBookings(ctx context.Context, id int) (bool, error) {
	return db.Exists(ctx, db.Conn(ctx, r.db), `SELECT EXISTS(SELECT 1 FROM class_bookings WHERE session_id = $1)`, id)
}

func (r *repository) DeleteSession(ctx context.Context, id int) error {
	return r.execOne(ctx, ErrSessionNotFound, `DELETE FROM class_sessions WHERE id = $1`, id)
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
