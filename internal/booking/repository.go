package booking

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"classbook/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const bookingColumns = `id, session_id, member_id, status, payment_source, membership_id,
	class_pack_balance_id, category_balance_id, paid_amount_cents, waitlist_position, notes,
	booked_by, cancellation_reason, late_cancellation, checked_in_at, cancelled_at,
	created_at, updated_at`

const detailsSelect = `
	SELECT
		b.id, b.session_id, b.member_id, b.status, b.payment_source, b.membership_id,
		b.class_pack_balance_id, b.category_balance_id, b.paid_amount_cents, b.waitlist_position,
		b.notes, b.booked_by, b.cancellation_reason, b.late_cancellation, b.checked_in_at,
		b.cancelled_at, b.created_at, b.updated_at,
		s.starts_at AS session_starts_at,
		s.ends_at AS session_ends_at,
		g.name AS class_name,
		s.location AS location,
		m.first_name || ' ' || m.last_name AS member_name,
		m.email AS member_email
	FROM class_bookings b
	JOIN class_sessions s ON s.id = b.session_id
	JOIN gym_classes g ON g.id = s.gym_class_id
	JOIN members m ON m.id = b.member_id`

type Repository interface {
	Create(ctx context.Context, b *Booking) (*Booking, error)
	GetByID(ctx context.Context, id int) (*Booking, error)
	Lock(ctx context.Context, id int) (*Booking, error)
	GetDetails(ctx context.Context, id int) (*BookingDetails, error)
	HasActiveBooking(ctx context.Context, sessionID, memberID int) (bool, error)
	HasOverlappingBooking(ctx context.Context, memberID int, startsAt, endsAt time.Time) (bool, error)
	FirstWaitlisted(ctx context.Context, sessionID int) (*Booking, error)
	RenumberWaitlist(ctx context.Context, sessionID int) error
	Update(ctx context.Context, b *Booking) error
	Delete(ctx context.Context, id int) error

	ListBySession(ctx context.Context, sessionID int) ([]BookingDetails, error)
	ListWaitlist(ctx context.Context, sessionID int) ([]BookingDetails, error)
	ListBySessionStatus(ctx context.Context, sessionID int, statuses ...Status) ([]Booking, error)
	ListByMember(ctx context.Context, memberID int, scope MemberScope, limit, offset int) ([]BookingDetails, int, error)

	StatsByDay(ctx context.Context, from, to time.Time) ([]Stats, error)
	StatsByClass(ctx context.Context, from, to time.Time) ([]Stats, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, b *Booking) (*Booking, error) {
	var out Booking
	err := db.Conn(ctx, r.db).GetContext(ctx, &out, `
		INSERT INTO class_bookings (session_id, member_id, status, payment_source, membership_id,
			class_pack_balance_id, category_balance_id, paid_amount_cents, waitlist_position, notes, booked_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+bookingColumns,
		b.SessionID, b.MemberID, b.Status, b.PaymentSource, b.MembershipID,
		b.ClassPackBalanceID, b.CategoryBalanceID, b.PaidAmountCents, b.WaitlistPosition, b.Notes, b.BookedBy,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrAlreadyBooked
		}
		return nil, err
	}
	return &out, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM class_bookings WHERE id = $1`, id)
}

// Lock reads the booking with a row lock held until the surrounding
// transaction ends.
func (r *repository) Lock(ctx context.Context, id int) (*Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM class_bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) get(ctx context.Context, query string, id int) (*Booking, error) {
	var b Booking
	if err := db.Conn(ctx, r.db).GetContext(ctx, &b, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *repository) GetDetails(ctx context.Context, id int) (*BookingDetails, error) {
	var d BookingDetails
	if err := db.Conn(ctx, r.db).GetContext(ctx, &d, detailsSelect+` WHERE b.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *repository) HasActiveBooking(ctx context.Context, sessionID, memberID int) (bool, error) {
	return db.Exists(ctx, db.Conn(ctx, r.db), `
		SELECT EXISTS(
			SELECT 1 FROM class_bookings
			WHERE session_id = $1 AND member_id = $2 AND status <> 'CANCELLED'
		)`, sessionID, memberID)
}

// HasOverlappingBooking reports whether the member holds a seat or waitlist
// place on another live session that overlaps [startsAt, endsAt).
func (r *repository) HasOverlappingBooking(ctx context.Context, memberID int, startsAt, endsAt time.Time) (bool, error) {
	return db.Exists(ctx, db.Conn(ctx, r.db), `
		SELECT EXISTS(
			SELECT 1 FROM class_bookings b
			JOIN class_sessions s ON s.id = b.session_id
			WHERE b.member_id = $1
				AND b.status IN ('CONFIRMED', 'WAITLISTED')
				AND s.status <> 'CANCELLED'
				AND s.starts_at < $3 AND s.ends_at > $2
		)`, memberID, startsAt, endsAt)
}

// FirstWaitlisted returns the earliest waitlisted booking of the session, or
// nil when nobody is waiting.
func (r *repository) FirstWaitlisted(ctx context.Context, sessionID int) (*Booking, error) {
	var b Booking
	err := db.Conn(ctx, r.db).GetContext(ctx, &b, `
		SELECT `+bookingColumns+`
		FROM class_bookings
		WHERE session_id = $1 AND status = 'WAITLISTED'
		ORDER BY created_at, id
		LIMIT 1
		FOR UPDATE
	`, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *repository) RenumberWaitlist(ctx context.Context, sessionID int) error {
	_, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE class_bookings b
		SET waitlist_position = w.pos, updated_at = NOW()
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY created_at, id) AS pos
			FROM class_bookings
			WHERE session_id = $1 AND status = 'WAITLISTED'
		) w
		WHERE b.id = w.id AND b.waitlist_position IS DISTINCT FROM w.pos
	`, sessionID)
	return err
}

func (r *repository) Update(ctx context.Context, b *Booking) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE class_bookings
		SET status = $1, waitlist_position = $2, cancellation_reason = $3, late_cancellation = $4,
			checked_in_at = $5, cancelled_at = $6, updated_at = NOW()
		WHERE id = $7
	`, b.Status, b.WaitlistPosition, b.CancellationReason, b.LateCancellation, b.CheckedInAt, b.CancelledAt, b.ID)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (r *repository) Delete(ctx context.Context, id int) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM class_bookings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (r *repository) ListBySession(ctx context.Context, sessionID int) ([]BookingDetails, error) {
	out := []BookingDetails{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out,
		detailsSelect+` WHERE b.session_id = $1 ORDER BY b.created_at, b.id`, sessionID)
	return out, err
}

func (r *repository) ListWaitlist(ctx context.Context, sessionID int) ([]BookingDetails, error) {
	out := []BookingDetails{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out,
		detailsSelect+` WHERE b.session_id = $1 AND b.status = 'WAITLISTED' ORDER BY b.waitlist_position, b.id`, sessionID)
	return out, err
}

// ListBySessionStatus returns the session's bookings in the given statuses,
// locked for update, oldest first.
func (r *repository) ListBySessionStatus(ctx context.Context, sessionID int, statuses ...Status) ([]Booking, error) {
	names := make(pq.StringArray, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	out := []Booking{}
	err := db.Conn(ctx, r.db).SelectContext(ctx, &out, `
		SELECT `+bookingColumns+`
		FROM class_bookings
		WHERE session_id = $1 AND status = ANY($2)
		ORDER BY created_at, id
		FOR UPDATE
	`, sessionID, names)
	return out, err
}

func (r *repository) ListByMember(ctx context.Context, memberID int, scope MemberScope, limit, offset int) ([]BookingDetails, int, error) {
	where := ` WHERE b.member_id = $1`
	order := ` ORDER BY s.starts_at DESC, b.id DESC`
	switch scope {
	case ScopeUpcoming:
		where += ` AND s.starts_at >= NOW() AND b.status IN ('CONFIRMED', 'WAITLISTED')`
		order = ` ORDER BY s.starts_at, b.id`
	case ScopePast:
		where += ` AND s.starts_at < NOW()`
	}

	q := db.Conn(ctx, r.db)

	var total int
	err := q.GetContext(ctx, &total, `
		SELECT COUNT(*)
		FROM class_bookings b
		JOIN class_sessions s ON s.id = b.session_id`+where, memberID)
	if err != nil {
		return nil, 0, err
	}

	out := []BookingDetails{}
	err = q.SelectContext(ctx, &out, detailsSelect+where+order+` LIMIT $2 OFFSET $3`, memberID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func oneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBookingNotFound
	}
	return nil
}
