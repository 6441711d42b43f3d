package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classbook/internal/api"
	"classbook/internal/db"
	"classbook/internal/email"
	"classbook/internal/gymclass"
	"classbook/internal/logger"
	"classbook/internal/member"
	"classbook/internal/membership"
	"classbook/internal/metrics"
)

var (
	ErrBookingNotFound          = errors.New("booking not found")
	ErrSessionNotBookable       = errors.New("session is not open for booking")
	ErrSessionFull              = errors.New("session is full")
	ErrAlreadyBooked            = errors.New("member already has a booking for this session")
	ErrOverlappingBooking       = errors.New("member has an overlapping booking")
	ErrSessionInPast            = errors.New("cannot book a session in the past")
	ErrOutsideBookingWindow     = errors.New("session is outside the advance booking window")
	ErrMembershipRequired       = errors.New("an active membership is required for this class")
	ErrInvalidPaymentSource     = errors.New("invalid payment source")
	ErrPaymentSourceNotAccepted = errors.New("payment source is not accepted for this class")
	ErrClassPackBalanceRequired = errors.New("class_pack_balance_id is required")
	ErrComplimentaryStaffOnly   = errors.New("only staff can book complimentary")
	ErrDropInPriceMissing       = errors.New("class has no drop-in price")
	ErrInvalidBookingState      = errors.New("invalid booking state transition")
	ErrNotBookingOwner          = errors.New("booking belongs to another member")
	ErrMemberInactive           = errors.New("member is not active")
	ErrMemberRequired           = errors.New("member_id is required")
	ErrInvalidDateRange         = errors.New("invalid date range")
	ErrInvalidStatsGroup        = errors.New("group_by must be 'day' or 'class'")
)

// SessionStore is the part of the class catalogue bookings write through.
type SessionStore interface {
	GetClass(ctx context.Context, id int) (*gymclass.GymClass, error)
	GetSession(ctx context.Context, id int) (*gymclass.Session, error)
	LockSession(ctx context.Context, id int) (*gymclass.Session, error)
	UpdateSessionCounters(ctx context.Context, s *gymclass.Session) error
	UpdateSessionStatus(ctx context.Context, id int, status gymclass.SessionStatus, reason string) error
}

type MemberFinder interface {
	GetByID(ctx context.Context, id int) (*member.Member, error)
}

type Notifier interface {
	SendBookingEmail(ctx context.Context, template string, e email.BookingEmail) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event string, payload interface{}) error
}

type Service interface {
	Create(ctx context.Context, actor Actor, req CreateBookingRequest) (*Booking, error)
	Get(ctx context.Context, actor Actor, id int) (*BookingDetails, error)
	Cancel(ctx context.Context, actor Actor, id int, reason string) (*CancelResult, error)
	CheckIn(ctx context.Context, id int) (*Booking, error)
	MarkNoShow(ctx context.Context, id int) (*Booking, error)
	Delete(ctx context.Context, id int) error

	BulkCreate(ctx context.Context, actor Actor, req BulkCreateRequest) BulkResponse
	BulkCancel(ctx context.Context, actor Actor, req BulkIDsRequest) BulkResponse
	BulkCheckIn(ctx context.Context, req BulkIDsRequest) BulkResponse

	ListBySession(ctx context.Context, sessionID int) ([]BookingDetails, error)
	Waitlist(ctx context.Context, sessionID int) ([]BookingDetails, error)
	ListByMember(ctx context.Context, memberID int, scope MemberScope, p api.Pagination) (api.Page[BookingDetails], error)
	PaymentOptions(ctx context.Context, memberID, sessionID int) (*PaymentOptions, error)

	CancelSession(ctx context.Context, sessionID int, reason string) (*SessionResult, error)
	CompleteSession(ctx context.Context, sessionID int) (*SessionResult, error)
	ProcessNoShows(ctx context.Context, sessionID int) (*SessionResult, error)

	Stats(ctx context.Context, from, to time.Time, group StatsGroup) ([]Stats, error)
}

type service struct {
	repo        Repository
	sessions    SessionStore
	members     MemberFinder
	memberships MembershipSource
	resolver    *Resolver
	tx          db.Transactor
	notifier    Notifier
	events      EventPublisher
	now         func() time.Time
}

// NewService wires the booking ledger. notifier and events may be nil.
func NewService(
	repo Repository,
	sessions SessionStore,
	members MemberFinder,
	memberships MembershipSource,
	resolver *Resolver,
	tx db.Transactor,
	notifier Notifier,
	events EventPublisher,
) Service {
	return &service{
		repo:        repo,
		sessions:    sessions,
		members:     members,
		memberships: memberships,
		resolver:    resolver,
		tx:          tx,
		notifier:    notifier,
		events:      events,
		now:         time.Now,
	}
}

// effects are side effects that only run once the transaction committed.
type effects []func(ctx context.Context)

func (e *effects) add(fn func(ctx context.Context)) {
	*e = append(*e, fn)
}

func (e effects) run(ctx context.Context) {
	for _, fn := range e {
		fn(ctx)
	}
}

func (s *service) Create(ctx context.Context, actor Actor, req CreateBookingRequest) (*Booking, error) {
	memberID := actor.MemberID
	if actor.Staff && req.MemberID != 0 {
		memberID = req.MemberID
	}
	if memberID == 0 {
		return nil, ErrMemberRequired
	}

	m, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if !m.IsActive() {
		return nil, ErrMemberInactive
	}

	var (
		created *Booking
		fx      effects
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		fx = nil

		sess, err := s.sessions.LockSession(ctx, req.SessionID)
		if err != nil {
			return err
		}
		class, err := s.sessions.GetClass(ctx, sess.GymClassID)
		if err != nil {
			return err
		}

		if err := s.checkBookable(ctx, memberID, sess, class); err != nil {
			return err
		}
		if err := s.checkAccess(ctx, memberID, class, req.PaymentSource); err != nil {
			return err
		}

		charge, err := s.resolver.Charge(ctx, ChargeRequest{
			MemberID:           memberID,
			SessionID:          sess.ID,
			Class:              class,
			Source:             req.PaymentSource,
			ClassPackBalanceID: req.ClassPackBalanceID,
			Staff:              actor.Staff,
		})
		if err != nil {
			return err
		}

		status, pos, err := Allocate(sess, class)
		if err != nil {
			return err
		}

		b := &Booking{
			SessionID:        sess.ID,
			MemberID:         memberID,
			Status:           status,
			WaitlistPosition: pos,
			Notes:            req.Notes,
		}
		if actor.UserID != 0 {
			by := actor.UserID
			b.BookedBy = &by
		}
		charge.apply(b)

		created, err = s.repo.Create(ctx, b)
		if err != nil {
			return err
		}
		if err := s.sessions.UpdateSessionCounters(ctx, sess); err != nil {
			return err
		}

		booked := *created
		fx.add(func(ctx context.Context) {
			metrics.RecordBooking(string(booked.Status), string(booked.PaymentSource))
			template := email.TemplateBookingConfirmed
			if booked.Status == StatusWaitlisted {
				template = email.TemplateWaitlisted
			}
			s.notify(ctx, template, &booked, sess, class, "")
			s.publish(ctx, EventBookingCreated, booked)
			if booked.Status == StatusConfirmed {
				s.publish(ctx, EventBookingConfirmed, booked)
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	fx.run(ctx)
	logger.Info("booking created",
		"booking_id", created.ID, "session_id", created.SessionID, "member_id", created.MemberID, "status", created.Status)
	return created, nil
}

func (s *service) checkBookable(ctx context.Context, memberID int, sess *gymclass.Session, class *gymclass.GymClass) error {
	if !sess.IsBookable() {
		return ErrSessionNotBookable
	}

	now := s.now()
	if !sess.StartsAt.After(now) {
		return ErrSessionInPast
	}
	if class.AdvanceBookingDays > 0 && sess.StartsAt.After(now.AddDate(0, 0, class.AdvanceBookingDays)) {
		return ErrOutsideBookingWindow
	}

	booked, err := s.repo.HasActiveBooking(ctx, sess.ID, memberID)
	if err != nil {
		return err
	}
	if booked {
		return ErrAlreadyBooked
	}

	overlap, err := s.repo.HasOverlappingBooking(ctx, memberID, sess.StartsAt, sess.EndsAt)
	if err != nil {
		return err
	}
	if overlap {
		return ErrOverlappingBooking
	}
	return nil
}

func (s *service) checkAccess(ctx context.Context, memberID int, class *gymclass.GymClass, source PaymentSource) error {
	if class.AccessPolicy != gymclass.AccessMembersOnly || source == SourceComplimentary {
		return nil
	}
	_, err := s.memberships.GetActive(ctx, memberID)
	if errors.Is(err, membership.ErrNoActiveMembership) {
		return ErrMembershipRequired
	}
	return err
}

func (s *service) Get(ctx context.Context, actor Actor, id int) (*BookingDetails, error) {
	d, err := s.repo.GetDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Staff && d.MemberID != actor.MemberID {
		return nil, ErrNotBookingOwner
	}
	return d, nil
}

// lockForSession takes the session lock before the booking lock, the same
// order Create uses.
func (s *service) lockForSession(ctx context.Context, id int) (*Booking, *gymclass.Session, *gymclass.GymClass, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	sess, err := s.sessions.LockSession(ctx, b.SessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	class, err := s.sessions.GetClass(ctx, sess.GymClassID)
	if err != nil {
		return nil, nil, nil, err
	}
	b, err = s.repo.Lock(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return b, sess, class, nil
}

func (s *service) Cancel(ctx context.Context, actor Actor, id int, reason string) (*CancelResult, error) {
	var (
		res *CancelResult
		fx  effects
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		fx = nil

		b, sess, class, err := s.lockForSession(ctx, id)
		if err != nil {
			return err
		}
		if !actor.Staff && b.MemberID != actor.MemberID {
			return ErrNotBookingOwner
		}
		if !b.IsActive() || sess.Status == gymclass.SessionCompleted || sess.Status == gymclass.SessionCancelled {
			return ErrInvalidBookingState
		}

		now := s.now()
		prev := b.Status
		deadline := sess.StartsAt.Add(-time.Duration(class.CancellationDeadlineHours) * time.Hour)
		late := prev == StatusConfirmed && now.After(deadline)

		res = &CancelResult{Booking: b, LateCancellation: late}
		if late {
			res.LateFeeCents = class.LateCancellationFeeCents
		} else {
			if err := s.resolver.Refund(ctx, b, class); err != nil {
				return fmt.Errorf("refund booking %d: %w", b.ID, err)
			}
			res.Refunded = true
		}

		b.Status = StatusCancelled
		b.WaitlistPosition = nil
		b.CancellationReason = reason
		b.LateCancellation = late
		b.CancelledAt = &now
		if err := s.repo.Update(ctx, b); err != nil {
			return err
		}

		Release(sess, prev)
		if prev == StatusWaitlisted {
			if err := s.repo.RenumberWaitlist(ctx, sess.ID); err != nil {
				return err
			}
		}

		promoted, err := s.promote(ctx, sess)
		if err != nil {
			return err
		}
		res.Promoted = promoted

		if err := s.sessions.UpdateSessionCounters(ctx, sess); err != nil {
			return err
		}

		cancelled := *b
		fx.add(func(ctx context.Context) {
			metrics.RecordBookingCancellation(late)
			s.notify(ctx, email.TemplateCancelled, &cancelled, sess, class, reason)
			s.publish(ctx, EventBookingCancelled, cancelled)
		})
		if promoted != nil {
			p := *promoted
			fx.add(func(ctx context.Context) {
				metrics.RecordWaitlistPromotion()
				s.notify(ctx, email.TemplatePromoted, &p, sess, class, "")
				s.publish(ctx, EventBookingPromoted, p)
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fx.run(ctx)
	logger.Info("booking cancelled", "booking_id", id, "late", res.LateCancellation, "refunded", res.Refunded)
	return res, nil
}

// promote fills one free seat from the head of the waitlist and renumbers
// the rest. It returns nil when nothing was promoted.
func (s *service) promote(ctx context.Context, sess *gymclass.Session) (*Booking, error) {
	if !CanPromote(sess) {
		return nil, nil
	}

	next, err := s.repo.FirstWaitlisted(ctx, sess.ID)
	if err != nil || next == nil {
		return nil, err
	}

	Promote(sess, next)
	if err := s.repo.Update(ctx, next); err != nil {
		return nil, err
	}
	if err := s.repo.RenumberWaitlist(ctx, sess.ID); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *service) CheckIn(ctx context.Context, id int) (*Booking, error) {
	var out *Booking
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, sess, _, err := s.lockForSession(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != StatusConfirmed {
			return ErrInvalidBookingState
		}
		if sess.Status != gymclass.SessionScheduled && sess.Status != gymclass.SessionInProgress {
			return gymclass.ErrInvalidSessionState
		}

		now := s.now()
		b.Status = StatusCheckedIn
		b.CheckedInAt = &now
		if err := s.repo.Update(ctx, b); err != nil {
			return err
		}

		sess.CheckedInCount++
		if err := s.sessions.UpdateSessionCounters(ctx, sess); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventBookingCheckedIn, *out)
	return out, nil
}

func (s *service) MarkNoShow(ctx context.Context, id int) (*Booking, error) {
	var out *Booking
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, sess, _, err := s.lockForSession(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != StatusConfirmed {
			return ErrInvalidBookingState
		}
		if sess.Status != gymclass.SessionInProgress && sess.Status != gymclass.SessionCompleted {
			return gymclass.ErrInvalidSessionState
		}
		b.Status = StatusNoShow
		if err := s.repo.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventBookingNoShow, *out)
	return out, nil
}

func (s *service) Delete(ctx context.Context, id int) error {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !b.Deletable() {
		return ErrInvalidBookingState
	}
	return s.repo.Delete(ctx, id)
}

func (s *service) BulkCreate(ctx context.Context, actor Actor, req BulkCreateRequest) BulkResponse {
	results := make([]BulkResult, 0, len(req.MemberIDs))
	for _, memberID := range req.MemberIDs {
		b, err := s.Create(ctx, actor, CreateBookingRequest{
			SessionID:     req.SessionID,
			MemberID:      memberID,
			PaymentSource: req.PaymentSource,
			Notes:         req.Notes,
		})
		results = append(results, bulkResult(memberID, b, err))
	}
	return NewBulkResponse(results)
}

func (s *service) BulkCancel(ctx context.Context, actor Actor, req BulkIDsRequest) BulkResponse {
	results := make([]BulkResult, 0, len(req.BookingIDs))
	for _, id := range req.BookingIDs {
		res, err := s.Cancel(ctx, actor, id, req.Reason)
		var b *Booking
		if res != nil {
			b = res.Booking
		}
		results = append(results, bulkResult(id, b, err))
	}
	return NewBulkResponse(results)
}

func (s *service) BulkCheckIn(ctx context.Context, req BulkIDsRequest) BulkResponse {
	results := make([]BulkResult, 0, len(req.BookingIDs))
	for _, id := range req.BookingIDs {
		b, err := s.CheckIn(ctx, id)
		results = append(results, bulkResult(id, b, err))
	}
	return NewBulkResponse(results)
}

func bulkResult(id int, b *Booking, err error) BulkResult {
	if err != nil {
		return BulkResult{ID: id, Error: err.Error()}
	}
	return BulkResult{ID: id, Success: true, Booking: b}
}

func (s *service) ListBySession(ctx context.Context, sessionID int) ([]BookingDetails, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListBySession(ctx, sessionID)
}

func (s *service) Waitlist(ctx context.Context, sessionID int) ([]BookingDetails, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListWaitlist(ctx, sessionID)
}

func (s *service) ListByMember(ctx context.Context, memberID int, scope MemberScope, p api.Pagination) (api.Page[BookingDetails], error) {
	items, total, err := s.repo.ListByMember(ctx, memberID, scope, p.Limit(), p.Offset())
	if err != nil {
		return api.Page[BookingDetails]{}, err
	}
	return api.NewPage(items, p, total), nil
}

func (s *service) PaymentOptions(ctx context.Context, memberID, sessionID int) (*PaymentOptions, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	class, err := s.sessions.GetClass(ctx, sess.GymClassID)
	if err != nil {
		return nil, err
	}
	return s.resolver.Options(ctx, memberID, sess, class)
}

// CancelSession cancels the session and every booking still holding a seat
// or waitlist place, refunding each in full.
func (s *service) CancelSession(ctx context.Context, sessionID int, reason string) (*SessionResult, error) {
	var (
		res *SessionResult
		fx  effects
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		fx = nil

		sess, err := s.sessions.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		class, err := s.sessions.GetClass(ctx, sess.GymClassID)
		if err != nil {
			return err
		}
		if err := sess.Cancel(reason); err != nil {
			return err
		}

		affected, err := s.cancelAll(ctx, sess, class, reason, StatusConfirmed, StatusWaitlisted)
		if err != nil {
			return err
		}

		if err := s.sessions.UpdateSessionStatus(ctx, sess.ID, sess.Status, reason); err != nil {
			return err
		}
		if err := s.sessions.UpdateSessionCounters(ctx, sess); err != nil {
			return err
		}

		res = &SessionResult{Session: sess, Affected: len(affected)}
		fx.add(func(ctx context.Context) {
			for i := range affected {
				s.notify(ctx, email.TemplateSessionCancelled, &affected[i], sess, class, reason)
			}
			s.publish(ctx, EventSessionCancelled, res)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	fx.run(ctx)
	logger.Info("session cancelled", "session_id", sessionID, "affected_bookings", res.Affected)
	return res, nil
}

// CompleteSession closes the session. Members still on the waitlist never
// got a seat, so their bookings are cancelled and refunded.
func (s *service) CompleteSession(ctx context.Context, sessionID int) (*SessionResult, error) {
	var res *SessionResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		sess, err := s.sessions.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		class, err := s.sessions.GetClass(ctx, sess.GymClassID)
		if err != nil {
			return err
		}
		if err := sess.Complete(); err != nil {
			return err
		}

		affected, err := s.cancelAll(ctx, sess, class, "session completed", StatusWaitlisted)
		if err != nil {
			return err
		}

		if err := s.sessions.UpdateSessionStatus(ctx, sess.ID, sess.Status, ""); err != nil {
			return err
		}
		if err := s.sessions.UpdateSessionCounters(ctx, sess); err != nil {
			return err
		}
		res = &SessionResult{Session: sess, Affected: len(affected)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *service) cancelAll(ctx context.Context, sess *gymclass.Session, class *gymclass.GymClass, reason string, statuses ...Status) ([]Booking, error) {
	list, err := s.repo.ListBySessionStatus(ctx, sess.ID, statuses...)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range list {
		b := &list[i]
		if err := s.resolver.Refund(ctx, b, class); err != nil {
			return nil, fmt.Errorf("refund booking %d: %w", b.ID, err)
		}
		prev := b.Status
		b.Status = StatusCancelled
		b.WaitlistPosition = nil
		b.CancellationReason = reason
		b.CancelledAt = &now
		if err := s.repo.Update(ctx, b); err != nil {
			return nil, err
		}
		Release(sess, prev)
	}
	return list, nil
}

// ProcessNoShows marks every booking of a completed session that never
// checked in as a no-show.
func (s *service) ProcessNoShows(ctx context.Context, sessionID int) (*SessionResult, error) {
	var (
		res     *SessionResult
		noShows []Booking
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		sess, err := s.sessions.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != gymclass.SessionCompleted {
			return gymclass.ErrInvalidSessionState
		}

		noShows, err = s.repo.ListBySessionStatus(ctx, sess.ID, StatusConfirmed)
		if err != nil {
			return err
		}
		for i := range noShows {
			noShows[i].Status = StatusNoShow
			if err := s.repo.Update(ctx, &noShows[i]); err != nil {
				return err
			}
		}
		res = &SessionResult{Session: sess, Affected: len(noShows)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, b := range noShows {
		s.publish(ctx, EventBookingNoShow, b)
	}
	return res, nil
}

func (s *service) Stats(ctx context.Context, from, to time.Time, group StatsGroup) ([]Stats, error) {
	if !to.After(from) {
		return nil, ErrInvalidDateRange
	}
	switch group {
	case GroupByDay:
		return s.repo.StatsByDay(ctx, from, to)
	case GroupByClass:
		return s.repo.StatsByClass(ctx, from, to)
	}
	return nil, ErrInvalidStatsGroup
}

func (s *service) notify(ctx context.Context, template string, b *Booking, sess *gymclass.Session, class *gymclass.GymClass, reason string) {
	if s.notifier == nil {
		return
	}

	m, err := s.members.GetByID(ctx, b.MemberID)
	if err != nil {
		logger.WithError(err).Warn("notification skipped", "booking_id", b.ID, "template", template)
		return
	}

	e := email.BookingEmail{
		To:               m.Email,
		MemberName:       m.FullName(),
		ClassName:        class.Name,
		Location:         sess.Location,
		StartsAt:         sess.StartsAt,
		Reason:           reason,
		LateCancellation: b.LateCancellation,
	}
	if b.WaitlistPosition != nil {
		e.WaitlistPosition = *b.WaitlistPosition
	}

	if err := s.notifier.SendBookingEmail(ctx, template, e); err != nil {
		logger.WithError(err).Warn("notification failed", "booking_id", b.ID, "template", template)
	}
}

func (s *service) publish(ctx context.Context, event string, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event, payload); err != nil {
		logger.WithError(err).Warn("event publish failed", "event", event)
	}
}
