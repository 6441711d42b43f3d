package gymclass

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classbook/internal/db"
	"classbook/internal/logger"
	"classbook/internal/metrics"
	"classbook/internal/storage"
)

var (
	ErrClassNotFound       = errors.New("class not found")
	ErrClassArchived       = errors.New("class is archived")
	ErrInvalidClassState   = errors.New("invalid class state transition")
	ErrClassInactive       = errors.New("class is not active")
	ErrDropInPriceRequired = errors.New("drop-in price is required for pay-per-entry pricing")
	ErrCategoryExists      = errors.New("category already exists")
	ErrScheduleNotFound    = errors.New("schedule not found")
	ErrInvalidSchedule     = errors.New("invalid schedule")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExists       = errors.New("session already exists for schedule")
	ErrInvalidSession      = errors.New("invalid session times")
	ErrInvalidSessionState = errors.New("invalid session state transition")
	ErrSessionHasBookings  = errors.New("session has bookings")
	ErrTrainerConflict     = errors.New("trainer already has a session at that time")
	ErrInvalidDateRange    = errors.New("invalid date range")
	ErrStorageDisabled     = errors.New("image storage is not configured")
)

const maxGenerateDays = 92

type Service interface {
	CreateCategory(ctx context.Context, req CreateCategoryRequest) (*Category, error)
	ListCategories(ctx context.Context) ([]Category, error)

	CreateClass(ctx context.Context, req CreateClassRequest) (*GymClass, error)
	GetClass(ctx context.Context, id int) (*GymClass, error)
	ListClasses(ctx context.Context, status ClassStatus) ([]GymClass, error)
	UpdateCapacity(ctx context.Context, id int, capacity int) (*GymClass, error)
	Activate(ctx context.Context, id int) (*GymClass, error)
	Deactivate(ctx context.Context, id int) (*GymClass, error)
	Archive(ctx context.Context, id int) (*GymClass, error)
	RequestImageUpload(ctx context.Context, id int, contentType string) (*ImageUploadResponse, error)

	CreateSchedule(ctx context.Context, classID int, req CreateScheduleRequest) (*Schedule, error)
	ListSchedules(ctx context.Context, classID int) ([]Schedule, error)
	DeactivateSchedule(ctx context.Context, id int) error

	CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error)
	GetSession(ctx context.Context, id int) (*Session, error)
	ListSessions(ctx context.Context, f SessionFilter) ([]Session, error)
	StartSession(ctx context.Context, id int) (*Session, error)
	DeleteSession(ctx context.Context, id int) error
	GenerateSessions(ctx context.Context, from, to time.Time, classID *int) ([]Session, error)
}

type service struct {
	repo  Repository
	tx    db.Transactor
	files storage.FileStorage
	loc   *time.Location
}

// NewService builds the catalogue service. files may be nil when image
// storage is not configured.
func NewService(repo Repository, tx db.Transactor, files storage.FileStorage, loc *time.Location) Service {
	if loc == nil {
		loc = time.UTC
	}
	return &service{repo: repo, tx: tx, files: files, loc: loc}
}

func (s *service) CreateCategory(ctx context.Context, req CreateCategoryRequest) (*Category, error) {
	return s.repo.CreateCategory(ctx, req.Name)
}

func (s *service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *service) CreateClass(ctx context.Context, req CreateClassRequest) (*GymClass, error) {
	g := &GymClass{
		Name:                      req.Name,
		Description:               req.Description,
		Location:                  req.Location,
		TrainerID:                 req.TrainerID,
		CategoryID:                req.CategoryID,
		ClassType:                 req.ClassType,
		MaxCapacity:               req.MaxCapacity,
		WaitlistEnabled:           boolOr(req.WaitlistEnabled, true),
		MaxWaitlistSize:           intOr(req.MaxWaitlistSize, 10),
		PricingModel:              req.PricingModel,
		DropInPriceCents:          req.DropInPriceCents,
		TaxRateBP:                 req.TaxRateBP,
		DeductsClassFromPlan:      boolOr(req.DeductsClassFromPlan, true),
		AccessPolicy:              req.AccessPolicy,
		AdvanceBookingDays:        req.AdvanceBookingDays,
		CancellationDeadlineHours: intOr(req.CancellationDeadlineHours, 2),
		LateCancellationFeeCents:  req.LateCancellationFeeCents,
		Status:                    ClassActive,
	}
	if g.PricingModel == "" {
		g.PricingModel = PricingIncluded
	}
	if g.AccessPolicy == "" {
		g.AccessPolicy = AccessMembersOnly
	}
	if g.AdvanceBookingDays == 0 {
		g.AdvanceBookingDays = 7
	}

	if err := g.ValidatePricing(); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateClass(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("create class: %w", err)
	}

	logger.Info("class created", "class_id", created.ID, "pricing_model", created.PricingModel)
	return created, nil
}

func (s *service) GetClass(ctx context.Context, id int) (*GymClass, error) {
	g, err := s.repo.GetClass(ctx, id)
	if err != nil {
		return nil, err
	}

	if g.ImageKey != "" && s.files != nil {
		url, err := s.files.GeneratePresignedDownloadURL(ctx, g.ImageKey, storage.DefaultPresignedURLExpiry)
		if err != nil {
			logger.WithError(err).Warn("class image url unavailable", "class_id", id)
		} else {
			g.ImageURL = url
		}
	}

	return g, nil
}

func (s *service) ListClasses(ctx context.Context, status ClassStatus) ([]GymClass, error) {
	return s.repo.ListClasses(ctx, status)
}

func (s *service) UpdateCapacity(ctx context.Context, id int, capacity int) (*GymClass, error) {
	if err := s.repo.UpdateClassCapacity(ctx, id, capacity); err != nil {
		return nil, err
	}
	return s.repo.GetClass(ctx, id)
}

func (s *service) Activate(ctx context.Context, id int) (*GymClass, error) {
	return s.transition(ctx, id, (*GymClass).Activate)
}

func (s *service) Deactivate(ctx context.Context, id int) (*GymClass, error) {
	return s.transition(ctx, id, (*GymClass).Deactivate)
}

func (s *service) Archive(ctx context.Context, id int) (*GymClass, error) {
	return s.transition(ctx, id, func(g *GymClass) error {
		g.Archive()
		return nil
	})
}

func (s *service) transition(ctx context.Context, id int, apply func(*GymClass) error) (*GymClass, error) {
	g, err := s.repo.GetClass(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(g); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateClassStatus(ctx, id, g.Status); err != nil {
		return nil, err
	}
	return g, nil
}

// RequestImageUpload assigns a new image key to the class and returns a
// presigned PUT URL for it. The previous image object is removed.
func (s *service) RequestImageUpload(ctx context.Context, id int, contentType string) (*ImageUploadResponse, error) {
	if s.files == nil {
		return nil, ErrStorageDisabled
	}

	g, err := s.repo.GetClass(ctx, id)
	if err != nil {
		return nil, err
	}

	key, err := storage.ClassImageKey(id, contentType)
	if err != nil {
		return nil, err
	}

	url, err := s.files.GeneratePresignedUploadURL(ctx, key, contentType, storage.DefaultPresignedURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	if err := s.repo.SetClassImage(ctx, id, key); err != nil {
		return nil, err
	}

	if g.ImageKey != "" {
		if err := s.files.DeleteObject(ctx, g.ImageKey); err != nil {
			logger.WithError(err).Warn("old class image not deleted", "key", g.ImageKey)
		}
	}

	return &ImageUploadResponse{
		UploadURL: url,
		ImageKey:  key,
		ExpiresIn: int(storage.DefaultPresignedURLExpiry.Seconds()),
	}, nil
}

func (s *service) CreateSchedule(ctx context.Context, classID int, req CreateScheduleRequest) (*Schedule, error) {
	if _, err := s.repo.GetClass(ctx, classID); err != nil {
		return nil, err
	}

	start, err := parseClock(req.StartTime)
	if err != nil {
		return nil, ErrInvalidSchedule
	}
	end, err := parseClock(req.EndTime)
	if err != nil || end <= start {
		return nil, ErrInvalidSchedule
	}

	from, err := time.Parse(dateLayout, req.EffectiveFrom)
	if err != nil {
		return nil, ErrInvalidSchedule
	}

	sched := &Schedule{
		GymClassID:    classID,
		Weekday:       req.Weekday,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		TrainerID:     req.TrainerID,
		EffectiveFrom: from,
	}
	if req.EffectiveUntil != nil {
		until, err := time.Parse(dateLayout, *req.EffectiveUntil)
		if err != nil || until.Before(from) {
			return nil, ErrInvalidSchedule
		}
		sched.EffectiveUntil = &until
	}

	return s.repo.CreateSchedule(ctx, sched)
}

func (s *service) ListSchedules(ctx context.Context, classID int) ([]Schedule, error) {
	return s.repo.ListSchedulesByClass(ctx, classID)
}

func (s *service) DeactivateSchedule(ctx context.Context, id int) error {
	return s.repo.DeactivateSchedule(ctx, id)
}

func (s *service) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	g, err := s.repo.GetClass(ctx, req.GymClassID)
	if err != nil {
		return nil, err
	}
	if !g.IsActive() {
		return nil, ErrClassInactive
	}

	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return nil, ErrInvalidSession
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil || !endsAt.After(startsAt) {
		return nil, ErrInvalidSession
	}

	sess := &Session{
		GymClassID: g.ID,
		Location:   g.Location,
		TrainerID:  g.TrainerID,
		StartsAt:   startsAt,
		EndsAt:     endsAt,
		Capacity:   g.MaxCapacity,
	}
	if req.Location != "" {
		sess.Location = req.Location
	}
	if req.TrainerID != nil {
		sess.TrainerID = req.TrainerID
	}
	if req.Capacity != nil {
		sess.Capacity = *req.Capacity
	}

	if sess.TrainerID != nil {
		busy, err := s.repo.TrainerHasOverlap(ctx, *sess.TrainerID, startsAt, endsAt)
		if err != nil {
			return nil, err
		}
		if busy {
			return nil, ErrTrainerConflict
		}
	}

	return s.repo.CreateSession(ctx, sess)
}

func (s *service) GetSession(ctx context.Context, id int) (*Session, error) {
	return s.repo.GetSession(ctx, id)
}

func (s *service) ListSessions(ctx context.Context, f SessionFilter) ([]Session, error) {
	if f.From.IsZero() {
		f.From = time.Now().Add(-24 * time.Hour)
	}
	if f.To.IsZero() {
		f.To = f.From.AddDate(0, 0, 14)
	}
	if !f.To.After(f.From) {
		return nil, ErrInvalidDateRange
	}
	return s.repo.ListSessions(ctx, f)
}

func (s *service) StartSession(ctx context.Context, id int) (*Session, error) {
	var sess *Session
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		sess, err = s.repo.LockSession(ctx, id)
		if err != nil {
			return err
		}
		if err := sess.Start(); err != nil {
			return err
		}
		return s.repo.UpdateSessionStatus(ctx, id, sess.Status, "")
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// DeleteSession removes a scheduled or cancelled session nobody ever booked.
func (s *service) DeleteSession(ctx context.Context, id int) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		sess, err := s.repo.LockSession(ctx, id)
		if err != nil {
			return err
		}
		if !sess.Deletable() {
			return ErrInvalidSessionState
		}

		has, err := s.repo.SessionHasBookings(ctx, id)
		if err != nil {
			return err
		}
		if has {
			return ErrSessionHasBookings
		}

		return s.repo.DeleteSession(ctx, id)
	})
}

// GenerateSessions expands active schedules into sessions for every day in
// [from, to]. Existing sessions are kept and trainer conflicts are skipped.
func (s *service) GenerateSessions(ctx context.Context, from, to time.Time, classID *int) ([]Session, error) {
	from, to = dateOnly(from), dateOnly(to)
	if to.Before(from) || to.Sub(from) > maxGenerateDays*24*time.Hour {
		return nil, ErrInvalidDateRange
	}

	slots, err := s.repo.ListActiveScheduleSlots(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}

	created := []Session{}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, slot := range slots {
			if !slot.CoversDate(day) {
				continue
			}

			sess, err := s.sessionFromSlot(slot, day)
			if err != nil {
				logger.WithError(err).Warn("skipping malformed schedule", "schedule_id", slot.ID)
				continue
			}

			ok, err := s.createGenerated(ctx, sess)
			if err != nil {
				return created, err
			}
			if ok != nil {
				created = append(created, *ok)
			}
		}
	}

	metrics.RecordSessionsGenerated(len(created))
	logger.Info("sessions generated", "from", from.Format(dateLayout), "to", to.Format(dateLayout), "created", len(created))
	return created, nil
}

func (s *service) createGenerated(ctx context.Context, sess *Session) (*Session, error) {
	exists, err := s.repo.SessionExistsForSchedule(ctx, *sess.ScheduleID, sess.StartsAt)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	if sess.TrainerID != nil {
		busy, err := s.repo.TrainerHasOverlap(ctx, *sess.TrainerID, sess.StartsAt, sess.EndsAt)
		if err != nil {
			return nil, err
		}
		if busy {
			logger.Warn("skipping session generation, trainer busy",
				"schedule_id", *sess.ScheduleID, "trainer_id", *sess.TrainerID, "starts_at", sess.StartsAt)
			return nil, nil
		}
	}

	out, err := s.repo.CreateSession(ctx, sess)
	if errors.Is(err, ErrSessionExists) {
		return nil, nil
	}
	return out, err
}

func (s *service) sessionFromSlot(slot ScheduleSlot, day time.Time) (*Session, error) {
	start, err := parseClock(slot.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := parseClock(slot.EndTime)
	if err != nil {
		return nil, err
	}

	y, m, d := day.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, s.loc)

	trainer := slot.TrainerID
	if trainer == nil {
		trainer = slot.ClassTrainerID
	}
	scheduleID := slot.ID

	return &Session{
		GymClassID: slot.GymClassID,
		ScheduleID: &scheduleID,
		Location:   slot.ClassLocation,
		TrainerID:  trainer,
		StartsAt:   midnight.Add(start),
		EndsAt:     midnight.Add(end),
		Capacity:   slot.ClassCapacity,
	}, nil
}

// parseClock parses "HH:MM" into an offset from midnight.
func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
