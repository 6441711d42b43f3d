package gymclass

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateCategory(ctx context.Context, name string) (*Category, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Category), args.Error(1)
}

func (m *MockRepository) ListCategories(ctx context.Context) ([]Category, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Category), args.Error(1)
}

func (m *MockRepository) CreateClass(ctx context.Context, g *GymClass) (*GymClass, error) {
	args := m.Called(ctx, g)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GymClass), args.Error(1)
}

func (m *MockRepository) GetClass(ctx context.Context, id int) (*GymClass, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GymClass), args.Error(1)
}

func (m *MockRepository) ListClasses(ctx context.Context, status ClassStatus) ([]GymClass, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]GymClass), args.Error(1)
}

func (m *MockRepository) UpdateClassStatus(ctx context.Context, id int, status ClassStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockRepository) UpdateClassCapacity(ctx context.Context, id int, capacity int) error {
	return m.Called(ctx, id, capacity).Error(0)
}

func (m *MockRepository) SetClassImage(ctx context.Context, id int, key string) error {
	return m.Called(ctx, id, key).Error(0)
}

func (m *MockRepository) CreateSchedule(ctx context.Context, s *Schedule) (*Schedule, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Schedule), args.Error(1)
}

func (m *MockRepository) GetSchedule(ctx context.Context, id int) (*Schedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Schedule), args.Error(1)
}

func (m *MockRepository) ListSchedulesByClass(ctx context.Context, classID int) ([]Schedule, error) {
	args := m.Called(ctx, classID)
	return args.Get(0).([]Schedule), args.Error(1)
}

func (m *MockRepository) DeactivateSchedule(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepository) ListActiveScheduleSlots(ctx context.Context, classID *int) ([]ScheduleSlot, error) {
	args := m.Called(ctx, classID)
	return args.Get(0).([]ScheduleSlot), args.Error(1)
}

func (m *MockRepository) CreateSession(ctx context.Context, s *Session) (*Session, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockRepository) GetSession(ctx context.Context, id int) (*Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockRepository) LockSession(ctx context.Context, id int) (*Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockRepository) ListSessions(ctx context.Context, f SessionFilter) ([]Session, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]Session), args.Error(1)
}

func (m *MockRepository) SessionExistsForSchedule(ctx context.Context, scheduleID int, startsAt time.Time) (bool, error) {
	args := m.Called(ctx, scheduleID, startsAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) TrainerHasOverlap(ctx context.Context, trainerID int, startsAt, endsAt time.Time) (bool, error) {
	args := m.Called(ctx, trainerID, startsAt, endsAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) UpdateSessionCounters(ctx context.Context, s *Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockRepository) UpdateSessionStatus(ctx context.Context, id int, status SessionStatus, reason string) error {
	return m.Called(ctx, id, status, reason).Error(0)
}

func (m *MockRepository) SessionHasBookings(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) DeleteSession(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

type inlineTx struct{}

func (inlineTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeStorage struct {
	deleted []string
	err     error
}

func (f *fakeStorage) GeneratePresignedUploadURL(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://bucket.local/" + key + "?upload", f.err
}

func (f *fakeStorage) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://bucket.local/" + key, f.err
}

func (f *fakeStorage) DeleteObject(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func intPtr(v int) *int { return &v }

func TestService_CreateClass_Defaults(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, inlineTx{}, nil, time.UTC)

	repo.On("CreateClass", mock.Anything, mock.MatchedBy(func(g *GymClass) bool {
		return g.PricingModel == PricingIncluded &&
			g.AccessPolicy == AccessMembersOnly &&
			g.WaitlistEnabled &&
			g.MaxWaitlistSize == 10 &&
			g.CancellationDeadlineHours == 2 &&
			g.AdvanceBookingDays == 7 &&
			g.Status == ClassActive
	})).Return(&GymClass{ID: 5}, nil)

	g, err := svc.CreateClass(context.Background(), CreateClassRequest{Name: "Spin", MaxCapacity: 12})
	require.NoError(t, err)
	assert.Equal(t, 5, g.ID)
	repo.AssertExpectations(t)
}

func TestService_CreateClass_PayPerEntryNeedsPrice(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, inlineTx{}, nil, time.UTC)

	_, err := svc.CreateClass(context.Background(), CreateClassRequest{
		Name: "Yoga", MaxCapacity: 10, PricingModel: PricingPerEntry,
	})
	assert.ErrorIs(t, err, ErrDropInPriceRequired)
	repo.AssertNotCalled(t, "CreateClass", mock.Anything, mock.Anything)
}

func TestService_GetClass_PresignsImage(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, inlineTx{}, &fakeStorage{}, time.UTC)

	repo.On("GetClass", mock.Anything, 3).Return(&GymClass{ID: 3, ImageKey: "classes/3/a.png"}, nil)

	g, err := svc.GetClass(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.local/classes/3/a.png", g.ImageURL)
}

func TestService_Deactivate_Archived(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, inlineTx{}, nil, time.UTC)

	repo.On("GetClass", mock.Anything, 1).Return(&GymClass{ID: 1, Status: ClassArchived}, nil)

	_, err := svc.Deactivate(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInvalidClassState)
	repo.AssertNotCalled(t, "UpdateClassStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Archive(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, inlineTx{}, nil, time.UTC)

	repo.On("GetClass", mock.Anything, 1).Return(&GymClass{ID: 1, Status: ClassInactive}, nil)
	repo.On("UpdateClassStatus", mock.Anything, 1, ClassArchived).Return(nil)

	g, err := svc.Archive(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ClassArchived, g.Status)
}

func TestService_RequestImageUpload(t *testing.T) {
	repo := new(MockRepository)
	files := &fakeStorage{}
	svc := NewService(repo, inlineTx{}, files, time.UTC)

	repo.On("GetClass", mock.Anything, 4).Return(&GymClass{ID: 4, ImageKey: "classes/4/old.jpg"}, nil)
	repo.On("SetClassImage", mock.Anything, 4, mock.AnythingOfType("string")).Return(nil)

	resp, err := svc.RequestImageUpload(context.Background(), 4, "image/png")
	require.NoError(t, err)
	assert.Contains(t, resp.ImageKey, "classes/4/")
	assert.Contains(t, resp.UploadURL, resp.ImageKey)
	assert.Equal(t, 900, resp.ExpiresIn)
	assert.Equal(t, []string{"classes/4/old.jpg"}, files.deleted)
}

func TestService_RequestImageUpload_NoStorage(t *testing.T) {
	svc := NewService(new(MockRepository), inlineTx{}, nil, time.UTC)

	_, err := svc.RequestImageUpload(context.Background(), 4, "image/png")
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

func TestService_CreateSchedule_InvalidTimes(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, inlineTx{}, nil, time.UTC)

	repo.On("GetClass", mock.Anything, 1).Return(&GymClass{ID: 1}, nil)

	_, err := svc.CreateSchedule(context.Background(), 1, CreateScheduleRequest{
		Weekday: 1, StartTime: "10:00", EndTime: "09:00", EffectiveFrom: "2025-03-01",
	})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = svc.CreateSchedule(context.Background(), 1, CreateScheduleRequest{
		Weekday: 1, StartTime: "25:00", EndTime: "26:00", EffectiveFrom: "2025-03-01",
	})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestService_CreateSession_InheritsClass(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, inlineTx{}, nil, time.UTC)

	repo.On("GetClass", mock.Anything, 2).Return(&GymClass{
		ID: 2, Status: ClassActive, Location: "Studio A", TrainerID: intPtr(9), MaxCapacity: 15,
	}, nil)
	repo.On("TrainerHasOverlap", mock.Anything, 9, mock.Anything, mock.Anything).Return(false, nil)
	repo.On("CreateSession", mock.Anything, mock.MatchedBy(func(s *Session) bool {
		return s.Location == "Studio A" && s.Capacity == 15 && *s.TrainerID == 9
	})).Return(&Session{ID: 11}, nil)

	s, err := svc.CreateSession(context.Background(), CreateSessionRequest{
		GymClassID: 2, StartsAt: "2025-03-03T09:00:00Z", EndsAt: "2025-03-03T10:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, 11, s.ID)
}

func TestService_CreateSession_TrainerBusy(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, inlineTx{}, nil, time.UTC)

	repo.On("GetClass", mock.Anything, 2).Return(&GymClass{ID: 2, Status: ClassActive, TrainerID: intPtr(9), MaxCapacity: 15}, nil)
	repo.On("TrainerHasOverlap", mock.Anything, 9, mock.Anything, mock.Anything).Return(true, nil)

	_, err := svc.CreateSession(context.Background(), CreateSessionRequest{
		GymClassID: 2, StartsAt: "2025-03-03T09:00:00Z", EndsAt: "2025-03-03T10:00:00Z",
	})
	assert.ErrorIs(t, err, ErrTrainerConflict)
}

func TestService_CreateSession_InactiveClass(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, inlineTx{}, nil, time.UTC)

	repo.On("GetClass", mock.Anything, 2).Return(&GymClass{ID: 2, Status: ClassInactive}, nil)

	_, err := svc.CreateSession(context.Background(), CreateSessionRequest{
		GymClassID: 2, StartsAt: "2025-03-03T09:00:00Z", EndsAt: "2025-03-03T10:00:00Z",
	})
	assert.ErrorIs(t, err, ErrClassInactive)
}

func TestService_StartSession(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, inlineTx{}, nil, time.UTC)

	repo.On("LockSession", mock.Anything, 7).Return(&Session{ID: 7, Status: SessionScheduled}, nil)
	repo.On("UpdateSessionStatus", mock.Anything, 7, SessionInProgress, "").Return(nil)

	s, err := svc.StartSession(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, SessionInProgress, s.Status)
}

func TestService_DeleteSession(t *testing.T) {
	tests := []struct {
		name        string
		status      SessionStatus
		hasBookings bool
		wantErr     error
	}{
		{"scheduled without bookings", SessionScheduled, false, nil},
		{"has bookings", SessionScheduled, true, ErrSessionHasBookings},
		{"completed", SessionCompleted, false, ErrInvalidSessionState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			svc := NewService(repo, inlineTx{}, nil, time.UTC)

			repo.On("LockSession", mock.Anything, 3).Return(&Session{ID: 3, Status: tt.status}, nil)
			repo.On("SessionHasBookings", mock.Anything, 3).Return(tt.hasBookings, nil).Maybe()
			repo.On("DeleteSession", mock.Anything, 3).Return(nil).Maybe()

			err := svc.DeleteSession(context.Background(), 3)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				repo.AssertNotCalled(t, "DeleteSession", mock.Anything, 3)
				return
			}
			assert.NoError(t, err)
			repo.AssertCalled(t, "DeleteSession", mock.Anything, 3)
		})
	}
}

func TestService_GenerateSessions(t *testing.T) {
	repo := new(MockRepository)
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	svc := NewService(repo, inlineTx{}, nil, loc)

	monday := Schedule{
		ID: 1, GymClassID: 2, Weekday: int(time.Monday), StartTime: "18:00", EndTime: "19:00",
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Active: true,
	}
	wednesday := Schedule{
		ID: 2, GymClassID: 2, Weekday: int(time.Wednesday), StartTime: "07:30", EndTime: "08:15",
		TrainerID: intPtr(4), EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Active: true,
	}
	slots := []ScheduleSlot{
		{Schedule: monday, ClassLocation: "Hall", ClassTrainerID: intPtr(3), ClassCapacity: 20},
		{Schedule: wednesday, ClassLocation: "Hall", ClassTrainerID: intPtr(3), ClassCapacity: 20},
	}
	repo.On("ListActiveScheduleSlots", mock.Anything, (*int)(nil)).Return(slots, nil)

	mon := time.Date(2025, 3, 3, 18, 0, 0, 0, loc)
	wed := time.Date(2025, 3, 5, 7, 30, 0, 0, loc)

	repo.On("SessionExistsForSchedule", mock.Anything, 1, mon).Return(true, nil).Once()
	repo.On("SessionExistsForSchedule", mock.Anything, 2, wed).Return(false, nil).Once()
	repo.On("TrainerHasOverlap", mock.Anything, 4, wed, wed.Add(45*time.Minute)).Return(false, nil).Once()
	repo.On("CreateSession", mock.Anything, mock.MatchedBy(func(s *Session) bool {
		return *s.ScheduleID == 2 && s.StartsAt.Equal(wed) && *s.TrainerID == 4 && s.Capacity == 20
	})).Return(&Session{ID: 50, StartsAt: wed}, nil).Once()

	created, err := svc.GenerateSessions(context.Background(),
		time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC), nil)

	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, 50, created[0].ID)
	repo.AssertExpectations(t)
}

func TestService_GenerateSessions_SkipsBusyTrainer(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, inlineTx{}, nil, time.UTC)

	slot := ScheduleSlot{
		Schedule: Schedule{
			ID: 1, GymClassID: 2, Weekday: int(time.Monday), StartTime: "18:00", EndTime: "19:00",
			EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Active: true,
		},
		ClassTrainerID: intPtr(3),
		ClassCapacity:  10,
	}
	repo.On("ListActiveScheduleSlots", mock.Anything, intPtr(2)).Return([]ScheduleSlot{slot}, nil)
	repo.On("SessionExistsForSchedule", mock.Anything, 1, mock.Anything).Return(false, nil)
	repo.On("TrainerHasOverlap", mock.Anything, 3, mock.Anything, mock.Anything).Return(true, nil)

	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	created, err := svc.GenerateSessions(context.Background(), day, day, intPtr(2))

	require.NoError(t, err)
	assert.Empty(t, created)
	repo.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestService_GenerateSessions_InvalidRange(t *testing.T) {
	svc := NewService(new(MockRepository), inlineTx{}, nil, time.UTC)

	from := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	_, err := svc.GenerateSessions(context.Background(), from, from.AddDate(0, 0, -1), nil)
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	_, err = svc.GenerateSessions(context.Background(), from, from.AddDate(1, 0, 0), nil)
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestService_GenerateSessions_RepoError(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, inlineTx{}, nil, time.UTC)

	repo.On("ListActiveScheduleSlots", mock.Anything, (*int)(nil)).Return([]ScheduleSlot(nil), errors.New("db down"))

	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	_, err := svc.GenerateSessions(context.Background(), day, day, nil)
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	d, err := parseClock("07:45")
	require.NoError(t, err)
	assert.Equal(t, 7*time.Hour+45*time.Minute, d)

	_, err = parseClock("7pm")
	assert.Error(t, err)
}
