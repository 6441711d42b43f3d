package gymclass

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) CreateCategory(ctx context.Context, req CreateCategoryRequest) (*Category, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Category), args.Error(1)
}

func (m *MockService) ListCategories(ctx context.Context) ([]Category, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Category), args.Error(1)
}

func (m *MockService) CreateClass(ctx context.Context, req CreateClassRequest) (*GymClass, error) {
	return m.class(m.Called(ctx, req))
}

func (m *MockService) GetClass(ctx context.Context, id int) (*GymClass, error) {
	return m.class(m.Called(ctx, id))
}

func (m *MockService) ListClasses(ctx context.Context, status ClassStatus) ([]GymClass, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]GymClass), args.Error(1)
}

func (m *MockService) UpdateCapacity(ctx context.Context, id int, capacity int) (*GymClass, error) {
	return m.class(m.Called(ctx, id, capacity))
}

func (m *MockService) Activate(ctx context.Context, id int) (*GymClass, error) {
	return m.class(m.Called(ctx, id))
}

func (m *MockService) Deactivate(ctx context.Context, id int) (*GymClass, error) {
	return m.class(m.Called(ctx, id))
}

func (m *MockService) Archive(ctx context.Context, id int) (*GymClass, error) {
	return m.class(m.Called(ctx, id))
}

func (m *MockService) class(args mock.Arguments) (*GymClass, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GymClass), args.Error(1)
}

func (m *MockService) RequestImageUpload(ctx context.Context, id int, contentType string) (*ImageUploadResponse, error) {
	args := m.Called(ctx, id, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ImageUploadResponse), args.Error(1)
}

func (m *MockService) CreateSchedule(ctx context.Context, classID int, req CreateScheduleRequest) (*Schedule, error) {
	args := m.Called(ctx, classID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Schedule), args.Error(1)
}

func (m *MockService) ListSchedules(ctx context.Context, classID int) ([]Schedule, error) {
	args := m.Called(ctx, classID)
	return args.Get(0).([]Schedule), args.Error(1)
}

func (m *MockService) DeactivateSchedule(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockService) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	return m.session(m.Called(ctx, req))
}

func (m *MockService) GetSession(ctx context.Context, id int) (*Session, error) {
	return m.session(m.Called(ctx, id))
}

func (m *MockService) ListSessions(ctx context.Context, f SessionFilter) ([]Session, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]Session), args.Error(1)
}

func (m *MockService) StartSession(ctx context.Context, id int) (*Session, error) {
	return m.session(m.Called(ctx, id))
}

func (m *MockService) DeleteSession(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockService) GenerateSessions(ctx context.Context, from, to time.Time, classID *int) ([]Session, error) {
	args := m.Called(ctx, from, to, classID)
	return args.Get(0).([]Session), args.Error(1)
}

func (m *MockService) session(args mock.Arguments) (*Session, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func setupRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc)

	r := gin.New()
	r.POST("/classes", h.CreateClass)
	r.GET("/classes/:id", h.GetClass)
	r.POST("/classes/:id/deactivate", h.Deactivate)
	r.POST("/classes/:id/image", h.RequestImageUpload)
	r.GET("/sessions", h.ListSessions)
	r.DELETE("/sessions/:id", h.DeleteSession)
	r.POST("/admin/sessions/generate", h.GenerateSessions)
	return r
}

func TestHandler_CreateClass(t *testing.T) {
	svc := new(MockService)
	svc.On("CreateClass", mock.Anything, mock.MatchedBy(func(req CreateClassRequest) bool {
		return req.Name == "Spin" && req.MaxCapacity == 12
	})).Return(&GymClass{ID: 1, Name: "Spin"}, nil)

	body := `{"name":"Spin","max_capacity":12}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/classes", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	setupRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestHandler_CreateClass_Validation(t *testing.T) {
	svc := new(MockService)

	body := `{"name":"Spin","max_capacity":0}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/classes", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	setupRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "CreateClass", mock.Anything, mock.Anything)
}

func TestHandler_CreateClass_MissingDropInPrice(t *testing.T) {
	svc := new(MockService)
	svc.On("CreateClass", mock.Anything, mock.Anything).Return(nil, ErrDropInPriceRequired)

	body := `{"name":"Spin","max_capacity":10,"pricing_model":"PAY_PER_ENTRY"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/classes", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	setupRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_GetClass_NotFound(t *testing.T) {
	svc := new(MockService)
	svc.On("GetClass", mock.Anything, 9).Return(nil, ErrClassNotFound)

	w := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/classes/9", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Deactivate_Conflict(t *testing.T) {
	svc := new(MockService)
	svc.On("Deactivate", mock.Anything, 2).Return(nil, ErrInvalidClassState)

	w := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/classes/2/deactivate", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandler_RequestImageUpload_StorageDisabled(t *testing.T) {
	svc := new(MockService)
	svc.On("RequestImageUpload", mock.Anything, 2, "image/png").Return(nil, ErrStorageDisabled)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/classes/2/image", bytes.NewBufferString(`{"content_type":"image/png"}`))
	req.Header.Set("Content-Type", "application/json")
	setupRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandler_ListSessions_ParsesFilter(t *testing.T) {
	svc := new(MockService)
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	svc.On("ListSessions", mock.Anything, mock.MatchedBy(func(f SessionFilter) bool {
		return f.From.Equal(from) && f.To.Equal(to) && f.GymClassID != nil && *f.GymClassID == 4 && f.Status == SessionScheduled
	})).Return([]Session{{ID: 1}}, nil)

	w := httptest.NewRecorder()
	url := "/sessions?from=2025-03-01T00:00:00Z&to=2025-03-08T00:00:00Z&class_id=4&status=SCHEDULED"
	setupRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestHandler_ListSessions_BadDate(t *testing.T) {
	w := httptest.NewRecorder()
	setupRouter(new(MockService)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions?from=yesterday", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_DeleteSession_HasBookings(t *testing.T) {
	svc := new(MockService)
	svc.On("DeleteSession", mock.Anything, 5).Return(ErrSessionHasBookings)

	w := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/sessions/5", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandler_GenerateSessions(t *testing.T) {
	svc := new(MockService)
	from := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	svc.On("GenerateSessions", mock.Anything, from, to, (*int)(nil)).Return([]Session{{ID: 1}, {ID: 2}}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/sessions/generate",
		bytes.NewBufferString(`{"from":"2025-03-03","to":"2025-03-09"}`))
	req.Header.Set("Content-Type", "application/json")
	setupRouter(svc).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp GenerateSessionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Created)
}
