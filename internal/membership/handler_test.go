package membership

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"classbook/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) membership(args mock.Arguments) (*Membership, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Membership), args.Error(1)
}

func (m *MockService) Create(ctx context.Context, memberID int, req CreateMembershipRequest) (*Membership, error) {
	return m.membership(m.Called(ctx, memberID, req))
}

func (m *MockService) GetActive(ctx context.Context, memberID int) (*Membership, error) {
	return m.membership(m.Called(ctx, memberID))
}

func (m *MockService) ListByMember(ctx context.Context, memberID int) ([]Membership, error) {
	args := m.Called(ctx, memberID)
	return args.Get(0).([]Membership), args.Error(1)
}

func (m *MockService) Cancel(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockService) UseClass(ctx context.Context, ms *Membership) error {
	return m.Called(ctx, ms).Error(0)
}

func (m *MockService) RefundClass(ctx context.Context, membershipID int) error {
	return m.Called(ctx, membershipID).Error(0)
}

// setupRouter fakes the auth middleware with a member (memberID > 0) or staff caller.
func setupRouter(svc Service, memberID int, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", 1)
		c.Set("user_role", role)
		if memberID > 0 {
			c.Set("member_id", memberID)
		}
		c.Next()
	})
	r.POST("/members/:id/memberships", h.Create)
	r.GET("/members/:id/memberships", h.List)
	r.GET("/me/memberships", h.List)
	r.GET("/me/memberships/active", h.GetActive)
	r.POST("/memberships/:membershipID/cancel", h.Cancel)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_Create(t *testing.T) {
	svc := new(MockService)
	req := CreateMembershipRequest{PlanName: "Unlimited", DurationDays: 30, PriceCents: 20000, ChargeWallet: true}
	svc.On("Create", mock.Anything, 5, req).Return(&Membership{ID: 1, MemberID: 5, PlanName: "Unlimited"}, nil)
	svc.On("Create", mock.Anything, 6, mock.Anything).Return(nil, wallet.ErrInsufficientBalance)

	r := setupRouter(svc, 0, "staff")

	w := do(r, http.MethodPost, "/members/5/memberships",
		`{"plan_name":"Unlimited","duration_days":30,"price_cents":20000,"charge_wallet":true}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"plan_name":"Unlimited"`)

	w = do(r, http.MethodPost, "/members/6/memberships", `{"plan_name":"Unlimited","duration_days":30}`)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	w = do(r, http.MethodPost, "/members/5/memberships", `{"plan_name":"Unlimited"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/members/abc/memberships", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestHandler_List_MemberScope(t *testing.T) {
	svc := new(MockService)
	svc.On("ListByMember", mock.Anything, 10).Return([]Membership{{ID: 1, MemberID: 10}}, nil)

	r := setupRouter(svc, 10, "member")

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/me/memberships", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/members/10/memberships", "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/members/11/memberships", "").Code)

	svc.AssertNotCalled(t, "ListByMember", mock.Anything, 11)
}

func TestHandler_GetActive_None(t *testing.T) {
	svc := new(MockService)
	svc.On("GetActive", mock.Anything, 10).Return(nil, ErrNoActiveMembership)

	w := do(setupRouter(svc, 10, "member"), http.MethodGet, "/me/memberships/active", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Cancel(t *testing.T) {
	svc := new(MockService)
	svc.On("Cancel", mock.Anything, 3).Return(nil)
	svc.On("Cancel", mock.Anything, 4).Return(ErrAlreadyCancelled)
	svc.On("Cancel", mock.Anything, 9).Return(ErrMembershipNotFound)

	r := setupRouter(svc, 0, "staff")

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/memberships/3/cancel", "").Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/memberships/4/cancel", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/memberships/9/cancel", "").Code)
}
