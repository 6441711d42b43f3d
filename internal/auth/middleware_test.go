package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddlewareHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"Empty header", "", http.StatusUnauthorized},
		{"Invalid format", "Token abc", http.StatusUnauthorized},
		{"Empty token", "Bearer ", http.StatusUnauthorized},
		{"Garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			req := httptest.NewRequest("GET", "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			c.Request = req

			AuthMiddleware("secret")(c)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, c.IsAborted())
		})
	}
}

func TestAuthMiddleware_SetsClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)

	token, err := GenerateAccessToken(5, 11, RoleMember, testSecret, time.Minute)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", AuthMiddleware(testSecret), func(c *gin.Context) {
		userID, _ := GetUserID(c)
		memberID, hasMember := GetMemberID(c)
		role, _ := GetRole(c)
		c.JSON(http.StatusOK, gin.H{"user": userID, "member": memberID, "has_member": hasMember, "role": role, "staff": IsStaff(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":5,"member":11,"has_member":true,"role":"member","staff":false}`, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		userRole       any
		allowed        []string
		expectedStatus int
	}{
		{"Exact role", "admin", []string{RoleAdmin}, http.StatusOK},
		{"One of roles", "staff", []string{RoleStaff, RoleAdmin}, http.StatusOK},
		{"Missing role", nil, []string{RoleAdmin}, http.StatusUnauthorized},
		{"Wrong role type", 123, []string{RoleAdmin}, http.StatusUnauthorized},
		{"Insufficient role", "member", []string{RoleStaff, RoleAdmin}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			if tt.userRole != nil {
				c.Set(ctxRole, tt.userRole)
			}
			c.Request = httptest.NewRequest("GET", "/", nil)

			RequireRole(tt.allowed...)(c)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestGetUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		userID   any
		expected int
		ok       bool
	}{
		{"Valid ID", 42, 42, true},
		{"Missing ID", nil, 0, false},
		{"Wrong type", "abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			if tt.userID != nil {
				c.Set(ctxUserID, tt.userID)
			}

			id, ok := GetUserID(c)
			assert.Equal(t, tt.expected, id)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestIsStaff(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for role, want := range map[string]bool{RoleMember: false, RoleStaff: true, RoleAdmin: true} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(ctxRole, role)
		assert.Equal(t, want, IsStaff(c), role)
	}
}

func TestMemberScope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		role     string
		self     int
		param    string
		expected int
		ok       bool
	}{
		{"Member without param", RoleMember, 7, "", 7, true},
		{"Member addressing self", RoleMember, 7, "7", 7, true},
		{"Member addressing other", RoleMember, 7, "8", 0, false},
		{"Staff addressing member", RoleStaff, 0, "8", 8, true},
		{"Staff without member link", RoleStaff, 0, "", 0, false},
		{"Bad param", RoleAdmin, 0, "x", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Set(ctxRole, tt.role)
			if tt.self > 0 {
				c.Set(ctxMemberID, tt.self)
			}
			if tt.param != "" {
				c.Params = gin.Params{{Key: "id", Value: tt.param}}
			}

			id, ok := MemberScope(c, "id")
			assert.Equal(t, tt.expected, id)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
