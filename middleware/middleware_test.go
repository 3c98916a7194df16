package middleware_test

import (
	"BUREAU/auth"
	"BUREAU/middleware"
	"BUREAU/models"
	"BUREAU/testutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter(t *testing.T) (*gin.Engine, *auth.TokenIssuer, models.User, models.User) {
	t.Helper()
	db := testutil.NewDB(t)
	admin := models.User{Username: "admin", PasswordHash: "x", Role: models.RoleAdmin}
	operator := models.User{Username: "operator", PasswordHash: "x"}
	require.NoError(t, db.Create(&admin).Error)
	require.NoError(t, db.Create(&operator).Error)

	issuer := auth.NewTokenIssuer([]byte("test-key"), time.Minute, time.Hour)
	r := gin.New()
	r.GET("/me", middleware.JWT(issuer, db), func(c *gin.Context) {
		user, _ := middleware.CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"username": user.Username})
	})
	r.GET("/admin", middleware.JWT(issuer, db), middleware.RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, issuer, admin, operator
}

func TestJWT(t *testing.T) {
	r, issuer, admin, operator := protectedRouter(t)
	adminTokens, err := issuer.Issue(admin)
	require.NoError(t, err)
	operatorTokens, err := issuer.Issue(operator)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing token", "/me", "", http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer nope", http.StatusUnauthorized},
		{"refresh token rejected", "/me", "Bearer " + operatorTokens.RefreshToken, http.StatusUnauthorized},
		{"access token", "/me", "Bearer " + operatorTokens.AccessToken, http.StatusOK},
		{"query token", "/me?token=" + operatorTokens.AccessToken, "", http.StatusOK},
		{"operator on admin route", "/admin", "Bearer " + operatorTokens.AccessToken, http.StatusForbidden},
		{"admin on admin route", "/admin", "Bearer " + adminTokens.AccessToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.POST("/login", middleware.RateLimit(2), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
