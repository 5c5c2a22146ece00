package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/mzollin/CocktailMixer/internal/service"
	"github.com/mzollin/CocktailMixer/internal/utils"
	"github.com/stretchr/testify/assert"
)

type stubAuth struct {
	claims *utils.OperatorClaims
	err    error
}

func (s stubAuth) Login(ctx context.Context, pin string) (*service.AuthResponse, error) {
	return nil, apperrors.New(apperrors.ErrNotImplemented)
}

func (s stubAuth) ValidateToken(ctx context.Context, token string) (*utils.OperatorClaims, error) {
	if token != "good" {
		return nil, apperrors.New(apperrors.ErrTokenInvalid)
	}
	return s.claims, s.err
}

func newEngine(auth service.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/admin", NewAuthMiddleware(auth).RequireOperator(), func(c *gin.Context) {
		id, _ := GetSessionID(c)
		c.String(http.StatusOK, id)
	})
	return r
}

func TestRequireOperator(t *testing.T) {
	auth := stubAuth{claims: &utils.OperatorClaims{Role: utils.RoleOperator, SessionID: "s-1"}}
	r := newEngine(auth)

	tests := []struct {
		name   string
		header map[string]string
		cookie string
		status int
	}{
		{"missing", nil, "", http.StatusUnauthorized},
		{"bearer", map[string]string{"Authorization": "Bearer good"}, "", http.StatusOK},
		{"bearer lowercase", map[string]string{"Authorization": "bearer good"}, "", http.StatusOK},
		{"x-access-token", map[string]string{"X-Access-Token": "good"}, "", http.StatusOK},
		{"cookie", nil, "good", http.StatusOK},
		{"invalid", map[string]string{"Authorization": "Bearer bad"}, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "s-1", w.Body.String())
			}
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRequireOperatorRejectsOtherRoles(t *testing.T) {
	r := newEngine(stubAuth{claims: &utils.OperatorClaims{Role: "guest"}})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}
