package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"

	"eventpass/internal/auth"
)

type stubAuth map[string]*auth.Principal

func (s stubAuth) Authenticate(_ context.Context, token string) (*auth.Principal, error) {
	switch token {
	case "":
		return nil, auth.ErrMissingToken
	case "expired":
		return nil, auth.ErrTokenExpired
	case "redis-down":
		return nil, errors.New("dial tcp: connection refused")
	}
	if p, ok := s[token]; ok {
		return p, nil
	}
	return nil, auth.ErrInvalidToken
}

func router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	a := stubAuth{
		"admin-token": {Subject: "admin", Role: auth.RoleAdmin},
		"staff-token": {Subject: "door", Role: "staff"},
	}
	r.Use(LoggingMiddleware())
	r.GET("/admin", RequireAuth(a), RequireAdmin(), func(c *gin.Context) {
		p, _ := auth.PrincipalFrom(c.Request.Context())
		c.String(http.StatusOK, p.Subject)
	})
	return r
}

func TestAdminAccess(t *testing.T) {
	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong scheme", "Basic admin-token", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"garbage", "Bearer nope", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"expired", "Bearer expired", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"not admin", "Bearer staff-token", http.StatusForbidden, "FORBIDDEN"},
		{"store failure", "Bearer redis-down", http.StatusInternalServerError, "SERVICE_UNAVAILABLE"},
		{"admin", "bearer admin-token", http.StatusOK, ""},
	}
	r := router()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.code != "" {
				assert.Equal(t, tc.code, gjson.Get(w.Body.String(), "error.code").String())
			} else {
				assert.Equal(t, "admin", w.Body.String())
			}
		})
	}
}
