package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragdesk/internal/model"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/pkg/jwt"
)

type stubTenants map[string]*model.Tenant

func (s stubTenants) GetByID(ctx context.Context, tenantID string) (*model.Tenant, error) {
	if tenantID == "broken" {
		return nil, errors.New("db down")
	}
	t, ok := s[tenantID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return t, nil
}

func newAuthEngine(secret []byte, tenants TenantGetter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", JWTAuth(secret), ActiveTenant(tenants), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":   c.GetString(ContextUserIDKey),
			"tenant_id": c.GetString(ContextTenantIDKey),
		})
	})
	return r
}

func doWhoami(t *testing.T, r *gin.Engine, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuthAndActiveTenant(t *testing.T) {
	secret := []byte("secret")
	r := newAuthEngine(secret, stubTenants{
		"acme": {ID: "acme", Active: true},
		"gone": {ID: "gone", Active: false},
	})

	token, err := jwt.GenerateToken("u1", "acme", secret, time.Hour)
	require.NoError(t, err)
	w := doWhoami(t, r, "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"user_id":"u1","tenant_id":"acme"}`, w.Body.String())

	for _, tenant := range []string{"gone", "missing", "broken"} {
		token, err := jwt.GenerateToken("u1", tenant, secret, time.Hour)
		require.NoError(t, err)
		w := doWhoami(t, r, "Bearer "+token)
		require.NotContains(t, w.Body.String(), `"tenant_id"`, tenant)
	}

	require.NotContains(t, doWhoami(t, r, "").Body.String(), `"user_id"`)
	require.NotContains(t, doWhoami(t, r, "Token abc").Body.String(), `"user_id"`)

	other, err := jwt.GenerateToken("u1", "acme", []byte("other"), time.Hour)
	require.NoError(t, err)
	require.NotContains(t, doWhoami(t, r, "Bearer "+other).Body.String(), `"user_id"`)
}
