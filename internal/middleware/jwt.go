package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/errcode"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/pkg/jwt"
	"github.com/xxxsen/ragdesk/internal/pkg/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextTenantIDKey = "tenant_id"
)

func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, errcode.ErrUnauthorized, "invalid authorization")
			return
		}
		claims, err := jwt.ParseToken(parts[1], secret)
		if err != nil {
			response.Error(c, errcode.ErrUnauthorized, "invalid token")
			return
		}
		c.Set(ContextUserIDKey, claims.UserID())
		c.Set(ContextTenantIDKey, claims.TenantID)
		c.Next()
	}
}

type TenantGetter interface {
	GetByID(ctx context.Context, tenantID string) (*model.Tenant, error)
}

// ActiveTenant rejects requests whose token names an unknown or disabled tenant.
func ActiveTenant(tenants TenantGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetString(ContextTenantIDKey)
		if tenantID == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing tenant")
			return
		}
		tenant, err := tenants.GetByID(c.Request.Context(), tenantID)
		if err != nil {
			if appErr.IsNotFound(err) {
				response.Error(c, errcode.ErrForbidden, "unknown tenant")
				return
			}
			logutil.GetLogger(c.Request.Context()).Error("load tenant failed", zap.String("tenant_id", tenantID), zap.Error(err))
			response.Error(c, errcode.ErrInternal, "internal error")
			return
		}
		if !tenant.Active {
			response.Error(c, errcode.ErrForbidden, "tenant disabled")
			return
		}
		c.Next()
	}
}
