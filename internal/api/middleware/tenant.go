package middleware

import (
	"strings"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/logger"
	"github.com/gin-gonic/gin"
)

// TenantHeader carries the opaque tenant identifier set by the upstream gateway.
const TenantHeader = "X-Tenant-ID"

const tenantKey = "tenant_id"

// Tenant copies the tenant header into the Gin and logging contexts.
// Requests without the header run with an empty tenant.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(TenantHeader))
		if tenantID != "" {
			c.Set(tenantKey, tenantID)
			ctx := logger.WithField(c.Request.Context(), logger.FieldTenantID, tenantID)
			c.Request = c.Request.WithContext(ctx)
			c.Set("logger", logger.FromContext(ctx))
		}
		c.Next()
	}
}

// TenantID returns the tenant of the current request, or "".
func TenantID(c *gin.Context) string {
	return c.GetString(tenantKey)
}
