package rbac

import (
	"net/http"

	"voice-platform/internal/auth"
	"voice-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireTenant rejects requests whose identity carries no tenant.
// Membership is not checked here; the token issuer binds user and tenant.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tid, err := auth.TenantID(c.Request.Context()); err != nil || tid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole admits callers holding one of allowed.
// super_admin always passes. support is hidden and must be listed explicitly,
// so an empty list admits super_admin only.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if IsSuperAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			logger.FromGin(c).Info("role denied", "role", role, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
