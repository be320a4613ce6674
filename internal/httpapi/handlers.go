package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"voice-platform/internal/audit"
	"voice-platform/internal/auth"
	"voice-platform/internal/calls"
	"voice-platform/internal/catalog"
	"voice-platform/internal/kv"
	"voice-platform/internal/rbac"
	"voice-platform/internal/reporting"
	"voice-platform/internal/wallet"
	"voice-platform/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Calls     *calls.Service
	Catalog   *catalog.Service
	Reporting *reporting.Service
	Audit     *audit.Service
	Wallet    *wallet.Service

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Auth ---

type tokenRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// IssueToken issues a JWT token pair.
//
// NOTE: development only; it is not registered in production. Real systems must validate credentials.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.TenantID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, tenant_id, role required"})
		return
	}
	if !rbac.IsKnownRole(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), auth.Identity{UserID: req.UserID, TenantID: req.TenantID, Role: req.Role})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	writePair(c, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken exchanges a refresh token for a new pair.
func (h Handlers) RefreshToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, err := h.Auth.Refresh(req.RefreshToken, h.now())
	if err != nil {
		logger.FromGin(c).Debug("refresh rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	writePair(c, pair)
}

func writePair(c *gin.Context, pair auth.TokenPair) {
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExpiresAt.UnixMilli(),
	})
}

// Me echoes the verified identity.
func (h Handlers) Me(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "tenant_id": id.TenantID, "role": id.Role})
}

// --- helpers ---

func identity(c *gin.Context) (auth.Identity, bool) {
	id, err := auth.CurrentIdentity(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return auth.Identity{}, false
	}
	return id, true
}

// scopeTenant resolves the tenant a query runs against.
//
// Rules:
// - regular roles always read their own tenant; ?tenant= naming another tenant is forbidden
// - platform roles may pass ?tenant=, or omit it for every tenant (allowAll) or their own
func (h Handlers) scopeTenant(c *gin.Context, id auth.Identity, allowAll bool) (string, bool) {
	// An empty ?tenant= is the same as none.
	q := strings.TrimSpace(c.Query("tenant"))
	if !rbac.CanViewPlatform(id.Role) {
		if q != "" && q != id.TenantID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return "", false
		}
		return id.TenantID, true
	}

	switch {
	case q != "":
		if q != id.TenantID {
			h.auditCrossTenant(c, id, q)
		}
		return q, true
	case allowAll:
		return "", true
	default:
		return id.TenantID, true
	}
}

// auditCrossTenant records platform roles reading another tenant's data. Best effort.
func (h Handlers) auditCrossTenant(c *gin.Context, id auth.Identity, tenantID string) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.LogAdminAction(c.Request.Context(), tenantID, id.UserID, id.Role, c.ClientIP(), "cross-tenant read "+c.FullPath(), "", ""); err != nil {
		logger.FromGin(c).Warn("admin audit failed", "err", err)
	}
}

func items[T any](c *gin.Context, list []T) {
	if list == nil {
		list = []T{}
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

// writeError maps service errors to status codes. Bodies are {"error": "..."}.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrInvalidEvent),
		errors.Is(err, calls.ErrTenantRequired),
		errors.Is(err, catalog.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest),
		errors.Is(err, wallet.ErrInvalidArgument),
		errors.Is(err, audit.ErrInvalidEvent):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, kv.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, catalog.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, calls.ErrStoreUnavailable),
		errors.Is(err, kv.ErrConflict):
		logger.FromGin(c).Error("store unavailable", "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable, retry"})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
