package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voice-platform/internal/catalog"
)

// Admin handlers. RBAC (super_admin, support) is enforced by the route group.

func (h Handlers) AdminStats(c *gin.Context) {
	out, err := h.Reporting.PlatformStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) AdminTenants(c *gin.Context) {
	list, err := h.Catalog.ListTenants(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	items(c, list)
}

// AdminAuditLogs lists audit events, oldest first; ?tenant= narrows to one tenant.
func (h Handlers) AdminAuditLogs(c *gin.Context) {
	list, err := h.Audit.List(c.Request.Context(), c.Query("tenant"))
	if err != nil {
		writeError(c, err)
		return
	}
	items(c, list)
}

// AdminLiveCalls is the platform-wide live monitor.
func (h Handlers) AdminLiveCalls(c *gin.Context) {
	list, err := h.Calls.ListActive(c.Request.Context(), c.Query("tenant"))
	if err != nil {
		writeError(c, err)
		return
	}
	items(c, list)
}

// AdminIncidents lists incidents newest first; ?status=open hides resolved ones.
func (h Handlers) AdminIncidents(c *gin.Context) {
	list, err := h.Catalog.ListIncidents(c.Request.Context(), c.Query("status") == string(catalog.IncidentOpen))
	if err != nil {
		writeError(c, err)
		return
	}
	items(c, list)
}

func (h Handlers) AdminOpenIncident(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var in catalog.IncidentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	inc, err := h.Catalog.OpenIncident(c.Request.Context(), catalog.Actor{UserID: id.UserID, Role: id.Role}, in, time.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inc)
}

func (h Handlers) AdminResolveIncident(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	inc, err := h.Catalog.ResolveIncident(c.Request.Context(), c.Param("id"), catalog.Actor{UserID: id.UserID, Role: id.Role}, time.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

func (h Handlers) AdminUsageStats(c *gin.Context) {
	out, err := h.Reporting.UsageStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
