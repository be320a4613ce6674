package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"voice-platform/internal/calls"
	"voice-platform/internal/rbac"
	"voice-platform/internal/reporting"
)

// defaultSummaryWindow applies when /calls/summary has no ?from.
const defaultSummaryWindow = 30 * 24 * time.Hour

// LiveCalls lists live sessions, newest first.
// Platform roles get every tenant unless ?tenant= narrows it.
func (h Handlers) LiveCalls(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	tenantID, ok := h.scopeTenant(c, id, true)
	if !ok {
		return
	}
	list, err := h.Calls.ListActive(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	items(c, list)
}

// ListCalls returns the tenant's call history, live and finished.
func (h Handlers) ListCalls(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	tenantID, ok := h.scopeTenant(c, id, false)
	if !ok {
		return
	}
	list, err := h.Calls.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	items(c, list)
}

func (h Handlers) GetCall(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	sess, err := h.Calls.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	// Other tenants' sessions look absent.
	if sess.TenantID != id.TenantID && !rbac.CanViewPlatform(id.Role) {
		writeError(c, calls.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// CallsSummary aggregates the tenant's calls started within [from, to).
// Bounds accept RFC 3339 or epoch milliseconds; the default window is the last 30 days.
func (h Handlers) CallsSummary(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	tenantID, ok := h.scopeTenant(c, id, false)
	if !ok {
		return
	}

	now := h.now()
	to, err := parseBound(c.Query("to"), now)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return
	}
	from, err := parseBound(c.Query("from"), to.Add(-defaultSummaryWindow))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return
	}

	out, err := h.Reporting.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		TenantID: tenantID,
		Range:    reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func parseBound(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339, v)
}
