package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-platform/internal/catalog"
)

func (h Handlers) ListAgents(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	list, err := h.Catalog.ListAgents(c.Request.Context(), id.TenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	items(c, list)
}

// CreateAgent adds an agent to the caller's tenant.
// RBAC: owner or super_admin.
func (h Handlers) CreateAgent(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var in catalog.AgentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	a, err := h.Catalog.CreateAgent(c.Request.Context(), id.TenantID, catalog.Actor{UserID: id.UserID, Role: id.Role}, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h Handlers) ListNumbers(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	list, err := h.Catalog.ListNumbers(c.Request.Context(), id.TenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	items(c, list)
}

// UpdateNumber patches agent binding, status or routing rules of a tenant number.
func (h Handlers) UpdateNumber(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var p catalog.NumberPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	n, err := h.Catalog.UpdateNumber(c.Request.Context(), id.TenantID, c.Param("id"), catalog.Actor{UserID: id.UserID, Role: id.Role}, p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}
