package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-platform/internal/wallet"
)

// Billing returns the caller's prepaid balance and its ledger.
func (h Handlers) Billing(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	bal, err := h.Wallet.GetBalance(ctx, id.TenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	ledger, err := h.Wallet.ListLedger(ctx, id.TenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": bal, "items": ledger})
}

// AdminManualCredit performs an admin-only credit to the tenant in the path.
// RBAC: super_admin.
func (h Handlers) AdminManualCredit(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req wallet.AdminCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tenantID := c.Param("id")
	if _, err := h.Catalog.GetTenant(c.Request.Context(), tenantID); err != nil {
		writeError(c, err)
		return
	}

	entry, bal, err := h.Wallet.AdminManualCredit(c.Request.Context(), tenantID, id.UserID, id.Role, c.ClientIP(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry, "balance": bal})
}
