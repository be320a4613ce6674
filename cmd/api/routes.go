package main

import (
	"context"
	"net/http"
	"time"

	"voice-platform/internal/auth"
	"voice-platform/internal/kv"
	"voice-platform/internal/rbac"
	"voice-platform/pkg/logger"
	"voice-platform/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func (a *app) registerRoutes(r *gin.Engine) {
	h := a.handlers

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/readyz", a.ready)
	r.GET("/metrics", metrics.Handler(a.metrics))

	// Voice pipeline webhook (public, optionally guarded by a shared secret header).
	r.POST("/webhooks/voice", a.webhook.HandleEvent)

	v1 := r.Group("/v1")

	// Token issuance without credentials exists only outside production.
	if !a.cfg.IsProduction() {
		v1.POST("/auth/token", h.IssueToken)
	}
	v1.POST("/auth/refresh", h.RefreshToken)

	// protected API group
	api := v1.Group("")
	api.Use(auth.RequireAccessToken(a.auth))
	api.Use(rbac.RequireTenant())
	{
		api.GET("/me", h.Me)

		// Live monitor and call history.
		readers := []string{rbac.RoleOwner, rbac.RoleAgent, rbac.RoleAnalyst, rbac.RoleSupport}
		api.GET("/live-calls", rbac.RequireAnyRole(readers...), h.LiveCalls)

		callsGroup := api.Group("/calls")
		callsGroup.Use(rbac.RequireAnyRole(readers...))
		{
			callsGroup.GET("", h.ListCalls)
			callsGroup.GET("/summary", h.CallsSummary)
			callsGroup.GET("/:id", h.GetCall)
		}

		// CATALOG routes
		agents := api.Group("/agents")
		{
			agents.GET("", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAgent, rbac.RoleAnalyst), h.ListAgents)
			agents.POST("", rbac.RequireAnyRole(rbac.RoleOwner), h.CreateAgent)
		}
		numbers := api.Group("/numbers")
		{
			numbers.GET("", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAgent, rbac.RoleAnalyst), h.ListNumbers)
			numbers.PATCH("/:id", rbac.RequireAnyRole(rbac.RoleOwner), h.UpdateNumber)
		}

		api.GET("/billing", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAnalyst), h.Billing)

		// ADMIN routes
		// super_admin passes every check; the hidden support role is listed explicitly.
		admin := api.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleSupport))
		{
			admin.GET("/stats", h.AdminStats)
			admin.GET("/tenants", h.AdminTenants)
			admin.GET("/audit-logs", h.AdminAuditLogs)
			admin.GET("/live-calls", h.AdminLiveCalls)
			admin.GET("/incidents", h.AdminIncidents)
			admin.GET("/usage-stats", h.AdminUsageStats)

			// Money movement is super_admin only (RequireAnyRole with no roles admits nobody else).
			admin.POST("/tenants/:id/credits", rbac.RequireAnyRole(), h.AdminManualCredit)
			admin.POST("/incidents", rbac.RequireAnyRole(), h.AdminOpenIncident)
			admin.POST("/incidents/:id/resolve", rbac.RequireAnyRole(), h.AdminResolveIncident)
		}
	}
}

// ready reports whether the backing store answers within a short deadline.
func (a *app) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := kv.Ping(ctx, a.store); err != nil {
		logger.FromGin(c).Warn("store not ready", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "store": a.cfg.Store.Driver})
}
