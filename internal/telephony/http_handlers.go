package telephony

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-platform/internal/calls"
	"voice-platform/internal/routing"
	"voice-platform/pkg/logger"
)

const headerWebhookSecret = "X-Webhook-Secret"

// EventApplier is the aggregator entry point.
type EventApplier interface {
	ApplyEvent(ctx context.Context, ev calls.Event) (calls.ApplyResult, error)
}

// Router resolves the dialed number to its tenant and agent. routing.Engine satisfies it.
type Router interface {
	Resolve(ctx context.Context, toNumber string) (routing.Decision, error)
}

// VoiceWebhookHandler converts the voice pipeline webhook to calls.Event and
// hands it to the aggregator.
//
// No business logic here.
//
// Tenant scoping:
//   - tenantId comes from the body; when it is absent and Router is set, the
//     tenant owning the dialed number (data.to) is used instead
//   - an event that still has no tenant is rejected by the aggregator
//   - data.agentId, when absent, is taken from the number's agent binding of the same tenant
type VoiceWebhookHandler struct {
	Aggregator EventApplier

	// Router is optional; without it the body must carry tenantId.
	Router Router

	// Secret, when set, must match the X-Webhook-Secret header.
	Secret string
}

func (h VoiceWebhookHandler) HandleEvent(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Aggregator == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "aggregator not configured"})
		return
	}
	if h.Secret != "" {
		got := c.GetHeader(headerWebhookSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
	}

	body, err := ParseVoiceWebhook(c.Request)
	if err != nil {
		log.Warn("voice webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	tenantID := h.routeContext(c, &body)

	res, err := h.Aggregator.ApplyEvent(ctx, body.ToEvent(tenantID))
	if err != nil {
		switch {
		case errors.Is(err, calls.ErrInvalidEvent):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, calls.ErrStoreUnavailable):
			log.Error("voice event not applied", "session_id", body.SessionID, "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable, retry"})
		default:
			log.Error("voice event failed", "session_id", body.SessionID, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "sid": res.Session.ID})
}

// routeContext fills tenant and agent from the dialed number. It returns the resolved
// tenant only when the body had none. Failures are logged; the event goes on unrouted.
func (h VoiceWebhookHandler) routeContext(c *gin.Context, body *VoiceWebhook) string {
	to, _ := body.Data["to"].(string)
	_, hasAgent := body.Data["agentId"]
	if h.Router == nil || to == "" || (body.TenantID != "" && hasAgent) {
		return ""
	}

	log := logger.FromGin(c)
	d, err := h.Router.Resolve(c.Request.Context(), to)
	if err != nil {
		log.Warn("dialed number not routed", "to", to, "err", err)
		return ""
	}
	if d.Action == routing.ActionReject {
		log.Warn("call on rejected route", "to", to, "tenant_id", d.TenantID, "reason", d.Reason)
	}
	if body.TenantID != "" && body.TenantID != d.TenantID {
		return ""
	}
	if !hasAgent && d.AgentID != "" {
		body.Data["agentId"] = d.AgentID
	}
	if body.TenantID == "" {
		return d.TenantID
	}
	return ""
}
