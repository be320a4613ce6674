package calls

import (
	"context"

	"voice-platform/internal/audit"
)

// AuditAdapter bridges the aggregator's anomaly hook to the shared audit.Service.
type AuditAdapter struct {
	Audit *audit.Service
}

func (a AuditAdapter) LogSessionAnomaly(ctx context.Context, tenantID, sessionID string, kind Anomaly, eventName string) error {
	if a.Audit == nil {
		return nil
	}
	typ := audit.EventTypeUnknownEvent
	msg := "unknown event type ignored: " + eventName
	if kind == AnomalyLateEvent {
		typ = audit.EventTypeLateEvent
		msg = "event after call ended ignored: " + eventName
	}
	return a.Audit.LogSessionAnomaly(ctx, tenantID, sessionID, typ, msg, "")
}
