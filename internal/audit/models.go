package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - tenantId is required for tenancy isolation.
// - actor and ip capture are best-effort; do not block critical flows on audit failures.
//
// Storage: records live in the keyed store under the "audit-log" kind, one record per event.
type Event struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type"`

	// ActorUserID is the authenticated user causing the event (empty for webhook-driven anomalies).
	ActorUserID string `json:"actorUserId,omitempty"`
	ActorRole   string `json:"actorRole,omitempty"`

	IPAddress string `json:"ipAddress,omitempty"`

	// Target identifiers (optional, depending on the event type).
	SessionID string `json:"sessionId,omitempty"`
	TargetID  string `json:"targetId,omitempty"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

type EventType string

const (
	EventTypeAdminAction   EventType = "admin_action"
	EventTypeCatalogUpdate EventType = "catalog_update"

	// Session anomalies reported by the call aggregator.
	EventTypeLateEvent    EventType = "late_event"
	EventTypeUnknownEvent EventType = "unknown_event"
)
