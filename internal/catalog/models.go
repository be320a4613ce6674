package catalog

// Catalog records are tenant-scoped configuration: the tenants themselves, their
// voice agents and the phone numbers routed to those agents.

type Tenant struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Plan    string       `json:"plan"`
	Status  TenantStatus `json:"status"`
	Credits float64      `json:"credits"`
	Limits  TenantLimits `json:"limits"`

	// Epoch milliseconds.
	CreatedAt int64 `json:"createdAt"`
}

type TenantLimits struct {
	Concurrency int `json:"concurrency"`
	// MaxDuration is the longest allowed call in seconds.
	MaxDuration int `json:"maxDuration"`
}

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
)

type Agent struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenantId"`
	Name        string  `json:"name"`
	Prompt      string  `json:"prompt"`
	Voice       string  `json:"voice"`
	Language    string  `json:"language"`
	Provider    string  `json:"provider"`
	Temperature float64 `json:"temperature"`
}

// AgentInput is the client-settable part of an Agent.
type AgentInput struct {
	Name        string   `json:"name"`
	Prompt      string   `json:"prompt"`
	Voice       string   `json:"voice"`
	Language    string   `json:"language"`
	Provider    string   `json:"provider"`
	Temperature *float64 `json:"temperature"`
}

type PhoneNumber struct {
	ID       string       `json:"id"`
	TenantID string       `json:"tenantId"`
	E164     string       `json:"e164"`
	Country  string       `json:"country"`
	AgentID  *string      `json:"agentId"`
	Status   NumberStatus `json:"status"`

	RoutingRules RoutingRules `json:"routingRules"`
}

type RoutingRules struct {
	FallbackNumber string `json:"fallbackNumber"`
	// InboundTimeout is seconds to ring the agent before falling back.
	InboundTimeout int `json:"inboundTimeout"`
}

type NumberStatus string

const (
	NumberActive   NumberStatus = "active"
	NumberPending  NumberStatus = "pending"
	NumberReleased NumberStatus = "released"
)

// NumberPatch lists the fields a tenant may change on its own number.
// Nil fields are left untouched. An empty AgentID detaches the number.
type NumberPatch struct {
	AgentID      *string       `json:"agentId"`
	Status       *NumberStatus `json:"status"`
	RoutingRules *RoutingRules `json:"routingRules"`
}

// Actor identifies who made a catalog change, for the audit trail.
type Actor struct {
	UserID string
	Role   string
}

// Incident is a platform problem tracked by operators. Open incidents sit in the active index.
type Incident struct {
	ID          string           `json:"id"`
	Type        IncidentType     `json:"type"`
	Severity    IncidentSeverity `json:"severity"`
	TenantID    *string          `json:"tenantId"`
	Status      IncidentStatus   `json:"status"`
	Description string           `json:"description"`

	// Epoch milliseconds.
	CreatedAt  int64 `json:"createdAt"`
	ResolvedAt int64 `json:"resolvedAt,omitempty"`
}

type IncidentType string

const (
	IncidentAPIError       IncidentType = "api_error"
	IncidentProviderOutage IncidentType = "provider_outage"
	IncidentBilling        IncidentType = "billing"
)

type IncidentSeverity string

const (
	SeverityLow      IncidentSeverity = "low"
	SeverityMedium   IncidentSeverity = "medium"
	SeverityHigh     IncidentSeverity = "high"
	SeverityCritical IncidentSeverity = "critical"
)

type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "open"
	IncidentResolved IncidentStatus = "resolved"
)

// IncidentInput is what an operator supplies when opening an incident.
type IncidentInput struct {
	Type        IncidentType     `json:"type"`
	Severity    IncidentSeverity `json:"severity"`
	TenantID    string           `json:"tenantId"`
	Description string           `json:"description"`
}
