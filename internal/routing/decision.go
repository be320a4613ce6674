package routing

// Decision is the call context resolved from a dialed number.
//
// It carries only what the ingress needs to scope and label a session:
// the owning tenant, the number, and the agent bound to it.
type Decision struct {
	TenantID string `json:"tenantId"`
	NumberID string `json:"numberId,omitempty"`
	AgentID  string `json:"agentId,omitempty"`

	Action Action `json:"action"`

	// Reason is optional and intended for internal logs/metrics.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	ActionReject  Action = "reject"
	ActionConnect Action = "connect"
)
