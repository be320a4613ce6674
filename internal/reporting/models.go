package reporting

import (
	"time"

	"voice-platform/internal/pricing"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics.
// Tenant isolation: TenantID is required.
type CallsSummaryRequest struct {
	TenantID string    `json:"tenantId"`
	Range    TimeRange `json:"range"`
}

type CallsSummary struct {
	TenantID string `json:"tenantId"`

	TotalCalls     int `json:"totalCalls"`
	LiveCalls      int `json:"liveCalls"`
	CompletedCalls int `json:"completedCalls"`
	FailedCalls    int `json:"failedCalls"`
	NoAnswerCalls  int `json:"noAnswerCalls"`
	RecordedCalls  int `json:"recordedCalls"`

	TotalDurationSeconds   int64 `json:"totalDurationSeconds"`
	AverageDurationSeconds int64 `json:"averageDurationSeconds"`

	TotalCost   pricing.Amount `json:"totalCost"`
	TotalMargin pricing.Amount `json:"totalMargin"`
}

// PlatformStats is the admin overview across every tenant.
type PlatformStats struct {
	TotalTenants    int `json:"totalTenants"`
	ActiveTenants   int `json:"activeTenants"`
	ActiveIncidents int `json:"activeIncidents"`

	LiveCalls  int `json:"liveCalls"`
	TotalCalls int `json:"totalCalls"`

	TotalCost   pricing.Amount `json:"totalCost"`
	TotalMargin pricing.Amount `json:"totalMargin"`
}

// ProviderUsage is the activity of one pipeline stage.
type ProviderUsage struct {
	Stage     string  `json:"stage"`
	Volume    int     `json:"volume"`
	LatencyMs int64   `json:"latency"`
	ErrorRate float64 `json:"errorRate"`
}

type UsageStats struct {
	Providers []ProviderUsage `json:"providers"`
}
