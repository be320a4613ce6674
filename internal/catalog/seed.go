package catalog

import (
	"context"
	"errors"
	"time"

	"voice-platform/internal/kv"
)

func strPtr(s string) *string { return &s }

// SeedData returns the demo catalog loaded when SEED_DEMO_DATA is set.
func SeedData(now time.Time) ([]Tenant, []Agent, []PhoneNumber) {
	day := int64(24 * time.Hour / time.Millisecond)
	ms := now.UnixMilli()

	tenants := []Tenant{
		{ID: "tenant-1", Name: "Acme Health", Plan: "enterprise", Status: TenantActive, Credits: 1250, Limits: TenantLimits{Concurrency: 20, MaxDuration: 3600}, CreatedAt: ms - 90*day},
		{ID: "tenant-2", Name: "Globex Realty", Plan: "pro", Status: TenantActive, Credits: 310.5, Limits: TenantLimits{Concurrency: 5, MaxDuration: 1800}, CreatedAt: ms - 30*day},
		{ID: "tenant-3", Name: "Initech Support", Plan: "free", Status: TenantSuspended, Credits: 0, Limits: TenantLimits{Concurrency: 1, MaxDuration: 600}, CreatedAt: ms - 7*day},
	}
	agents := []Agent{
		{ID: "agent-1", TenantID: "tenant-1", Name: "Support Agent", Prompt: "Help users with their orders.", Voice: "bella", Language: "en-US", Provider: "openai", Temperature: 0.7},
		{ID: "agent-2", TenantID: "tenant-1", Name: "Sales Agent", Prompt: "Pitch our new product.", Voice: "echo", Language: "en-US", Provider: "elevenlabs", Temperature: 0.8},
		{ID: "agent-3", TenantID: "tenant-2", Name: "Receptionist", Prompt: "Greet visitors.", Voice: "nova", Language: "en-US", Provider: "openai", Temperature: 0.5},
	}
	numbers := []PhoneNumber{
		{ID: "num-1", TenantID: "tenant-1", E164: "+15551234567", Country: "US", AgentID: strPtr("agent-1"), Status: NumberActive, RoutingRules: RoutingRules{FallbackNumber: "+15559990001", InboundTimeout: 20}},
		{ID: "num-2", TenantID: "tenant-1", E164: "+15552223333", Country: "US", AgentID: strPtr("agent-2"), Status: NumberActive, RoutingRules: RoutingRules{InboundTimeout: 30}},
		{ID: "num-3", TenantID: "tenant-2", E164: "+442071234567", Country: "UK", AgentID: strPtr("agent-3"), Status: NumberActive, RoutingRules: RoutingRules{FallbackNumber: "+442079998888", InboundTimeout: 15}},
		{ID: "num-4", TenantID: "tenant-3", E164: "+18887776666", Country: "US", Status: NumberActive, RoutingRules: RoutingRules{InboundTimeout: 30}},
	}
	return tenants, agents, numbers
}

// SeedIncidents returns the demo incident history: two open, one resolved.
func SeedIncidents(now time.Time) []Incident {
	ms := now.UnixMilli()
	hour := int64(time.Hour / time.Millisecond)
	return []Incident{
		{ID: "inc-1", Type: IncidentProviderOutage, Severity: SeverityHigh, Status: IncidentOpen, Description: "TTS provider returning 5xx for a subset of voices", CreatedAt: ms - 2*hour},
		{ID: "inc-2", Type: IncidentBilling, Severity: SeverityMedium, TenantID: strPtr("tenant-3"), Status: IncidentOpen, Description: "Tenant suspended after failed top-up", CreatedAt: ms - 26*hour},
		{ID: "inc-3", Type: IncidentAPIError, Severity: SeverityLow, Status: IncidentResolved, Description: "Webhook latency spike", CreatedAt: ms - 72*hour, ResolvedAt: ms - 70*hour},
	}
}

// Seed writes the demo catalog. Records that already exist are left alone,
// so it is safe to run on every start.
func (s *Service) Seed(ctx context.Context, now time.Time) error {
	tenants, agents, numbers := SeedData(now)
	for _, t := range tenants {
		if err := s.create(ctx, KindTenant, t.ID, t.Status == TenantActive, t); err != nil {
			return err
		}
	}
	for _, a := range agents {
		if err := s.create(ctx, KindAgent, a.ID, false, a); err != nil {
			return err
		}
	}
	for _, n := range numbers {
		if err := s.create(ctx, KindNumber, n.ID, false, n); err != nil {
			return err
		}
	}
	for _, in := range SeedIncidents(now) {
		if err := s.create(ctx, KindIncident, in.ID, in.Status == IncidentOpen, in); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) create(ctx context.Context, kind, id string, live bool, v any) error {
	e, err := kv.NewEntry(id, 0, live, v)
	if err != nil {
		return err
	}
	if _, err := s.store.Put(ctx, kind, e); err != nil && !errors.Is(err, kv.ErrConflict) {
		return err
	}
	return nil
}
