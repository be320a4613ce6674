package reporting

import (
	"context"
	"sync"
	"time"

	"voice-platform/internal/calls"
)

// MemoryRepo is a simple in-memory reporting repository for tests.
// It enforces tenant isolation on reads.
type MemoryRepo struct {
	mu sync.Mutex

	Calls []calls.CallSession

	Tenants       int
	ActiveTenants int
	OpenIncidents int
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCalls(ctx context.Context, tenantID string, from, to time.Time) ([]calls.CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.CallSession, 0)
	for _, c := range r.Calls {
		if tenantID != "" && c.TenantID != tenantID {
			continue
		}
		if !inRange(c.StartTime, from, to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *MemoryRepo) CountTenants(ctx context.Context) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Tenants, r.ActiveTenants, nil
}

func (r *MemoryRepo) CountOpenIncidents(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.OpenIncidents, nil
}
