package reporting

import (
	"context"
	"time"

	"voice-platform/internal/calls"
)

// SessionLister is the read side of the call aggregator.
type SessionLister interface {
	ListByTenant(ctx context.Context, tenantID string) ([]calls.CallSession, error)
	ListAll(ctx context.Context) ([]calls.CallSession, error)
}

// TenantCounter reports how many tenants exist and how many are active.
type TenantCounter interface {
	CountTenants(ctx context.Context) (total, active int, err error)
}

// IncidentCounter reports how many incidents are open.
type IncidentCounter interface {
	CountOpenIncidents(ctx context.Context) (int, error)
}

// SessionRepo reads reporting inputs from the live session store.
type SessionRepo struct {
	Sessions  SessionLister
	Tenants   TenantCounter
	Incidents IncidentCounter
}

func (r SessionRepo) ListCalls(ctx context.Context, tenantID string, from, to time.Time) ([]calls.CallSession, error) {
	var (
		rows []calls.CallSession
		err  error
	)
	if tenantID == "" {
		rows, err = r.Sessions.ListAll(ctx)
	} else {
		rows, err = r.Sessions.ListByTenant(ctx, tenantID)
	}
	if err != nil {
		return nil, err
	}
	out := make([]calls.CallSession, 0, len(rows))
	for _, c := range rows {
		if inRange(c.StartTime, from, to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r SessionRepo) CountTenants(ctx context.Context) (int, int, error) {
	if r.Tenants == nil {
		return 0, 0, nil
	}
	return r.Tenants.CountTenants(ctx)
}

func (r SessionRepo) CountOpenIncidents(ctx context.Context) (int, error) {
	if r.Incidents == nil {
		return 0, nil
	}
	return r.Incidents.CountOpenIncidents(ctx)
}
