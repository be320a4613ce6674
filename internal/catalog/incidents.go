package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"voice-platform/internal/kv"
)

const KindIncident = "incident"

// platformScope is the audit tenant for incidents not tied to a tenant.
const platformScope = "platform"

func (in Incident) auditTenant() string {
	if in.TenantID != nil && *in.TenantID != "" {
		return *in.TenantID
	}
	return platformScope
}

// ListIncidents returns incidents newest first. openOnly reads the active index.
func (s *Service) ListIncidents(ctx context.Context, openOnly bool) ([]Incident, error) {
	var (
		entries []kv.Entry
		err     error
	)
	if openOnly {
		entries, err = s.store.ListActive(ctx, KindIncident)
	} else {
		entries, err = s.store.ListAll(ctx, KindIncident)
	}
	if err != nil {
		return nil, err
	}
	out := make([]Incident, 0, len(entries))
	for _, e := range entries {
		var in Incident
		if err := e.Decode(&in); err != nil {
			return nil, fmt.Errorf("catalog: decode %s/%s: %w", KindIncident, e.ID, err)
		}
		out = append(out, in)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}

func (s *Service) CountOpenIncidents(ctx context.Context) (int, error) {
	open, err := s.store.ListActive(ctx, KindIncident)
	if err != nil {
		return 0, err
	}
	return len(open), nil
}

// OpenIncident records a new open incident.
func (s *Service) OpenIncident(ctx context.Context, actor Actor, in IncidentInput, now time.Time) (Incident, error) {
	if in.Description == "" {
		return Incident{}, fmt.Errorf("%w: description is required", ErrInvalidArgument)
	}
	switch in.Type {
	case IncidentAPIError, IncidentProviderOutage, IncidentBilling:
	case "":
		in.Type = IncidentAPIError
	default:
		return Incident{}, fmt.Errorf("%w: unknown incident type %q", ErrInvalidArgument, in.Type)
	}
	switch in.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
	case "":
		in.Severity = SeverityLow
	default:
		return Incident{}, fmt.Errorf("%w: unknown severity %q", ErrInvalidArgument, in.Severity)
	}

	inc := Incident{
		ID:          uuid.NewString(),
		Type:        in.Type,
		Severity:    in.Severity,
		Status:      IncidentOpen,
		Description: in.Description,
		CreatedAt:   now.UnixMilli(),
	}
	if in.TenantID != "" {
		inc.TenantID = strPtr(in.TenantID)
	}
	e, err := kv.NewEntry(inc.ID, 0, true, inc)
	if err != nil {
		return Incident{}, err
	}
	if _, err := s.store.Put(ctx, KindIncident, e); err != nil {
		return Incident{}, err
	}
	s.logUpdate(ctx, inc.auditTenant(), actor, inc.ID, "incident opened")
	return inc, nil
}

// ResolveIncident closes an open incident and drops it from the active index.
// Resolving an already resolved incident returns it unchanged.
func (s *Service) ResolveIncident(ctx context.Context, id string, actor Actor, now time.Time) (Incident, error) {
	if id == "" {
		return Incident{}, ErrInvalidArgument
	}
	e, err := s.store.Get(ctx, KindIncident, id)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Incident{}, ErrNotFound
		}
		return Incident{}, err
	}
	var inc Incident
	if err := e.Decode(&inc); err != nil {
		return Incident{}, err
	}
	if inc.Status == IncidentResolved {
		return inc, nil
	}

	inc.Status = IncidentResolved
	inc.ResolvedAt = now.UnixMilli()
	next, err := kv.NewEntry(inc.ID, e.Version, false, inc)
	if err != nil {
		return Incident{}, err
	}
	if _, err := s.store.Put(ctx, KindIncident, next); err != nil {
		return Incident{}, err
	}
	s.logUpdate(ctx, inc.auditTenant(), actor, inc.ID, "incident resolved")
	return inc, nil
}
