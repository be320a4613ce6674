package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"voice-platform/internal/kv"
)

const (
	KindTenant = "tenant"
	KindAgent  = "agent"
	KindNumber = "phone-number"
)

var (
	ErrNotFound        = errors.New("catalog: not found")
	ErrForbidden       = errors.New("catalog: record belongs to another tenant")
	ErrInvalidArgument = errors.New("catalog: invalid argument")
)

// Auditor records catalog mutations. audit.Service satisfies it.
type Auditor interface {
	LogCatalogUpdate(ctx context.Context, tenantID, actorUserID, actorRole, targetID, message, metadata string) error
}

// Service is pass-through CRUD over the keyed store.
//
// Tenants use the store's active index for status=active; agents and numbers do not.
type Service struct {
	store kv.Store
	audit Auditor
}

func NewService(store kv.Store, audit Auditor) *Service {
	return &Service{store: store, audit: audit}
}

func (s *Service) ListTenants(ctx context.Context) ([]Tenant, error) {
	return listKind[Tenant](ctx, s.store, KindTenant, nil)
}

// CountTenants returns the total and active tenant counts.
func (s *Service) CountTenants(ctx context.Context) (int, int, error) {
	all, err := s.store.ListAll(ctx, KindTenant)
	if err != nil {
		return 0, 0, err
	}
	active, err := s.store.ListActive(ctx, KindTenant)
	if err != nil {
		return 0, 0, err
	}
	return len(all), len(active), nil
}

func (s *Service) ListAgents(ctx context.Context, tenantID string) ([]Agent, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	return listKind(ctx, s.store, KindAgent, func(a Agent) bool { return a.TenantID == tenantID })
}

func (s *Service) CreateAgent(ctx context.Context, tenantID string, actor Actor, in AgentInput) (Agent, error) {
	if tenantID == "" || in.Name == "" {
		return Agent{}, fmt.Errorf("%w: tenant and name are required", ErrInvalidArgument)
	}
	a := Agent{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        in.Name,
		Prompt:      in.Prompt,
		Voice:       orDefault(in.Voice, "bella"),
		Language:    orDefault(in.Language, "en-US"),
		Provider:    orDefault(in.Provider, "openai"),
		Temperature: 0.7,
	}
	if in.Temperature != nil {
		if *in.Temperature < 0 || *in.Temperature > 2 {
			return Agent{}, fmt.Errorf("%w: temperature must be within [0,2]", ErrInvalidArgument)
		}
		a.Temperature = *in.Temperature
	}

	e, err := kv.NewEntry(a.ID, 0, false, a)
	if err != nil {
		return Agent{}, err
	}
	if _, err := s.store.Put(ctx, KindAgent, e); err != nil {
		return Agent{}, err
	}
	s.logUpdate(ctx, tenantID, actor, a.ID, "agent created")
	return a, nil
}

func (s *Service) ListNumbers(ctx context.Context, tenantID string) ([]PhoneNumber, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	return listKind(ctx, s.store, KindNumber, func(n PhoneNumber) bool { return n.TenantID == tenantID })
}

// LookupNumber returns the active number e164. Released and pending numbers do not resolve.
func (s *Service) LookupNumber(ctx context.Context, e164 string) (PhoneNumber, error) {
	if e164 == "" {
		return PhoneNumber{}, ErrInvalidArgument
	}
	nums, err := listKind(ctx, s.store, KindNumber, func(n PhoneNumber) bool {
		return n.E164 == e164 && n.Status == NumberActive
	})
	if err != nil {
		return PhoneNumber{}, err
	}
	if len(nums) == 0 {
		return PhoneNumber{}, ErrNotFound
	}
	return nums[0], nil
}

func (s *Service) GetTenant(ctx context.Context, id string) (Tenant, error) {
	if id == "" {
		return Tenant{}, ErrInvalidArgument
	}
	e, err := s.store.Get(ctx, KindTenant, id)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, err
	}
	var t Tenant
	if err := e.Decode(&t); err != nil {
		return Tenant{}, err
	}
	return t, nil
}

// UpdateNumber applies p to a number owned by tenantID.
func (s *Service) UpdateNumber(ctx context.Context, tenantID, id string, actor Actor, p NumberPatch) (PhoneNumber, error) {
	if tenantID == "" || id == "" {
		return PhoneNumber{}, ErrInvalidArgument
	}
	ok, err := s.store.Exists(ctx, KindNumber, id)
	if err != nil {
		return PhoneNumber{}, err
	}
	if !ok {
		return PhoneNumber{}, ErrNotFound
	}

	e, err := s.store.Get(ctx, KindNumber, id)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return PhoneNumber{}, ErrNotFound
		}
		return PhoneNumber{}, err
	}
	var current PhoneNumber
	if err := e.Decode(&current); err != nil {
		return PhoneNumber{}, err
	}
	if current.TenantID != tenantID {
		return PhoneNumber{}, ErrForbidden
	}

	partial, err := p.fields()
	if err != nil {
		return PhoneNumber{}, err
	}
	if len(partial) == 0 {
		return current, nil
	}

	updated, err := s.store.Patch(ctx, KindNumber, id, partial)
	if err != nil {
		return PhoneNumber{}, err
	}
	var out PhoneNumber
	if err := updated.Decode(&out); err != nil {
		return PhoneNumber{}, err
	}
	s.logUpdate(ctx, tenantID, actor, id, "phone number updated")
	return out, nil
}

func (p NumberPatch) fields() (map[string]any, error) {
	out := map[string]any{}
	if p.AgentID != nil {
		if *p.AgentID == "" {
			out["agentId"] = nil
		} else {
			out["agentId"] = *p.AgentID
		}
	}
	if p.Status != nil {
		switch *p.Status {
		case NumberActive, NumberPending, NumberReleased:
			out["status"] = *p.Status
		default:
			return nil, fmt.Errorf("%w: unknown number status %q", ErrInvalidArgument, *p.Status)
		}
	}
	if p.RoutingRules != nil {
		if p.RoutingRules.InboundTimeout < 0 {
			return nil, fmt.Errorf("%w: inboundTimeout must not be negative", ErrInvalidArgument)
		}
		out["routingRules"] = *p.RoutingRules
	}
	return out, nil
}

func (s *Service) logUpdate(ctx context.Context, tenantID string, actor Actor, targetID, msg string) {
	if s.audit == nil {
		return
	}
	// Best effort: the change is already stored.
	_ = s.audit.LogCatalogUpdate(ctx, tenantID, actor.UserID, actor.Role, targetID, msg, "")
}

func listKind[T any](ctx context.Context, store kv.Store, kind string, keep func(T) bool) ([]T, error) {
	entries, err := store.ListAll(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		var v T
		if err := e.Decode(&v); err != nil {
			return nil, fmt.Errorf("catalog: decode %s/%s: %w", kind, e.ID, err)
		}
		if keep != nil && !keep(v) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
