package routing

import (
	"context"
	"errors"
	"fmt"

	"voice-platform/internal/catalog"
)

var ErrUnknownNumber = errors.New("routing: number not routed to any tenant")

// Directory is the catalog read side the engine needs. catalog.Service satisfies it.
type Directory interface {
	LookupNumber(ctx context.Context, e164 string) (catalog.PhoneNumber, error)
	GetTenant(ctx context.Context, id string) (catalog.Tenant, error)
}

// Engine resolves a dialed number to its tenant and agent.
//
// Priority:
//  1. Number must be active (otherwise ErrUnknownNumber)
//  2. Tenant must be active (suspended tenants get a reject decision)
//  3. Number must be bound to an agent (otherwise a reject decision)
//
// Resolve has no side effects.
// A reject decision still names the tenant so the call can be recorded against it.
type Engine struct {
	Directory Directory
}

func NewEngine(dir Directory) *Engine {
	return &Engine{Directory: dir}
}

func (e *Engine) Resolve(ctx context.Context, toNumber string) (Decision, error) {
	if toNumber == "" {
		return Decision{}, ErrUnknownNumber
	}
	if e.Directory == nil {
		return Decision{}, errors.New("routing: directory not configured")
	}

	num, err := e.Directory.LookupNumber(ctx, toNumber)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Decision{}, ErrUnknownNumber
		}
		return Decision{}, fmt.Errorf("routing: lookup number: %w", err)
	}

	d := Decision{TenantID: num.TenantID, NumberID: num.ID}

	t, err := e.Directory.GetTenant(ctx, num.TenantID)
	if err != nil {
		return Decision{}, fmt.Errorf("routing: lookup tenant: %w", err)
	}
	if t.Status != catalog.TenantActive {
		d.Action, d.Reason = ActionReject, "tenant_suspended"
		return d, nil
	}

	if num.AgentID == nil || *num.AgentID == "" {
		d.Action, d.Reason = ActionReject, "no_agent_bound"
		return d, nil
	}

	d.AgentID = *num.AgentID
	d.Action, d.Reason = ActionConnect, "number_binding"
	return d, nil
}
