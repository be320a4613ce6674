package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, tenantID string) ([]Event, error)
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Records are listed on admin routes only.
// - Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

var errNoRepo = errors.New("audit: repository not configured")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errNoRepo
	}
	if e.TenantID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// List returns events for one tenant, or for all tenants when tenantID is empty.
func (s *Service) List(ctx context.Context, tenantID string) ([]Event, error) {
	if s.repo == nil {
		return nil, errNoRepo
	}
	return s.repo.List(ctx, tenantID)
}

// LogAdminAction records an admin action (including hidden roles).
func (s *Service) LogAdminAction(ctx context.Context, tenantID, actorUserID, actorRole, ip, message, targetID, metadata string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeAdminAction,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		TargetID:    targetID,
		Message:     message,
		Metadata:    metadata,
	})
}

// LogCatalogUpdate records a change to an agent, number or tenant record.
func (s *Service) LogCatalogUpdate(ctx context.Context, tenantID, actorUserID, actorRole, targetID, message, metadata string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeCatalogUpdate,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		TargetID:    targetID,
		Message:     message,
		Metadata:    metadata,
	})
}

// LogSessionAnomaly records an inbound call event the aggregator accepted but did not apply.
func (s *Service) LogSessionAnomaly(ctx context.Context, tenantID, sessionID string, typ EventType, message, metadata string) error {
	return s.Append(ctx, Event{
		TenantID:  tenantID,
		Type:      typ,
		SessionID: sessionID,
		Message:   message,
		Metadata:  metadata,
	})
}
