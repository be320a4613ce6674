package audit

import (
	"context"
	"sort"

	"voice-platform/internal/kv"
)

const Kind = "audit-log"

// KVRepo stores audit events in the shared keyed store.
// Records are created once (version 0) and never written again.
type KVRepo struct {
	store kv.Store
}

func NewKVRepo(store kv.Store) *KVRepo { return &KVRepo{store: store} }

func (r *KVRepo) Append(ctx context.Context, e Event) error {
	entry, err := kv.NewEntry(e.ID, 0, false, e)
	if err != nil {
		return err
	}
	_, err = r.store.Put(ctx, Kind, entry)
	return err
}

// List returns events oldest first. An empty tenantID lists every tenant.
func (r *KVRepo) List(ctx context.Context, tenantID string) ([]Event, error) {
	entries, err := r.store.ListAll(ctx, Kind)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(entries))
	for _, entry := range entries {
		var e Event
		if err := entry.Decode(&e); err != nil {
			return nil, err
		}
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
