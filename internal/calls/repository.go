package calls

import (
	"context"
	"errors"
	"fmt"

	"voice-platform/internal/kv"
)

// Kind is the store kind for call sessions.
const Kind = "call-session"

// Repository maps CallSession values onto the keyed store.
// Store failures other than not-found and version conflicts are wrapped in ErrStoreUnavailable.
type Repository struct {
	store kv.Store
}

func NewRepository(store kv.Store) *Repository {
	return &Repository{store: store}
}

// Get returns ErrNotFound when no record exists.
func (r *Repository) Get(ctx context.Context, id string) (CallSession, error) {
	e, err := r.store.Get(ctx, Kind, id)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return CallSession{}, ErrNotFound
		}
		return CallSession{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeSession(e)
}

// Save writes s conditionally on s.Version and advances it.
// A lost race is returned as kv.ErrConflict.
func (r *Repository) Save(ctx context.Context, s *CallSession) error {
	e, err := kv.NewEntry(s.ID, s.Version, s.IsLive, s)
	if err != nil {
		return err
	}
	v, err := r.store.Put(ctx, Kind, e)
	if err != nil {
		if errors.Is(err, kv.ErrConflict) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.Version = v
	return nil
}

func (r *Repository) ListActive(ctx context.Context) ([]CallSession, error) {
	entries, err := r.store.ListActive(ctx, Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeSessions(entries, true)
}

func (r *Repository) ListAll(ctx context.Context) ([]CallSession, error) {
	entries, err := r.store.ListAll(ctx, Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeSessions(entries, false)
}

func decodeSession(e kv.Entry) (CallSession, error) {
	var s CallSession
	if err := e.Decode(&s); err != nil {
		return CallSession{}, fmt.Errorf("calls: decode %s: %w", e.ID, err)
	}
	s.Version = e.Version
	if s.Transcript == nil {
		s.Transcript = []TranscriptEntry{}
	}
	return s, nil
}

// decodeSessions re-checks isLive on the document itself when liveOnly is set,
// so an index that briefly lags its record never surfaces an ended call.
func decodeSessions(entries []kv.Entry, liveOnly bool) ([]CallSession, error) {
	out := make([]CallSession, 0, len(entries))
	for _, e := range entries {
		s, err := decodeSession(e)
		if err != nil {
			return nil, err
		}
		if liveOnly && !s.IsLive {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
