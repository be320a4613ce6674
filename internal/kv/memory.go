package kv

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a mutex-guarded in-process Store for tests and local development.
// It is not shared across replicas.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]map[string]Entry
	index   map[string]map[string]struct{}
	active  map[string]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]map[string]Entry{},
		index:   map[string]map[string]struct{}{},
		active:  map[string]map[string]struct{}{},
	}
}

func (s *MemoryStore) Exists(_ context.Context, kind, id string) (bool, error) {
	if err := validateKey(kind, id); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[kind][id]
	return ok, nil
}

func (s *MemoryStore) Get(_ context.Context, kind, id string) (Entry, error) {
	if err := validateKey(kind, id); err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[kind][id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return cloneEntry(e), nil
}

func (s *MemoryStore) Put(_ context.Context, kind string, e Entry) (int64, error) {
	if err := validateKey(kind, e.ID); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[kind][e.ID]
	switch {
	case !ok && e.Version != 0:
		return 0, ErrConflict
	case ok && current.Version != e.Version:
		return 0, ErrConflict
	}

	stored := cloneEntry(e)
	stored.Version = e.Version + 1
	s.setLocked(kind, stored)
	return stored.Version, nil
}

func (s *MemoryStore) Patch(_ context.Context, kind, id string, partial map[string]any) (Entry, error) {
	if err := validateKey(kind, id); err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[kind][id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	doc, live, err := mergeDocument(current.Data, partial)
	if err != nil {
		return Entry{}, err
	}
	current.Data = doc
	current.Version++
	if live != nil {
		current.Live = *live
	}
	s.setLocked(kind, current)
	return cloneEntry(current), nil
}

func (s *MemoryStore) ListAll(_ context.Context, kind string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(kind, s.index[kind], false), nil
}

func (s *MemoryStore) ListActive(_ context.Context, kind string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(kind, s.active[kind], true), nil
}

func (s *MemoryStore) AddToIndex(_ context.Context, kind, id string) error {
	if err := validateKey(kind, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	addMember(s.index, kind, id)
	return nil
}

func (s *MemoryStore) setLocked(kind string, e Entry) {
	if s.records[kind] == nil {
		s.records[kind] = map[string]Entry{}
	}
	s.records[kind][e.ID] = e
	addMember(s.index, kind, e.ID)
	if e.Live {
		addMember(s.active, kind, e.ID)
	} else {
		delete(s.active[kind], e.ID)
	}
}

// collectLocked resolves index members to records in id order, skipping members
// whose record is missing (or, for the active index, no longer live).
func (s *MemoryStore) collectLocked(kind string, members map[string]struct{}, liveOnly bool) []Entry {
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		e, ok := s.records[kind][id]
		if !ok {
			continue
		}
		if liveOnly && !e.Live {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	return out
}

func addMember(set map[string]map[string]struct{}, kind, id string) {
	if set[kind] == nil {
		set[kind] = map[string]struct{}{}
	}
	set[kind][id] = struct{}{}
}

func cloneEntry(e Entry) Entry {
	out := e
	out.Data = append([]byte(nil), e.Data...)
	return out
}
