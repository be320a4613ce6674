package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Store is the keyed record store shared by every entity kind.
//
// Records are opaque JSON documents addressed by (kind, id). Each record carries a
// monotonically increasing Version used for conditional writes, and a Live flag that
// drives the per-kind active index.
//
// Consistency contract:
// - strong read-after-write per key
// - no cross-key transactions; Put updates the record and both indexes of its kind as one unit
// - listings tolerate index/record mismatches by skipping the affected ids
type Store interface {
	Exists(ctx context.Context, kind, id string) (bool, error)
	Get(ctx context.Context, kind, id string) (Entry, error)

	// Put writes e if the stored version equals e.Version (0 means "must not exist yet").
	// It returns the new version, or ErrConflict when the precondition fails.
	Put(ctx context.Context, kind string, e Entry) (int64, error)

	// Patch shallow-merges the top-level fields of partial into the stored document.
	Patch(ctx context.Context, kind, id string, partial map[string]any) (Entry, error)

	ListAll(ctx context.Context, kind string) ([]Entry, error)
	ListActive(ctx context.Context, kind string) ([]Entry, error)
	AddToIndex(ctx context.Context, kind, id string) error
}

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping reports whether store is reachable. Stores without a Pinger are always ready.
func Ping(ctx context.Context, store Store) error {
	if p, ok := store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Entry is one stored record.
type Entry struct {
	ID      string          `json:"id"`
	Version int64           `json:"version"`
	Live    bool            `json:"live"`
	Data    json.RawMessage `json:"data"`
}

var (
	ErrNotFound  = errors.New("kv: not found")
	ErrConflict  = errors.New("kv: version conflict")
	ErrInvalidID = errors.New("kv: kind and id are required")
)

// Decode unmarshals the entry's document into v.
func (e Entry) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("kv: %s has no data", e.ID)
	}
	return json.Unmarshal(e.Data, v)
}

// NewEntry encodes v as the document of a record.
func NewEntry(id string, version int64, live bool, v any) (Entry, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Entry{}, fmt.Errorf("kv: encode %s: %w", id, err)
	}
	return Entry{ID: id, Version: version, Live: live, Data: raw}, nil
}

func validateKey(kind, id string) error {
	if kind == "" || id == "" {
		return ErrInvalidID
	}
	return nil
}

// mergeDocument applies a shallow patch to a JSON object document.
// An "isLive" boolean in the patch is reported back so backends can keep the active index aligned.
func mergeDocument(doc json.RawMessage, partial map[string]any) (json.RawMessage, *bool, error) {
	fields := map[string]json.RawMessage{}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &fields); err != nil {
			return nil, nil, fmt.Errorf("kv: stored document is not an object: %w", err)
		}
	}
	var live *bool
	for k, v := range partial {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, nil, fmt.Errorf("kv: encode patch field %q: %w", k, err)
		}
		fields[k] = raw
		if k == "isLive" {
			if b, ok := v.(bool); ok {
				live = &b
			}
		}
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, err
	}
	return out, live, nil
}
