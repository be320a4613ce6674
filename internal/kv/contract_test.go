package kv

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name   string `json:"name"`
	IsLive bool   `json:"isLive"`
}

// runContract exercises behavior every Store backend must share.
// kind namespaces the records so backends with shared state do not collide.
func runContract(t *testing.T, s Store, kind string) {
	t.Helper()
	ctx := context.Background()

	t.Run("conditional put", func(t *testing.T) {
		e, err := NewEntry("rec-1", 0, false, doc{Name: "a"})
		require.NoError(t, err)

		v, err := s.Put(ctx, kind, e)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		_, err = s.Put(ctx, kind, e)
		assert.ErrorIs(t, err, ErrConflict, "second create must fail")

		e.Version = 1
		v, err = s.Put(ctx, kind, e)
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)

		_, err = s.Put(ctx, kind, e)
		assert.ErrorIs(t, err, ErrConflict, "stale version must fail")

		missing := e
		missing.ID = "rec-missing"
		missing.Version = 4
		_, err = s.Put(ctx, kind, missing)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("get and exists", func(t *testing.T) {
		_, err := s.Get(ctx, kind, "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		ok, err := s.Exists(ctx, kind, "nope")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.Exists(ctx, kind, "rec-1")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.Get(ctx, kind, "rec-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		var d doc
		require.NoError(t, got.Decode(&d))
		assert.Equal(t, "a", d.Name)
	})

	t.Run("active index follows live flag", func(t *testing.T) {
		k := kind + "-live"
		for _, id := range []string{"b", "a"} {
			e, err := NewEntry(id, 0, true, doc{Name: id, IsLive: true})
			require.NoError(t, err)
			_, err = s.Put(ctx, k, e)
			require.NoError(t, err)
		}
		c, err := NewEntry("c", 0, false, doc{Name: "c"})
		require.NoError(t, err)
		_, err = s.Put(ctx, k, c)
		require.NoError(t, err)

		assert.Equal(t, []string{"a", "b"}, listIDs(t, s.ListActive, k))
		assert.Equal(t, []string{"a", "b", "c"}, listIDs(t, s.ListAll, k))

		a, err := NewEntry("a", 1, false, doc{Name: "a"})
		require.NoError(t, err)
		_, err = s.Put(ctx, k, a)
		require.NoError(t, err)

		assert.Equal(t, []string{"b"}, listIDs(t, s.ListActive, k))
		assert.Equal(t, []string{"a", "b", "c"}, listIDs(t, s.ListAll, k))
	})

	t.Run("patch merges and bumps version", func(t *testing.T) {
		k := kind + "-patch"
		e, err := NewEntry("p", 0, true, doc{Name: "before", IsLive: true})
		require.NoError(t, err)
		_, err = s.Put(ctx, k, e)
		require.NoError(t, err)

		got, err := s.Patch(ctx, k, "p", map[string]any{"isLive": false, "extra": "x"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		assert.False(t, got.Live)

		var m map[string]any
		require.NoError(t, got.Decode(&m))
		assert.Equal(t, "before", m["name"])
		assert.Equal(t, "x", m["extra"])
		assert.Equal(t, false, m["isLive"])

		assert.Empty(t, listIDs(t, s.ListActive, k))

		_, err = s.Patch(ctx, k, "missing", map[string]any{"a": 1})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("listings skip index members without records", func(t *testing.T) {
		k := kind + "-orphan"
		require.NoError(t, s.AddToIndex(ctx, k, "ghost"))
		e, err := NewEntry("real", 0, false, doc{Name: "real"})
		require.NoError(t, err)
		_, err = s.Put(ctx, k, e)
		require.NoError(t, err)

		assert.Equal(t, []string{"real"}, listIDs(t, s.ListAll, k))
	})

	t.Run("empty listing is not nil", func(t *testing.T) {
		got, err := s.ListAll(ctx, kind+"-empty")
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Len(t, got, 0)
	})

	t.Run("rejects empty keys", func(t *testing.T) {
		_, err := s.Get(ctx, "", "x")
		assert.ErrorIs(t, err, ErrInvalidID)
		_, err = s.Put(ctx, kind, Entry{})
		assert.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("concurrent creates have one winner", func(t *testing.T) {
		k := kind + "-race"
		const n = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e, _ := NewEntry("same", 0, true, doc{Name: "x"})
				_, err := s.Put(ctx, k, e)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrConflict):
					conflicts++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
		assert.Equal(t, n-1, conflicts)
	})
}

func listIDs(t *testing.T, list func(context.Context, string) ([]Entry, error), kind string) []string {
	t.Helper()
	entries, err := list(context.Background(), kind)
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}
