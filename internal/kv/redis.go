package kv

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each record in a hash (version, live, data) and two sets per kind:
// the full index and the active index. Writes go through a Lua script so the version
// check, the record write and both index updates happen atomically.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string

	// PatchAttempts bounds the optimistic retry loop used by Patch.
	PatchAttempts int
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "kv", PatchAttempts: 5}
}

var putScript = redis.NewScript(`
-- KEYS[1] = record hash
-- KEYS[2] = kind index set
-- KEYS[3] = kind active set
-- ARGV[1] = expected version (0 = must not exist)
-- ARGV[2] = id
-- ARGV[3] = live flag ("1" or "0")
-- ARGV[4] = document
--
-- Returns the new version, or -1 when the expected version does not match.
local expected = tonumber(ARGV[1])
local current = redis.call('HGET', KEYS[1], 'version')
if current == false then
  if expected ~= 0 then
    return -1
  end
elseif tonumber(current) ~= expected then
  return -1
end

local nextVersion = expected + 1
redis.call('HSET', KEYS[1], 'version', nextVersion, 'live', ARGV[3], 'data', ARGV[4])
redis.call('SADD', KEYS[2], ARGV[2])
if ARGV[3] == '1' then
  redis.call('SADD', KEYS[3], ARGV[2])
else
  redis.call('SREM', KEYS[3], ARGV[2])
end
return nextVersion
`)

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("kv: redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) recordKey(kind, id string) string {
	return fmt.Sprintf("%s:%s:rec:%s", s.prefix, kind, id)
}

func (s *RedisStore) indexKey(kind string) string {
	return fmt.Sprintf("%s:%s:index", s.prefix, kind)
}

func (s *RedisStore) activeKey(kind string) string {
	return fmt.Sprintf("%s:%s:active", s.prefix, kind)
}

func (s *RedisStore) Exists(ctx context.Context, kind, id string) (bool, error) {
	if err := validateKey(kind, id); err != nil {
		return false, err
	}
	n, err := s.rdb.Exists(ctx, s.recordKey(kind, id)).Result()
	if err != nil {
		return false, fmt.Errorf("kv: redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Get(ctx context.Context, kind, id string) (Entry, error) {
	if err := validateKey(kind, id); err != nil {
		return Entry{}, err
	}
	fields, err := s.rdb.HGetAll(ctx, s.recordKey(kind, id)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("kv: redis get: %w", err)
	}
	if len(fields) == 0 {
		return Entry{}, ErrNotFound
	}
	return entryFromHash(id, fields)
}

func (s *RedisStore) Put(ctx context.Context, kind string, e Entry) (int64, error) {
	if err := validateKey(kind, e.ID); err != nil {
		return 0, err
	}
	live := "0"
	if e.Live {
		live = "1"
	}
	keys := []string{s.recordKey(kind, e.ID), s.indexKey(kind), s.activeKey(kind)}
	v, err := putScript.Run(ctx, s.rdb, keys, e.Version, e.ID, live, string(e.Data)).Int64()
	if err != nil {
		return 0, fmt.Errorf("kv: redis put: %w", err)
	}
	if v < 0 {
		return 0, ErrConflict
	}
	return v, nil
}

func (s *RedisStore) Patch(ctx context.Context, kind, id string, partial map[string]any) (Entry, error) {
	attempts := s.PatchAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		current, err := s.Get(ctx, kind, id)
		if err != nil {
			return Entry{}, err
		}
		doc, live, err := mergeDocument(current.Data, partial)
		if err != nil {
			return Entry{}, err
		}
		next := Entry{ID: id, Version: current.Version, Live: current.Live, Data: doc}
		if live != nil {
			next.Live = *live
		}
		v, err := s.Put(ctx, kind, next)
		if err == ErrConflict {
			continue
		}
		if err != nil {
			return Entry{}, err
		}
		next.Version = v
		return next, nil
	}
	return Entry{}, ErrConflict
}

func (s *RedisStore) ListAll(ctx context.Context, kind string) ([]Entry, error) {
	ids, err := s.rdb.SMembers(ctx, s.indexKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: redis list: %w", err)
	}
	out, _, err := s.load(ctx, kind, ids, false)
	return out, err
}

func (s *RedisStore) ListActive(ctx context.Context, kind string) ([]Entry, error) {
	ids, err := s.rdb.SMembers(ctx, s.activeKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: redis list active: %w", err)
	}
	out, stale, err := s.load(ctx, kind, ids, true)
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		// Best effort: a failed prune only means the next listing skips them again.
		members := make([]any, len(stale))
		for i, id := range stale {
			members[i] = id
		}
		_ = s.rdb.SRem(ctx, s.activeKey(kind), members...).Err()
	}
	return out, nil
}

func (s *RedisStore) AddToIndex(ctx context.Context, kind, id string) error {
	if err := validateKey(kind, id); err != nil {
		return err
	}
	if err := s.rdb.SAdd(ctx, s.indexKey(kind), id).Err(); err != nil {
		return fmt.Errorf("kv: redis index: %w", err)
	}
	return nil
}

// load fetches the records for ids in one pipeline. Ids whose record is missing, or
// not live when liveOnly is set, are returned as stale instead of failing the listing.
func (s *RedisStore) load(ctx context.Context, kind string, ids []string, liveOnly bool) ([]Entry, []string, error) {
	sort.Strings(ids)
	if len(ids) == 0 {
		return []Entry{}, nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, s.recordKey(kind, id))
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("kv: redis load: %w", err)
	}

	out := make([]Entry, 0, len(ids))
	var stale []string
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			stale = append(stale, id)
			continue
		}
		e, err := entryFromHash(id, fields)
		if err != nil {
			return nil, nil, err
		}
		if liveOnly && !e.Live {
			stale = append(stale, id)
			continue
		}
		out = append(out, e)
	}
	return out, stale, nil
}

func entryFromHash(id string, fields map[string]string) (Entry, error) {
	v, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("kv: corrupt version for %s: %w", id, err)
	}
	return Entry{
		ID:      id,
		Version: v,
		Live:    fields["live"] == "1",
		Data:    []byte(fields["data"]),
	}, nil
}
