package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voice-platform/pkg/utils"
)

// NOTE: PostgresStore keeps every kind in one table:
//
//	kv_records (kind, id, version, live, data jsonb, created_at, updated_at)
//
// Rows are the index, so the full listing is a table scan per kind and the active
// listing reads the partial index on live rows.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv_records (
  kind       TEXT        NOT NULL,
  id         TEXT        NOT NULL,
  version    BIGINT      NOT NULL,
  live       BOOLEAN     NOT NULL DEFAULT FALSE,
  data       JSONB       NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS kv_records_live_idx ON kv_records (kind, id) WHERE live;
`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return utils.HealthCheck(ctx, s.db, 2*time.Second)
}

// EnsureSchema creates the table and index if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("kv: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, kind, id string) (bool, error) {
	if err := validateKey(kind, id); err != nil {
		return false, err
	}
	const q = `SELECT EXISTS (SELECT 1 FROM kv_records WHERE kind = $1 AND id = $2)`
	var ok bool
	if err := s.db.QueryRowContext(ctx, q, kind, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("kv: postgres exists: %w", err)
	}
	return ok, nil
}

func (s *PostgresStore) Get(ctx context.Context, kind, id string) (Entry, error) {
	if err := validateKey(kind, id); err != nil {
		return Entry{}, err
	}
	const q = `
SELECT id, version, live, data
FROM kv_records
WHERE kind = $1 AND id = $2
`
	var e Entry
	var data []byte
	if err := s.db.QueryRowContext(ctx, q, kind, id).Scan(&e.ID, &e.Version, &e.Live, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("kv: postgres get: %w", err)
	}
	e.Data = data
	return e, nil
}

func (s *PostgresStore) Put(ctx context.Context, kind string, e Entry) (int64, error) {
	if err := validateKey(kind, e.ID); err != nil {
		return 0, err
	}
	next := e.Version + 1

	var (
		res sql.Result
		err error
	)
	if e.Version == 0 {
		const q = `
INSERT INTO kv_records (kind, id, version, live, data)
VALUES ($1, $2, $3, $4, $5::jsonb)
ON CONFLICT (kind, id) DO NOTHING
`
		res, err = s.db.ExecContext(ctx, q, kind, e.ID, next, e.Live, string(e.Data))
	} else {
		const q = `
UPDATE kv_records
SET version = $4, live = $5, data = $6::jsonb, updated_at = now()
WHERE kind = $1 AND id = $2 AND version = $3
`
		res, err = s.db.ExecContext(ctx, q, kind, e.ID, e.Version, next, e.Live, string(e.Data))
	}
	if err != nil {
		return 0, fmt.Errorf("kv: postgres put: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("kv: postgres put: %w", err)
	}
	if n == 0 {
		return 0, ErrConflict
	}
	return next, nil
}

func (s *PostgresStore) Patch(ctx context.Context, kind, id string, partial map[string]any) (Entry, error) {
	if err := validateKey(kind, id); err != nil {
		return Entry{}, err
	}
	var out Entry
	err := utils.WithTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row so the merge and version bump are serialized per record.
		const sel = `
SELECT version, live, data
FROM kv_records
WHERE kind = $1 AND id = $2
FOR UPDATE
`
		var (
			version int64
			live    bool
			data    []byte
		)
		if err := tx.QueryRowContext(ctx, sel, kind, id).Scan(&version, &live, &data); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		doc, setLive, err := mergeDocument(data, partial)
		if err != nil {
			return err
		}
		if setLive != nil {
			live = *setLive
		}

		const upd = `
UPDATE kv_records
SET version = $3, live = $4, data = $5::jsonb, updated_at = now()
WHERE kind = $1 AND id = $2
`
		if _, err := tx.ExecContext(ctx, upd, kind, id, version+1, live, string(doc)); err != nil {
			return err
		}
		out = Entry{ID: id, Version: version + 1, Live: live, Data: doc}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("kv: postgres patch: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListAll(ctx context.Context, kind string) ([]Entry, error) {
	const q = `
SELECT id, version, live, data
FROM kv_records
WHERE kind = $1
ORDER BY id
`
	return s.query(ctx, q, kind)
}

func (s *PostgresStore) ListActive(ctx context.Context, kind string) ([]Entry, error) {
	const q = `
SELECT id, version, live, data
FROM kv_records
WHERE kind = $1 AND live
ORDER BY id
`
	return s.query(ctx, q, kind)
}

// AddToIndex is a no-op: every row is already part of its kind's listing.
func (s *PostgresStore) AddToIndex(_ context.Context, kind, id string) error {
	return validateKey(kind, id)
}

func (s *PostgresStore) query(ctx context.Context, q, kind string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, kind)
	if err != nil {
		return nil, fmt.Errorf("kv: postgres list: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var data []byte
		if err := rows.Scan(&e.ID, &e.Version, &e.Live, &data); err != nil {
			return nil, fmt.Errorf("kv: postgres scan: %w", err)
		}
		e.Data = data
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kv: postgres list: %w", err)
	}
	return out, nil
}
