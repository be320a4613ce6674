package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// pgxDriver is registered by the pgx stdlib import.
const pgxDriver = "pgx"

// PostgresPoolConfig sizes the pool behind the record store.
// Webhook writes hold a connection for one statement or one short transaction,
// so MaxConns caps concurrent session writes.
type PostgresPoolConfig struct {
	MaxConns    int
	ConnMaxAge  time.Duration
	PingTimeout time.Duration
}

const (
	defaultMaxConns    = 20
	defaultConnMaxAge  = 30 * time.Minute
	defaultPingTimeout = 5 * time.Second
)

func (c PostgresPoolConfig) withDefaults() PostgresPoolConfig {
	if c.MaxConns <= 0 {
		c.MaxConns = defaultMaxConns
	}
	if c.ConnMaxAge <= 0 {
		c.ConnMaxAge = defaultConnMaxAge
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = defaultPingTimeout
	}
	return c
}

// configure keeps the whole pool warm; call traffic arrives in bursts.
func (c PostgresPoolConfig) configure(db *sql.DB) {
	db.SetMaxOpenConns(c.MaxConns)
	db.SetMaxIdleConns(c.MaxConns)
	db.SetConnMaxLifetime(c.ConnMaxAge)
	db.SetConnMaxIdleTime(c.ConnMaxAge / 6)
}

// OpenPostgres opens a pgx-backed pool and pings it once.
// dsn carries credentials and must never be logged.
func OpenPostgres(ctx context.Context, dsn string, pool PostgresPoolConfig) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	pool = pool.withDefaults()

	db, err := sql.Open(pgxDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	pool.configure(db)

	if err := HealthCheck(ctx, db, pool.PingTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// HealthCheck pings the DB with a timeout.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("postgres: ping failed: %w", err)
	}
	return nil
}

// TxFunc is the unit of work executed inside a transaction.
// It may run more than once, so it must not have effects outside tx.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// maxTxAttempts bounds reruns after a deadlock or serialization failure.
const maxTxAttempts = 3

// WithTx runs fn inside a transaction and reruns it when Postgres aborts the
// transaction with a retryable error. Other errors roll back and return as is.
func WithTx(ctx context.Context, db *sql.DB, fn TxFunc) error {
	if db == nil {
		return errors.New("postgres: db is nil")
	}
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = runTx(ctx, db, fn)
		if err == nil || !IsRetryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("postgres: transaction aborted %d times: %w", maxTxAttempts, err)
}

func runTx(ctx context.Context, db *sql.DB, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// IsRetryable reports whether err is a serialization failure (40001) or a
// deadlock (40P01). Postgres aborts the whole transaction in both cases.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	}
	return false
}
