package kv

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"voice-platform/pkg/utils"
)

// Runs against a real database only when TEST_POSTGRES_DSN is set.
func TestPostgresStore_Contract(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	db, err := utils.OpenPostgres(ctx, dsn, utils.PostgresPoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewPostgresStore(db)
	require.NoError(t, s.EnsureSchema(ctx))

	kind := "test-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), `DELETE FROM kv_records WHERE kind LIKE $1`, kind+"%")
	})

	runContract(t, s, kind)
}
