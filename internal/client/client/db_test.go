package client

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestInitDatabase_CreatesSchema(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := InitDatabase(ctx, filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.PingContext(ctx))
	for _, table := range []string{"goose_db_version", "metadata", "credentials", "sync_queue"} {
		assert.True(t, tableExists(t, db, table), "table %s", table)
	}
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(ctx, db))
	require.NoError(t, RunMigrations(ctx, db))
	assert.True(t, tableExists(t, db, "metadata"))
}

func TestInitDatabase_BadPath(t *testing.T) {
	t.Parallel()

	_, err := InitDatabase(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "app.db"))
	require.Error(t, err)
}

func TestNewRepositories_SharesDatabase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := InitDatabase(ctx, filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	defer db.Close()

	repos := NewRepositories(db)
	require.NoError(t, repos.Metadata.Set(ctx, "k", []byte("v")))

	v, err := NewRepositories(db).Metadata.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}
