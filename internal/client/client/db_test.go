package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/nutritrack/internal/client/models"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestInitDatabase_CreatesPartitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := InitDatabase(ctx, filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	defer db.Close()

	for _, name := range []string{"goose_db_version", "pending_meals", "pending_workouts", "food_cache", "user_data"} {
		assert.True(t, tableExists(t, db, name), name)
	}
}

func TestInitDatabase_ReopenKeepsRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "queue.db")

	db, err := InitDatabase(ctx, dsn)
	require.NoError(t, err)
	repos := NewRepositories(db)
	_, err = repos.Pending.Insert(ctx, &models.PendingRecord{
		TempID: models.NewTempID(), Kind: models.KindMeals, Payload: json.RawMessage(`{"name":"Soup"}`),
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitDatabase(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	all, err := NewRepositories(db).Pending.GetAll(ctx, models.KindMeals)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.JSONEq(t, `{"name":"Soup"}`, string(all[0].Payload))
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := InitDatabase(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(ctx, db))
	require.NoError(t, RunMigrations(ctx, db))
}
