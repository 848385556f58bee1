package userdata

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/nutritrack/internal/client/migrations"
	"github.com/dmitrijs2005/nutritrack/internal/dbx"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := dbx.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, dbx.Migrate(context.Background(), db, migrations.Migrations))
	return db
}

func TestSetAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeyDeployColor, []byte("blue")))

	v, err := r.Get(ctx, KeyDeployColor)
	require.NoError(t, err)
	require.Equal(t, []byte("blue"), v)
}

func TestGet_Absent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	_, err := r.Get(context.Background(), "absent")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSet_Upserts(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("old")))
	require.NoError(t, r.Set(ctx, "k", []byte("new")))

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)
}

func TestDeleteAndList(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a", []byte("1")))
	require.NoError(t, r.Set(ctx, "b", []byte("2")))
	require.NoError(t, r.Delete(ctx, "a"))
	require.NoError(t, r.Delete(ctx, "missing"))

	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string][]byte{"b": []byte("2")}, all)
}

func TestList_ScanError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, value FROM user_data").
		WillReturnRows(sqlmock.NewRows([]string{"id", "value"}).
			AddRow("a", []byte("1")).
			RowError(0, errors.New("corrupt page")))

	_, err = NewSQLiteRepository(db).List(context.Background())
	require.Error(t, err)
}
