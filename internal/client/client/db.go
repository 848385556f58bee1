package client

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/nutritrack/internal/client/migrations"
	"github.com/dmitrijs2005/nutritrack/internal/client/repositories/foodcache"
	"github.com/dmitrijs2005/nutritrack/internal/client/repositories/pending"
	"github.com/dmitrijs2005/nutritrack/internal/client/repositories/userdata"
	"github.com/dmitrijs2005/nutritrack/internal/dbx"
)

// Repositories bundles the client repositories over one database.
type Repositories struct {
	Pending   pending.Repository
	UserData  userdata.Repository
	FoodCache foodcache.Repository
}

func NewRepositories(db dbx.DBTX) *Repositories {
	return &Repositories{
		Pending:   pending.NewSQLiteRepository(db),
		UserData:  userdata.NewSQLiteRepository(db),
		FoodCache: foodcache.NewSQLiteRepository(db),
	}
}

// RunMigrations creates any missing tables. Existing rows are never touched.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return dbx.Migrate(ctx, db, migrations.Migrations)
}

// InitDatabase opens (creating if needed) the queue database at dsn and
// brings its schema up to date.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := dbx.OpenSQLite(dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
