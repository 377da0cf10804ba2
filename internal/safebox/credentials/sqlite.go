package credentials

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/safebox/internal/filex"
	"github.com/dmitrijs2005/safebox/internal/safebox/credentials/migrations"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

const driverName = "sqlite3"

// migrateUp is a seam for testing the goose provider.
var migrateUp = func(ctx context.Context, db *sql.DB) error {
	p, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return err
	}
	_, err = p.Up(ctx)
	return err
}

// OpenDB opens the SQLite file at path, creating it and its directory if
// missing, and pins the pool to a single live connection.
func OpenDB(ctx context.Context, path string) (*sqlx.DB, error) {
	if _, err := filex.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	db, err := sqlx.Open(driverName, path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return db, nil
}

// RunMigrations creates the credentials table if it does not exist yet.
func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	if err := migrateUp(ctx, db.DB); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// Open opens (or creates) the store file at path and brings its schema up
// to date.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewStore(db), nil
}
