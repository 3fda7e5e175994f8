package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/myid/internal/client/migrations"
	"github.com/dmitrijs2005/myid/internal/client/repositories/credentials"
	"github.com/dmitrijs2005/myid/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/myid/internal/client/repositories/queue"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Repositories bundles the SQLite-backed repositories of one database.
type Repositories struct {
	Metadata    *metadata.SQLiteRepository
	Credentials *credentials.SQLiteRepository
	Queue       *queue.SQLiteRepository
}

// NewRepositories binds every repository to db.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Metadata:    metadata.NewSQLiteRepository(db),
		Credentials: credentials.NewSQLiteRepository(db),
		Queue:       queue.NewSQLiteRepository(db),
	}
}

// RunMigrations applies the embedded migrations. Already applied versions
// are skipped.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// InitDatabase opens (creating if needed) the SQLite database at dsn and
// migrates it. A single connection is used so writers never see
// SQLITE_BUSY.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
