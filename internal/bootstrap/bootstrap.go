package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"

	"github.com/simonkvalheim/fjord-ledger/internal/repository"
)

// migrationTable records applied migrations
const migrationTable = "ledger_migrations"

// Initialize brings the schema up to date.
// This should be called on server startup after database connection is established
func Initialize(ctx context.Context, db *pgxpool.Pool, log logrus.FieldLogger) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}

	n, err := Migrate(db, migrate.Up)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if n > 0 {
		log.WithField("count", n).Info("applied schema migrations")
	} else {
		log.Debug("schema is up to date")
	}
	return nil
}

// Migrate applies (Up) or rolls back (Down) the embedded migrations and returns how many ran
func Migrate(db *pgxpool.Pool, direction migrate.MigrationDirection) (int, error) {
	source := migrate.EmbedFileSystemMigrationSource{
		FileSystem: repository.Migrations,
		Root:       "migrations",
	}

	sqlDB := stdlib.OpenDBFromPool(db)
	defer sqlDB.Close()

	ms := migrate.MigrationSet{TableName: migrationTable}
	return ms.Exec(sqlDB, "postgres", source, direction)
}
