package db

import (
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsTable keeps this service's schema history apart from any other
// service sharing the database.
const MigrationsTable = "shop_schema_migrations"

// ErrDirtySchema is returned when a previous migration failed halfway and
// the schema needs manual repair before the service may start.
var ErrDirtySchema = errors.New("schema is dirty")

// RunMigrations brings the schema for products, carts and event sequences up
// to date.
func RunMigrations(dsn string, logger *log.Logger) error {
	m, closeFn, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer closeFn()

	if v, dirty, err := m.Version(); err == nil && dirty {
		return fmt.Errorf("%w at version %d", ErrDirtySchema, v)
	}

	before := currentVersion(m)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	after := currentVersion(m)

	if logger != nil {
		if before == after {
			logger.Printf("schema up to date at version %d", after)
		} else {
			logger.Printf("schema migrated from version %d to %d", before, after)
		}
	}
	return nil
}

func newMigrator(dsn string) (*migrate.Migrate, func(), error) {
	database, err := openDB(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open db for migrations: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("migration source: %w", err)
	}

	driver, err := postgres.WithInstance(database, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("migrate instance: %w", err)
	}
	return m, func() { _, _ = m.Close() }, nil
}

// currentVersion returns 0 before the first migration has been applied.
func currentVersion(m *migrate.Migrate) uint {
	v, _, err := m.Version()
	if err != nil {
		return 0
	}
	return v
}
