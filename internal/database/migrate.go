package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/database/migrations"
)

// NewMigrator builds a migrate instance over the embedded migrations for the
// given dialect.
func NewMigrator(db *sql.DB, dialect Dialect) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, string(dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}

	var m *migrate.Migrate
	switch dialect {
	case MySQL:
		driver, derr := migratemysql.WithInstance(db, &migratemysql.Config{})
		if derr != nil {
			return nil, fmt.Errorf("failed to create migration driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "mysql", driver)
	case SQLite:
		driver, derr := migratesqlite.WithInstance(db, &migratesqlite.Config{})
		if derr != nil {
			return nil, fmt.Errorf("failed to create migration driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", driver)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration. An up-to-date schema is not an
// error.
func MigrateUp(db *sql.DB, dialect Dialect) error {
	m, err := NewMigrator(db, dialect)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
