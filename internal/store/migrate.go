package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations for the active backend.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations/"+s.driver)
	if err != nil {
		return fmt.Errorf("load migrations for %s: %w", s.driver, err)
	}

	var drv database.Driver
	switch s.driver {
	case "postgres":
		drv, err = pgmigrate.WithInstance(s.DB, &pgmigrate.Config{})
	case "sqlite":
		drv, err = sqlitemigrate.WithInstance(s.DB, &sqlitemigrate.Config{})
	default:
		return fmt.Errorf("no migrations for driver %s", s.driver)
	}
	if err != nil {
		return fmt.Errorf("migration driver %s: %w", s.driver, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.driver, drv)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	s.logger.Printf("schema up to date (%s)", s.driver)
	return nil
}
