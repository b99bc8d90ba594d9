package archive

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

func migrateSQLite(dsn string) error {
	return runMigrations("sqlite3", dsn, "migrations/sqlite", func(db *sql.DB) (database.Driver, error) {
		return migratesqlite.WithInstance(db, &migratesqlite.Config{})
	})
}

func migratePostgres(dsn string) error {
	return runMigrations("pgx", dsn, "migrations/postgres", func(db *sql.DB) (database.Driver, error) {
		return migratepgx.WithInstance(db, &migratepgx.Config{})
	})
}

// runMigrations applies embedded migrations on a dedicated connection pool;
// closing the migrator closes that pool too.
func runMigrations(driverName, dsn, dir string, wrap func(*sql.DB) (database.Driver, error)) error {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("archive: open for migration: %w", err)
	}
	dbDriver, err := wrap(db)
	if err != nil {
		db.Close()
		return fmt.Errorf("archive: migration driver: %w", err)
	}
	src, err := iofs.New(migrations, dir)
	if err != nil {
		db.Close()
		return fmt.Errorf("archive: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, driverName, dbDriver)
	if err != nil {
		db.Close()
		return fmt.Errorf("archive: migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("archive: migrate up: %w", err)
	}
	return nil
}
