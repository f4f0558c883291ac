package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"    // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations
var migrationsFS embed.FS

// MigrationConfig holds configuration for database migrations
type MigrationConfig struct {
	// MigrationsPath overrides the embedded migrations with a directory on disk
	MigrationsPath string
	// DatabaseType is either "sqlite" or "postgres"
	DatabaseType string
	// DatabasePath is the path to the SQLite database file (sqlite only)
	DatabasePath string
	// DatabaseURL is the PostgreSQL connection string (postgres only)
	DatabaseURL string
}

// RunMigrations executes all pending database migrations
func RunMigrations(cfg *MigrationConfig) error {
	m, closeDB, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RollbackMigrations rolls back database migrations by the specified number of steps
// If steps is 0, all migrations are rolled back
func RollbackMigrations(cfg *MigrationConfig, steps int) error {
	m, closeDB, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	if steps == 0 {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to rollback all migrations: %w", err)
		}
		return nil
	}

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to rollback %d migration(s): %w", steps, err)
	}
	return nil
}

// GetMigrationVersion returns the current migration version
func GetMigrationVersion(cfg *MigrationConfig) (uint, bool, error) {
	m, closeDB, err := newMigrate(cfg)
	if err != nil {
		return 0, false, err
	}
	defer closeDB()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// newMigrate opens the database and builds a migrate instance over it.
// The returned func closes the database.
func newMigrate(cfg *MigrationConfig) (*migrate.Migrate, func(), error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	closeDB := func() { db.Close() }

	driver, err := createMigrationDriver(db, cfg.DatabaseType)
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	sourceName, sourceInstance, err := openMigrationSource(cfg)
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("failed to open migrations source: %w", err)
	}

	m, err := migrate.NewWithInstance(sourceName, sourceInstance, cfg.DatabaseType, driver)
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, closeDB, nil
}

// openMigrationSource returns the embedded migrations for the database type,
// or the directory at MigrationsPath when one is configured.
func openMigrationSource(cfg *MigrationConfig) (string, source.Driver, error) {
	if cfg.MigrationsPath == "" {
		src, err := iofs.New(migrationsFS, "migrations/"+cfg.DatabaseType)
		if err != nil {
			return "", nil, err
		}
		return "iofs", src, nil
	}

	migrationsPath := cfg.MigrationsPath
	if !filepath.IsAbs(migrationsPath) {
		absPath, err := filepath.Abs(migrationsPath)
		if err != nil {
			return "", nil, fmt.Errorf("failed to resolve migrations path: %w", err)
		}
		migrationsPath = absPath
	}

	src, err := (&file.File{}).Open(fmt.Sprintf("file://%s", migrationsPath))
	if err != nil {
		return "", nil, err
	}
	return "file", src, nil
}

// openDatabase opens a database connection based on the configuration
func openDatabase(cfg *MigrationConfig) (*sql.DB, error) {
	switch cfg.DatabaseType {
	case "sqlite":
		if cfg.DatabasePath == "" {
			return nil, fmt.Errorf("database path is required for SQLite")
		}
		db, err := sql.Open("sqlite", cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		return db, nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL is required for PostgreSQL")
		}
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
		}
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DatabaseType)
	}
}

// createMigrationDriver creates a migration driver for the specified database type
func createMigrationDriver(db *sql.DB, dbType string) (database.Driver, error) {
	switch dbType {
	case "sqlite":
		driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite migration driver: %w", err)
		}
		return driver, nil

	case "postgres":
		driver, err := postgres.WithInstance(db, &postgres.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL migration driver: %w", err)
		}
		return driver, nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
