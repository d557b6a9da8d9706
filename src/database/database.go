package database

import (
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/username/wertfolio/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

// InitDB opens the sqlite store. WAL plus a busy timeout keeps the single
// writer responsive while price and FX fills run alongside request handling;
// a single connection sidesteps sqlite's writer locking entirely.
func InitDB(databasePath string) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", databasePath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		stdlog.Fatalf("failed to ping database: %v", err)
	}
	DB = db
	logger.L.Info("Database ready", "path", databasePath, "journal", "WAL")
}

// MigrationsSourceURL resolves where the migration files live: the
// MIGRATIONS_PATH environment variable when set, otherwise the db/migrations
// directory next to the working directory.
func MigrationsSourceURL() (string, error) {
	if p := os.Getenv("MIGRATIONS_PATH"); p != "" {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("invalid MIGRATIONS_PATH %q: %w", p, err)
		}
		return "file://" + filepath.ToSlash(abs), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return "file://" + filepath.ToSlash(filepath.Join(cwd, "db", "migrations")), nil
}

// RunMigrations applies any pending schema migrations against DB.
func RunMigrations(databasePath string) {
	if DB == nil {
		stdlog.Fatal("database connection not initialized before running migrations")
	}

	driver, err := sqlite.WithInstance(DB, &sqlite.Config{})
	if err != nil {
		stdlog.Fatalf("could not create sqlite migration driver: %v", err)
	}

	sourceURL, err := MigrationsSourceURL()
	if err != nil {
		stdlog.Fatalf("could not resolve migrations source: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, databasePath, driver)
	if err != nil {
		stdlog.Fatalf("migration instance creation failed (source %s): %v", sourceURL, err)
	}

	logger.L.Info("Applying database migrations...", "source", sourceURL)
	switch err := m.Up(); {
	case err == nil:
		logger.L.Info("Database migrations applied")
	case errors.Is(err, migrate.ErrNoChange):
		logger.L.Info("Database schema already up to date")
	default:
		stdlog.Fatalf("failed to apply migrations: %v", err)
	}
}
