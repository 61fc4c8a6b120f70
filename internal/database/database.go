package database

import (
	"fmt"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"github.com/willsmith28/Cookbook/internal/mealplans"
	"github.com/willsmith28/Cookbook/internal/recipes"
	"github.com/willsmith28/Cookbook/internal/users"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures the database backend.
type Options struct {
	Driver string
	// Path is the sqlite file. ":memory:" is accepted for tests.
	Path string
	// DSN is the postgres connection string.
	DSN string
}

// Open connects to the configured backend and brings the schema up to date.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, target, err := dialectorFor(options)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", options.Driver, err)
	}

	if normalizedDriver(options.Driver) == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("database: enable foreign keys: %w", err)
		}
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized",
		zap.String("driver", normalizedDriver(options.Driver)),
		zap.String("target", target))
	return db, nil
}

// Migrate creates or updates every table and applies pending named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("database: auto migrate: %w", err)
	}
	return applyMigrations(db, logger)
}

// Models lists every table of the service in creation order.
func Models() []interface{} {
	models := append([]interface{}{}, users.Models()...)
	models = append(models, recipes.Models()...)
	models = append(models, mealplans.Models()...)
	return append(models, &migrationRecord{})
}

func normalizedDriver(driver string) string {
	normalized := strings.ToLower(strings.TrimSpace(driver))
	if normalized == "" {
		return DriverSQLite
	}
	return normalized
}

func dialectorFor(options Options) (gorm.Dialector, string, error) {
	switch normalizedDriver(options.Driver) {
	case DriverSQLite:
		if strings.TrimSpace(options.Path) == "" {
			return nil, "", fmt.Errorf("database path is required")
		}
		return sqlite.Open(options.Path), options.Path, nil
	case DriverPostgres:
		if strings.TrimSpace(options.DSN) == "" {
			return nil, "", fmt.Errorf("database dsn is required")
		}
		return postgres.Open(options.DSN), "postgres", nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", options.Driver)
	}
}
