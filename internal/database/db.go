package database

import (
	"fmt"
	"log/slog"
	"time"

	"go-pos-sync/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const connectAttempts = 5

// Dialector picks the GORM driver for DB_DRIVER.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql", "":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (allowed: mysql, postgres, sqlite)", driver)
	}
}

// Connect opens the authoritative database, retrying while it comes up,
// and migrates the schema.
func Connect(driver, dsn string, logMode logger.LogLevel) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DB_DSN not set, please configure your database")
	}
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	var db *gorm.DB
	for i := 0; i < connectAttempts; i++ {
		db, err = gorm.Open(dialector, &gorm.Config{
			Logger: logger.Default.LogMode(logMode),
		})
		if err == nil {
			break
		}
		slog.Warn("database not ready, retrying in 2 seconds", "attempt", i+1, "of", connectAttempts, "err", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s after %d attempts: %w", driver, connectAttempts, err)
	}
	slog.Info("connected to database", "driver", driver)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the authoritative collections.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Product{},
		&models.User{},
		&models.Expense{},
		&models.CreditCustomer{},
		&models.Transaction{},
		&models.BusinessConfig{},
		&models.AppliedEntry{},
	)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	slog.Info("database schema synced")
	return nil
}

// OpenSQLite opens (and migrates) a SQLite file. Used by tests and
// single-machine installs.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
