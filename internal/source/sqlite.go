package source

import (
	"fmt"

	"github.com/ugdata/mysql2mongo/internal/conf"
	"github.com/ugdata/mysql2mongo/internal/errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStore implements Reader for SQLite, used in development and tests.
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the SQLite database connection.
func (store *SQLiteStore) Open() error {
	path := store.Settings.Source.SQLite.Path

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return errors.New(err).
			Component("source").
			Category(errors.CategoryConnection).
			Context("driver", "sqlite").
			Context("path", path).
			Build()
	}

	store.DB = db
	return nil
}

// Close the SQLite database connection.
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve generic DB object: %w", err)
	}
	return sqlDB.Close()
}
