package source

import (
	"fmt"

	"github.com/ugdata/mysql2mongo/internal/conf"
	"github.com/ugdata/mysql2mongo/internal/errors"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MySQLStore implements Reader for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the MySQL database connection.
func (store *MySQLStore) Open() error {
	cfg := store.Settings.Source.MySQL
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeout, cfg.ReadTimeout)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return errors.New(err).
			Component("source").
			Category(errors.CategoryConnection).
			Context("driver", "mysql").
			Context("host", cfg.Host).
			Context("database", cfg.Database).
			Build()
	}

	store.DB = db
	return nil
}

// Close the MySQL database connection.
func (store *MySQLStore) Close() error {
	if store.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve generic DB object: %w", err)
	}
	return sqlDB.Close()
}
