package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/explab-api/internal/config"
)

// Connect opens a gorm connection for the configured driver.
func Connect(driver, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s dsn must not be empty", driver)
	}

	var dialector gorm.Dialector
	switch driver {
	case config.DatabasePostgres, "":
		dialector = postgres.Open(dsn)
	case config.DatabaseMySQL:
		dialector = mysql.Open(dsn)
	case config.DatabaseSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	return db, nil
}
