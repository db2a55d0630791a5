package database

import (
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ConnectSQLite opens a SQLite store at path, which may also be a
// "file:name?mode=memory" DSN. SQLite allows one writer at a time, so the pool
// is held to a single connection and transactions queue behind each other
// instead of failing with SQLITE_BUSY.
func ConnectSQLite(path string, logger *slog.Logger) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	logger.Info("opened SQLite database", "path", dsn)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
