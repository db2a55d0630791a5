package database

import (
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"sendhelp/internal/config"
	"sendhelp/internal/models"
)

// Connect opens the store selected by cfg.DBDriver and migrates it.
func Connect(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case "postgres":
		return ConnectPostgres(cfg, logger)
	case "sqlite":
		return ConnectSQLite(cfg.SQLitePath, logger)
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
}

func ConnectPostgres(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("connected to PostgreSQL", "host", cfg.DBHost, "database", cfg.DBName)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.MigrateModels...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
