package config

import (
	"fmt"
	"time"

	"boleto-import-backend/db/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// allModels defines all models that should be migrated
// This is the only place you need to add new models
var allModels = []interface{}{
	&models.Company{},
	&models.Import{},
	&models.ImportRow{},
	&models.Transaction{},
}

// DatabaseDSN builds the Postgres DSN from the DB_* and POSTGRES_* variables
func DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		GetEnvDefault("DB_HOST", "localhost"),
		GetEnvDefault("POSTGRES_USER", "postgres"),
		GetEnv("POSTGRES_PASSWORD"),
		GetEnvDefault("POSTGRES_DB", "boleto_import"),
		GetEnvDefault("DB_PORT", "5432"),
		GetEnvDefault("DB_SSLMODE", "disable"),
		GetEnvDefault("DB_TIMEZONE", "America/Sao_Paulo"),
	)
}

func ConfigureDatabase() (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(DatabaseDSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying DB connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(30)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	Logger.Info("Database setup complete", zap.Int("max_open_conns", 30))
	return db, nil
}

// Migrate auto-migrates every model in allModels
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels...); err != nil {
		return fmt.Errorf("migrate tables: %w", err)
	}
	Logger.Info("Tables migrated successfully", zap.Int("models", len(allModels)))
	return nil
}
