package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"neighborsos/internal/config"
	"neighborsos/internal/util"
)

// PostgresClient owns the relational store connection. All marketplace
// tables (charities, urgent_needs, adopt_a_family, family_adoptions,
// early_access, admins, success_stories, email_signups) live here.
type PostgresClient struct {
	DB     *gorm.DB
	config *config.DatabaseConfig
}

func NewPostgresClient(cfg *config.Config, logger *zap.Logger) (*PostgresClient, error) {
	dbConfig := cfg.Database

	logMode := gormlogger.Warn
	if cfg.IsDevelopment() {
		logMode = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(dbConfig.DSN), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logMode),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	util.Info("Postgres client initialized")

	return &PostgresClient{DB: db, config: &dbConfig}, nil
}

// AutoMigrate keeps the schema aligned with the registered models.
func (p *PostgresClient) AutoMigrate(models ...interface{}) error {
	if err := p.DB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (p *PostgresClient) HealthCheck(ctx context.Context) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql.DB handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (p *PostgresClient) Close() error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		util.Error("failed to close postgres connection", zap.Error(err))
		return err
	}
	util.Info("Postgres connection closed")
	return nil
}
