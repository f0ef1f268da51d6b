package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parkir-status-backend/config"
	"parkir-status-backend/internal/model"
)

// Init opens the database, sizes the connection pool and runs migrations.
func Init(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Info("running database migrations")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.Seed {
		if err := Seed(db); err != nil {
			log.Warn("failed to seed locations", zap.Error(err))
		}
	}

	log.Info("database initialization complete", zap.String("driver", cfg.Driver))
	return db, nil
}

// Migrate creates or updates the tables used by the service.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Location{},
		&model.Report{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

// Seed inserts a starter set of locations when the table is empty.
func Seed(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.Location{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	locations := []model.Location{
		{Name: "Parkir Gedung A", Capacity: 120, Status: model.StatusEmpty, Latitude: -7.9525, Longitude: 112.6141, UpdatedAt: now},
		{Name: "Parkir Perpustakaan", Capacity: 80, Status: model.StatusEmpty, Latitude: -7.9530, Longitude: 112.6132, UpdatedAt: now},
		{Name: "Parkir Rektorat", Capacity: 60, Status: model.StatusEmpty, Latitude: -7.9521, Longitude: 112.6150, UpdatedAt: now},
	}
	return db.Create(&locations).Error
}
