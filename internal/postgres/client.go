package postgres

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/renewd/renewd/internal/config"
	"github.com/renewd/renewd/internal/domain/ledger"
	"github.com/renewd/renewd/internal/domain/tenant"
	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/logger"
)

// NewClient opens the database connection and migrates the schema
func NewClient(cfg *config.Configuration, log *logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to connect to postgres").
			Mark(ierr.ErrSystem)
	}

	if err := db.AutoMigrate(&tenant.Tenant{}, &ledger.Entry{}); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to migrate database schema").
			Mark(ierr.ErrSystem)
	}

	log.Infow("connected to postgres")
	return db, nil
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
