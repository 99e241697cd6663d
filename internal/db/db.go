package db

import (
	"fmt"
	stdlog "log"
	"time"

	"second-brain/internal/config"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the postgres database of the development backend. SQL is
// logged through the process logger.
func Connect(cfg config.Config, log zerolog.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v sslmode=disable",
		cfg.DBHost,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		cfg.DBPort,
	)

	level := logger.Info
	if cfg.IsProduction() {
		level = logger.Error
	}
	sqlLogger := logger.New(
		stdlog.New(log.With().Str("component", "gorm").Logger(), "", 0),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      level,
			Colorful:      !cfg.IsProduction(),
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: sqlLogger})
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	log.Info().Str("host", cfg.DBHost).Str("name", cfg.DBName).Msg("connected to db")
	return db, nil
}

func Close(db *gorm.DB, log zerolog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Error().Err(err).Msg("failed to get db handle")
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close db")
		return
	}
	log.Info().Msg("db closed")
}
