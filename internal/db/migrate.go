package db

import (
	"context"
	defError "errors"

	"second-brain/auth"
	"second-brain/internal/schema"
	"second-brain/internal/user"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Migrate creates or updates the tables of the development backend.
func Migrate(db *gorm.DB, log zerolog.Logger) error {
	err := db.AutoMigrate(
		&user.User{},
		&schema.Database{},
		&schema.Property{},
		&schema.View{},
		&schema.Record{},
	)
	if err != nil {
		return err
	}
	log.Info().Msg("database schema migrated")
	return nil
}

// Seed creates a test account for local development.
func Seed(ctx context.Context, db *gorm.DB, signer *auth.Signer, log zerolog.Logger) error {
	repo := user.NewRepository(db)

	testUser := &user.User{
		Username: "Test User",
		Email:    "test@example.com",
		Password: "password123",
		IsActive: true,
	}

	_, err := repo.FindByEmail(ctx, testUser.Email)
	if err == nil {
		log.Info().Str("email", testUser.Email).Msg("test user already exists")
		return nil
	}
	if !defError.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	service := user.NewService(repo, signer, nil, log)
	if err := service.Register(ctx, testUser); err != nil {
		return err
	}
	log.Info().Str("email", testUser.Email).Msg("created test user")
	return nil
}
