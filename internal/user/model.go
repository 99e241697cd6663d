package user

import (
	"time"

	"second-brain/internal/domain"
	"second-brain/internal/middleware"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a user in the system
type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string
	Email        string `gorm:"uniqueIndex"`
	Password     string `gorm:"-"` // input only, not stored in db
	PasswordHash string
	Role         domain.Role `gorm:"default:user"`
	Provider     string      `gorm:"default:local"`
	GoogleID     *string     `gorm:"uniqueIndex"`
	IsVerified   bool
	IsActive     bool `gorm:"default:true"`
	TokenVersion uint64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// ToDomain drops everything the client must not see.
func (u *User) ToDomain() domain.User {
	return domain.User{
		ID:         u.ID,
		Email:      u.Email,
		Username:   u.Username,
		Role:       u.Role,
		Provider:   u.Provider,
		IsVerified: u.IsVerified,
	}
}

func (u *User) principal() *middleware.Principal {
	return &middleware.Principal{
		ID:           u.ID,
		Role:         u.Role,
		TokenVersion: u.TokenVersion,
		IsActive:     u.IsActive,
	}
}
