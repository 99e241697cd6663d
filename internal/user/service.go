package user

import (
	"context"
	defError "errors"

	"second-brain/auth"
	"second-brain/internal/domain"
	"second-brain/internal/errors"
	"second-brain/internal/middleware"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const MsgGoogleNotConfigured = "Google sign-in is not configured"

// Service defines the interface for user business logic
type Service interface {
	Register(ctx context.Context, user *User) error
	Login(ctx context.Context, email, password string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	Principal(ctx context.Context, id string) (*middleware.Principal, error)
	IncreaseTokenVersion(ctx context.Context, id string) error
	IssueTokens(user *User) (domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*User, domain.TokenPair, error)
	GoogleAuthURL(state string) (string, error)
	LoginWithGoogle(ctx context.Context, code string) (*User, error)
}

// DefaultService implements Service
type DefaultService struct {
	repository UserRepository
	signer     *auth.Signer
	google     *GoogleClient
	log        zerolog.Logger
}

// NewService creates a new user service. google may be nil, which turns the
// Google endpoints into 404s.
func NewService(repository UserRepository, signer *auth.Signer, google *GoogleClient, log zerolog.Logger) Service {
	return &DefaultService{repository: repository, signer: signer, google: google, log: log}
}

// Register registers a new user
func (s *DefaultService) Register(ctx context.Context, user *User) error {
	_, err := s.repository.FindByEmail(ctx, user.Email)
	if err != nil && !defError.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err == nil {
		return errors.UnprocessableEntity("User already registered", nil).
			WithField("email", "Email is already registered")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.UnprocessableEntity("Invalid password", err)
	}
	user.PasswordHash = string(hashedPassword)
	user.Password = ""
	user.IsActive = true
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if user.Provider == "" {
		user.Provider = "local"
	}

	return s.repository.Create(ctx, user)
}

// Login authenticates a user. Unknown email and wrong password look the same
// to the caller.
func (s *DefaultService) Login(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repository.FindByEmail(ctx, email)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Unauthorized(errors.MsgInvalidCredentials, err)
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, errors.Unauthorized("User is not active", nil)
	}

	if user.PasswordHash == "" {
		return nil, errors.Unauthorized(errors.MsgInvalidCredentials, nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.Unauthorized(errors.MsgInvalidCredentials, err)
	}

	return user, nil
}

func (s *DefaultService) GetUserByID(ctx context.Context, id string) (*User, error) {
	user, err := s.repository.FindByID(ctx, id)
	if defError.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound("User not found", err)
	}
	return user, err
}

func (s *DefaultService) Principal(ctx context.Context, id string) (*middleware.Principal, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.principal(), nil
}

func (s *DefaultService) IncreaseTokenVersion(ctx context.Context, id string) error {
	return s.repository.IncrementTokenVersion(ctx, id)
}

func (s *DefaultService) IssueTokens(user *User) (domain.TokenPair, error) {
	access, err := s.signer.GenerateAccessToken(user.ID, user.TokenVersion)
	if err != nil {
		return domain.TokenPair{}, errors.Internal(err)
	}
	refresh, err := s.signer.GenerateRefreshToken(user.ID, user.TokenVersion)
	if err != nil {
		return domain.TokenPair{}, errors.Internal(err)
	}
	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh rotates both tokens. A refresh token issued before the last
// logout-all is rejected.
func (s *DefaultService) Refresh(ctx context.Context, refreshToken string) (*User, domain.TokenPair, error) {
	claims, err := s.signer.VerifyType(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return nil, domain.TokenPair{}, errors.Unauthorized("Invalid token or expired!", err)
	}

	user, err := s.repository.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, domain.TokenPair{}, errors.Unauthorized("User not found", err)
	}
	if !user.IsActive || user.TokenVersion != claims.TokenVersion {
		return nil, domain.TokenPair{}, errors.Unauthorized("Invalid token!", nil)
	}

	pair, err := s.IssueTokens(user)
	return user, pair, err
}

func (s *DefaultService) GoogleAuthURL(state string) (string, error) {
	if s.google == nil {
		return "", errors.NotFound(MsgGoogleNotConfigured, nil)
	}
	return s.google.ConsentURL(state), nil
}

// LoginWithGoogle exchanges the code and finds, links or creates the user.
func (s *DefaultService) LoginWithGoogle(ctx context.Context, code string) (*User, error) {
	if s.google == nil {
		return nil, errors.NotFound(MsgGoogleNotConfigured, nil)
	}
	profile, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Unauthorized("Google sign-in failed", err)
	}

	user, err := s.repository.FindByGoogleID(ctx, profile.ID)
	if err == nil {
		return s.activeOrReject(user)
	}
	if !defError.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user, err = s.repository.FindByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		user.GoogleID = &profile.ID
		user.IsVerified = user.IsVerified || profile.VerifiedEmail
		if err := s.repository.Save(ctx, user); err != nil {
			return nil, err
		}
		s.log.Info().Str("user_id", user.ID).Msg("linked google account")
		return s.activeOrReject(user)
	case !defError.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	user = &User{
		Email:      profile.Email,
		Username:   profile.Name,
		Role:       domain.RoleUser,
		Provider:   "google",
		GoogleID:   &profile.ID,
		IsVerified: profile.VerifiedEmail,
		IsActive:   true,
	}
	if err := s.repository.Create(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", user.ID).Msg("created google user")
	return user, nil
}

func (s *DefaultService) activeOrReject(user *User) (*User, error) {
	if !user.IsActive {
		return nil, errors.Unauthorized("User is not active", nil)
	}
	return user, nil
}
