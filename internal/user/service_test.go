package user

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"second-brain/auth"
	"second-brain/internal/domain"
	"second-brain/internal/errors"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, user *User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockRepository) Save(ctx context.Context, user *User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockRepository) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	args := m.Called(ctx, googleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockRepository) FindByID(ctx context.Context, id string) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockRepository) IncrementTokenVersion(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func newTestService(repo UserRepository, google *GoogleClient) (Service, *auth.Signer) {
	signer := auth.NewSigner("test-secret", time.Minute, time.Hour)
	return NewService(repo, signer, google, zerolog.Nop()), signer
}

func hashed(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestService_Register(t *testing.T) {
	repo := new(MockRepository)
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	repo.On("FindByEmail", ctx, "a@b.com").Return(nil, gorm.ErrRecordNotFound).Once()
	repo.On("Create", ctx, mock.AnythingOfType("*user.User")).Return(nil)

	u := &User{Email: "a@b.com", Username: "ann", Password: "secret1"}
	require.NoError(t, svc.Register(ctx, u))
	assert.Empty(t, u.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret1")))
	assert.Equal(t, domain.RoleUser, u.Role)

	repo.On("FindByEmail", ctx, "a@b.com").Return(&User{ID: "u1"}, nil)
	err := svc.Register(ctx, &User{Email: "a@b.com", Password: "secret1"})
	_, msg, ok := errors.FirstFieldError(err)
	require.True(t, ok)
	assert.Equal(t, "Email is already registered", msg)
}

func TestService_Login(t *testing.T) {
	repo := new(MockRepository)
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	repo.On("FindByEmail", ctx, "a@b.com").Return(&User{ID: "u1", PasswordHash: hashed(t, "secret"), IsActive: true}, nil)
	repo.On("FindByEmail", ctx, "ghost@b.com").Return(nil, gorm.ErrRecordNotFound)
	repo.On("FindByEmail", ctx, "off@b.com").Return(&User{ID: "u2", PasswordHash: hashed(t, "secret")}, nil)

	u, err := svc.Login(ctx, "a@b.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	for _, tc := range []struct{ email, pw string }{{"a@b.com", "wrong"}, {"ghost@b.com", "secret"}} {
		_, err := svc.Login(ctx, tc.email, tc.pw)
		assert.True(t, errors.IsKind(err, errors.KindAuth), tc.email)
		assert.Contains(t, err.Error(), errors.MsgInvalidCredentials)
	}

	_, err = svc.Login(ctx, "off@b.com", "secret")
	assert.True(t, errors.IsKind(err, errors.KindAuth))
}

func TestService_RefreshHonoursTokenVersion(t *testing.T) {
	repo := new(MockRepository)
	svc, signer := newTestService(repo, nil)
	ctx := context.Background()

	current := &User{ID: "u1", TokenVersion: 2, IsActive: true}
	repo.On("FindByID", ctx, "u1").Return(current, nil)

	fresh, err := signer.GenerateRefreshToken("u1", 2)
	require.NoError(t, err)
	_, pair, err := svc.Refresh(ctx, fresh)
	require.NoError(t, err)
	claims, err := signer.VerifyType(pair.AccessToken, auth.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), claims.TokenVersion)

	old, err := signer.GenerateRefreshToken("u1", 1)
	require.NoError(t, err)
	_, _, err = svc.Refresh(ctx, old)
	assert.True(t, errors.IsKind(err, errors.KindAuth))

	access, err := signer.GenerateAccessToken("u1", 2)
	require.NoError(t, err)
	_, _, err = svc.Refresh(ctx, access)
	assert.True(t, errors.IsKind(err, errors.KindAuth), "access tokens cannot refresh")
}

func TestService_GoogleNotConfigured(t *testing.T) {
	svc, _ := newTestService(new(MockRepository), nil)

	_, err := svc.GoogleAuthURL("popup")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
	_, err = svc.LoginWithGoogle(context.Background(), "abc")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func fakeGoogle(t *testing.T) *GoogleClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("code") != "good" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"g-token"}`))
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer g-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"gid-1","email":"a@b.com","verified_email":true,"name":"Ann"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	g := NewGoogleClient("client", "secret", "http://localhost:5173/auth/callback")
	g.TokenURL = srv.URL + "/token"
	g.UserInfoURL = srv.URL + "/userinfo"
	return g
}

func TestService_LoginWithGoogle(t *testing.T) {
	ctx := context.Background()

	t.Run("creates user", func(t *testing.T) {
		repo := new(MockRepository)
		svc, _ := newTestService(repo, fakeGoogle(t))
		repo.On("FindByGoogleID", ctx, "gid-1").Return(nil, gorm.ErrRecordNotFound)
		repo.On("FindByEmail", ctx, "a@b.com").Return(nil, gorm.ErrRecordNotFound)
		repo.On("Create", ctx, mock.AnythingOfType("*user.User")).Return(nil)

		u, err := svc.LoginWithGoogle(ctx, "good")
		require.NoError(t, err)
		assert.Equal(t, "google", u.Provider)
		assert.True(t, u.IsVerified)
		require.NotNil(t, u.GoogleID)
		assert.Equal(t, "gid-1", *u.GoogleID)
	})

	t.Run("links existing email", func(t *testing.T) {
		repo := new(MockRepository)
		svc, _ := newTestService(repo, fakeGoogle(t))
		existing := &User{ID: "u1", Email: "a@b.com", IsActive: true}
		repo.On("FindByGoogleID", ctx, "gid-1").Return(nil, gorm.ErrRecordNotFound)
		repo.On("FindByEmail", ctx, "a@b.com").Return(existing, nil)
		repo.On("Save", ctx, existing).Return(nil)

		u, err := svc.LoginWithGoogle(ctx, "good")
		require.NoError(t, err)
		assert.Equal(t, "u1", u.ID)
		repo.AssertCalled(t, "Save", ctx, existing)
	})

	t.Run("bad code", func(t *testing.T) {
		svc, _ := newTestService(new(MockRepository), fakeGoogle(t))
		_, err := svc.LoginWithGoogle(ctx, "bad")
		assert.True(t, errors.IsKind(err, errors.KindAuth))
	})

	t.Run("consent url", func(t *testing.T) {
		svc, _ := newTestService(new(MockRepository), fakeGoogle(t))
		u, err := svc.GoogleAuthURL("popup")
		require.NoError(t, err)
		assert.Contains(t, u, "client_id=client")
		assert.Contains(t, u, "state=popup")
	})
}
