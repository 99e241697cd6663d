package user

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"second-brain/internal/domain"
	"second-brain/internal/errors"
	"second-brain/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockService is a mock implementation of the Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) Register(ctx context.Context, user *User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockService) Login(ctx context.Context, email, password string) (*User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockService) GetUserByID(ctx context.Context, id string) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockService) Principal(ctx context.Context, id string) (*middleware.Principal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*middleware.Principal), args.Error(1)
}

func (m *MockService) IncreaseTokenVersion(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockService) IssueTokens(user *User) (domain.TokenPair, error) {
	args := m.Called(user)
	return args.Get(0).(domain.TokenPair), args.Error(1)
}

func (m *MockService) Refresh(ctx context.Context, refreshToken string) (*User, domain.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, domain.TokenPair{}, args.Error(2)
	}
	return args.Get(0).(*User), args.Get(1).(domain.TokenPair), args.Error(2)
}

func (m *MockService) GoogleAuthURL(state string) (string, error) {
	args := m.Called(state)
	return args.String(0), args.Error(1)
}

func (m *MockService) LoginWithGoogle(ctx context.Context, code string) (*User, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

// fakeAuth stands in for the token middleware.
func fakeAuth(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetUser(c, id, domain.RoleUser)
		c.Next()
	}
}

func setupRouter(handler *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandler(zerolog.Nop()))
	handler.RegisterRoutes(router.Group("/auth"), fakeAuth("u1"))
	return router
}

func doJSON(router *gin.Engine, method, path string, payload any) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data    json.RawMessage   `json:"data"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

var testPair = domain.TokenPair{AccessToken: "t1", RefreshToken: "r1"}

func TestLogin_Success(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService, zerolog.Nop()))

	u := &User{ID: "u1", Email: "a@b.com", Username: "ann", Role: domain.RoleUser}
	mockService.On("Login", mock.Anything, "a@b.com", "secret").Return(u, nil)
	mockService.On("IssueTokens", u).Return(testPair, nil)

	w := doJSON(router, http.MethodPost, "/auth/login", FormLogin{Email: "a@b.com", Password: "secret"})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp domain.AuthResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.Equal(t, "t1", resp.AccessToken)
	assert.Equal(t, "r1", resp.RefreshToken)
	assert.Equal(t, "u1", resp.User.ID)
	mockService.AssertExpectations(t)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService, zerolog.Nop()))

	mockService.On("Login", mock.Anything, "a@b.com", "wrong").
		Return(nil, errors.Unauthorized(errors.MsgInvalidCredentials, nil))

	w := doJSON(router, http.MethodPost, "/auth/login", FormLogin{Email: "a@b.com", Password: "wrong"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, errors.MsgInvalidCredentials, decode(t, w).Message)
}

func TestRegister_Success(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService, zerolog.Nop()))

	mockService.On("Register", mock.Anything, mock.MatchedBy(func(u *User) bool {
		return u.Username == "ann" && u.Email == "a@b.com" && u.Password == "secret1"
	})).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*User).ID = "u1"
	})
	mockService.On("IssueTokens", mock.Anything).Return(testPair, nil)

	w := doJSON(router, http.MethodPost, "/auth/register", FormRegister{Username: "ann", Email: "a@b.com", Password: "secret1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	env := decode(t, w)
	assert.Equal(t, "Account created", env.Message)
	var resp domain.AuthResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "u1", resp.User.ID)
	mockService.AssertExpectations(t)
}

func TestRegister_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload FormRegister
		field   string
	}{
		{"invalid email", FormRegister{Username: "ann", Email: "nope", Password: "secret1"}, "email"},
		{"short password", FormRegister{Username: "ann", Email: "a@b.com", Password: "123"}, "password"},
		{"missing username", FormRegister{Email: "a@b.com", Password: "secret1"}, "username"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			router := setupRouter(NewHandler(mockService, zerolog.Nop()))

			w := doJSON(router, http.MethodPost, "/auth/register", tt.payload)

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Contains(t, decode(t, w).Errors, tt.field)
			mockService.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService, zerolog.Nop()))

	mockService.On("Register", mock.Anything, mock.Anything).Return(
		errors.UnprocessableEntity("User already registered", nil).WithField("email", "Email is already registered"))

	w := doJSON(router, http.MethodPost, "/auth/register", FormRegister{Username: "ann", Email: "a@b.com", Password: "secret1"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Email is already registered", decode(t, w).Errors["email"])
}

func TestRefreshToken(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService, zerolog.Nop()))

	mockService.On("Refresh", mock.Anything, "r1").Return(&User{ID: "u1"}, domain.TokenPair{AccessToken: "t2", RefreshToken: "r2"}, nil)
	mockService.On("Refresh", mock.Anything, "stale").Return(nil, nil, errors.Unauthorized("Invalid token!", nil))

	w := doJSON(router, http.MethodPost, "/auth/refresh", FormRefresh{RefreshToken: "r1"})
	assert.Equal(t, http.StatusOK, w.Code)
	var pair domain.TokenPair
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &pair))
	assert.Equal(t, "t2", pair.AccessToken)

	w = doJSON(router, http.MethodPost, "/auth/refresh", FormRefresh{RefreshToken: "stale"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodPost, "/auth/refresh", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetProfile(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService, zerolog.Nop()))

	mockService.On("GetUserByID", mock.Anything, "u1").Return(&User{ID: "u1", Email: "a@b.com", PasswordHash: "x", Role: domain.RoleAdmin}, nil)

	w := doJSON(router, http.MethodGet, "/auth/me", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var out struct {
		User domain.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &out))
	assert.Equal(t, domain.RoleAdmin, out.User.Role)
	assert.NotContains(t, w.Body.String(), "PasswordHash")
}

func TestLogoutAll_BumpsTokenVersion(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService, zerolog.Nop()))

	mockService.On("IncreaseTokenVersion", mock.Anything, "u1").Return(nil)

	w := doJSON(router, http.MethodPost, "/auth/logout-all", map[string]string{"refreshToken": "r1"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/auth/logout", map[string]string{"refreshToken": "r1"})
	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertNumberOfCalls(t, "IncreaseTokenVersion", 1)
}

func TestGoogleURL(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		mockService := new(MockService)
		router := setupRouter(NewHandler(mockService, zerolog.Nop()))
		mockService.On("GoogleAuthURL", "popup").Return("", errors.NotFound(MsgGoogleNotConfigured, nil))

		w := doJSON(router, http.MethodGet, "/auth/google?popup=true&response_type=json", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("json", func(t *testing.T) {
		mockService := new(MockService)
		router := setupRouter(NewHandler(mockService, zerolog.Nop()))
		mockService.On("GoogleAuthURL", "redirect").Return("https://accounts.example/consent", nil)

		w := doJSON(router, http.MethodGet, "/auth/google?response_type=json", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		var out struct {
			URL string `json:"url"`
		}
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &out))
		assert.Equal(t, "https://accounts.example/consent", out.URL)
	})

	t.Run("redirect", func(t *testing.T) {
		mockService := new(MockService)
		router := setupRouter(NewHandler(mockService, zerolog.Nop()))
		mockService.On("GoogleAuthURL", "redirect").Return("https://accounts.example/consent", nil)

		w := doJSON(router, http.MethodGet, "/auth/google", nil)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://accounts.example/consent", w.Header().Get("Location"))
	})
}

func TestGoogleCallback(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService, zerolog.Nop()))

	u := &User{ID: "g1", Provider: "google"}
	mockService.On("LoginWithGoogle", mock.Anything, "abc").Return(u, nil)
	mockService.On("IssueTokens", u).Return(testPair, nil)

	w := doJSON(router, http.MethodPost, "/auth/google/callback", FormGoogleCallback{Code: "abc"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/auth/google/callback", map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
