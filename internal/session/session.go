// Package session owns the signed-in user: sign-in and sign-out, the cached
// current user, role checks and the path to resume after signing in.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"second-brain/auth"
	"second-brain/internal/api"
	"second-brain/internal/config"
	"second-brain/internal/domain"
	apperrors "second-brain/internal/errors"
	"second-brain/internal/query"

	"github.com/rs/zerolog"
)

// UserKey addresses the current user in the query cache.
var UserKey = query.Key{"auth", "user"}

// Navigator moves the application to another route or URL.
type Navigator interface {
	Navigate(ctx context.Context, target string)
}

type NavigatorFunc func(ctx context.Context, target string)

func (f NavigatorFunc) Navigate(ctx context.Context, target string) { f(ctx, target) }

type Settings struct {
	SignInPath       string
	UnauthorizedPath string
	UserStaleTime    time.Duration
	PopupTimeout     time.Duration
	PollInterval     time.Duration
	// Origin is the only origin popup messages are accepted from.
	Origin string
}

func DefaultSettings() Settings {
	return Settings{
		SignInPath:       "/auth/signin",
		UnauthorizedPath: "/unauthorized",
		UserStaleTime:    5 * time.Minute,
		PopupTimeout:     10 * time.Minute,
		PollInterval:     500 * time.Millisecond,
	}
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		SignInPath:       cfg.SignInPath,
		UnauthorizedPath: cfg.UnauthorizedPath,
		UserStaleTime:    cfg.UserStaleTime,
		PopupTimeout:     cfg.OAuthPopupTimeout,
		PollInterval:     cfg.OAuthPollInterval,
		Origin:           cfg.FrontendAddress,
	}
}

// Snapshot is the observable session state.
type Snapshot struct {
	User            *domain.User
	IsAuthenticated bool
	HasToken        bool
	IntendedPath    string
	Error           string
	IsLoading       bool
}

type Controller struct {
	api      *api.Client
	tokens   *auth.TokenStore
	cache    *query.Cache
	nav      Navigator
	settings Settings
	log      zerolog.Logger

	mu      sync.Mutex
	lastErr string
	loading int
}

// New wires a controller into client: when the client cannot renew the
// session, the controller clears it and sends the user to sign in.
func New(client *api.Client, tokens *auth.TokenStore, cache *query.Cache, nav Navigator, settings Settings, log zerolog.Logger) *Controller {
	c := &Controller{
		api:      client,
		tokens:   tokens,
		cache:    cache,
		nav:      nav,
		settings: settings,
		log:      log,
	}
	client.OnAuthFailure(c.sessionExpired)
	return c
}

func (c *Controller) authPath(p string) string {
	return c.api.AuthPrefix() + p
}

// Login signs in with email and password. Failures come back as an
// *errors.AppError whose Message is ready to show.
func (c *Controller) Login(ctx context.Context, creds domain.Credentials) (domain.User, error) {
	defer c.busy()()
	var resp domain.AuthResponse
	if err := c.api.Post(ctx, c.authPath("/login"), creds, &resp, api.NoAuth()); err != nil {
		return domain.User{}, c.fail(classify(err))
	}
	return c.signedIn(ctx, resp)
}

func (c *Controller) Register(ctx context.Context, reg domain.Registration) (domain.User, error) {
	defer c.busy()()
	var resp domain.AuthResponse
	if err := c.api.Post(ctx, c.authPath("/register"), reg, &resp, api.NoAuth()); err != nil {
		return domain.User{}, c.fail(classify(err))
	}
	return c.signedIn(ctx, resp)
}

func (c *Controller) signedIn(ctx context.Context, resp domain.AuthResponse) (domain.User, error) {
	if err := c.tokens.SetTokens(ctx, resp.AccessToken, resp.RefreshToken); err != nil {
		return domain.User{}, c.fail(apperrors.Internal(err))
	}
	c.cache.Clear(ctx)
	query.SetQueryData(c.cache, UserKey, resp.User)
	c.setError("")
	c.log.Info().Str("user_id", resp.User.ID).Msg("signed in")
	return resp.User, nil
}

// CurrentUser returns the signed-in user. Concurrent callers share one
// request and a fresh cached user is served without one. Without a stored
// token it fails with an auth error and makes no request.
func (c *Controller) CurrentUser(ctx context.Context) (domain.User, error) {
	user, err := query.Fetch(ctx, c.cache, query.Query[domain.User]{
		Key: UserKey,
		Fn: func(ctx context.Context) (domain.User, error) {
			var out struct {
				User domain.User `json:"user"`
			}
			err := c.api.Get(ctx, c.authPath("/me"), &out)
			return out.User, err
		},
		Options: query.Options{
			StaleTime: c.settings.UserStaleTime,
			Enabled:   func() bool { return c.tokens.HasToken(context.WithoutCancel(ctx)) },
		},
	})
	if errors.Is(err, query.ErrDisabled) {
		return domain.User{}, apperrors.Unauthorized("Not signed in", nil)
	}
	return user, err
}

// RefreshCurrentUser refetches the current user regardless of freshness.
func (c *Controller) RefreshCurrentUser(ctx context.Context) (domain.User, error) {
	c.cache.Invalidate(ctx, UserKey)
	return c.CurrentUser(ctx)
}

// Logout signs out on the backend if it can. The local session is cleared
// and the user sent to sign in whatever the backend answers.
func (c *Controller) Logout(ctx context.Context) {
	c.logout(ctx, "/logout")
}

// LogoutAll revokes every session of the user, then signs out locally.
func (c *Controller) LogoutAll(ctx context.Context) {
	c.logout(ctx, "/logout-all")
}

func (c *Controller) logout(ctx context.Context, endpoint string) {
	refresh, _ := c.tokens.RefreshToken(ctx)
	if c.tokens.HasToken(ctx) {
		body := map[string]string{"refreshToken": refresh}
		if err := c.api.Post(ctx, c.authPath(endpoint), body, nil); err != nil {
			c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("logout request failed, clearing local session anyway")
		}
	}
	c.clear(ctx)
	c.setError("")
	c.nav.Navigate(ctx, c.settings.SignInPath)
}

// sessionExpired runs after the client failed to renew the session.
func (c *Controller) sessionExpired(ctx context.Context) {
	c.log.Info().Msg("session expired")
	c.clear(ctx)
	c.setError(apperrors.MsgSessionExpired)
	c.nav.Navigate(ctx, c.settings.SignInPath)
}

// clear drops cached data before the tokens so the shared entries of the
// ending session are retired too.
func (c *Controller) clear(ctx context.Context) {
	c.cache.Clear(ctx)
	if err := c.tokens.Clear(ctx); err != nil {
		c.log.Error().Err(err).Msg("failed to clear tokens")
	}
}

// Authorize checks that a user with at least min is signed in before path
// is shown. Signed-out users are sent to sign in and path is kept to
// resume afterwards; insufficient roles are sent to the unauthorized route.
func (c *Controller) Authorize(ctx context.Context, path string, min domain.Role) (domain.User, error) {
	if !c.tokens.HasToken(ctx) {
		return domain.User{}, c.requireSignIn(ctx, path, nil)
	}
	user, err := c.CurrentUser(ctx)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindAuth) {
			return domain.User{}, c.requireSignIn(ctx, path, err)
		}
		return domain.User{}, err
	}
	if !user.Role.AtLeast(min) {
		c.nav.Navigate(ctx, c.settings.UnauthorizedPath)
		return user, apperrors.Forbidden(apperrors.MsgForbidden, nil)
	}
	return user, nil
}

func (c *Controller) requireSignIn(ctx context.Context, path string, cause error) error {
	if path != "" {
		if err := c.SetIntendedPath(ctx, path); err != nil {
			c.log.Warn().Err(err).Msg("failed to store intended path")
		}
	}
	c.nav.Navigate(ctx, c.settings.SignInPath)
	return apperrors.Unauthorized("Please sign in to continue", cause)
}

func (c *Controller) SetIntendedPath(ctx context.Context, path string) error {
	return c.tokens.Storage().Set(ctx, auth.KeyIntendedPath, path)
}

func (c *Controller) IntendedPath(ctx context.Context) (string, error) {
	v, _, err := c.tokens.Storage().Get(ctx, auth.KeyIntendedPath)
	return v, err
}

// ConsumeIntendedPath returns the stored path and forgets it.
func (c *Controller) ConsumeIntendedPath(ctx context.Context) (string, error) {
	v, ok, err := c.tokens.Storage().Get(ctx, auth.KeyIntendedPath)
	if err != nil || !ok {
		return "", err
	}
	return v, c.tokens.Storage().Delete(ctx, auth.KeyIntendedPath)
}

func (c *Controller) State(ctx context.Context) Snapshot {
	s := Snapshot{HasToken: c.tokens.HasToken(ctx)}
	if u, ok := query.GetQueryData[domain.User](c.cache, UserKey); ok {
		s.User = &u
		s.IsAuthenticated = s.HasToken
	}
	s.IntendedPath, _ = c.IntendedPath(ctx)

	c.mu.Lock()
	s.Error = c.lastErr
	s.IsLoading = c.loading > 0
	c.mu.Unlock()
	return s
}

func (c *Controller) busy() func() {
	c.mu.Lock()
	c.loading++
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.loading--
		c.mu.Unlock()
	}
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
}

func (c *Controller) fail(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.setError(appErr.Message)
	} else {
		c.setError(apperrors.UserMessage(err))
	}
	return err
}

// classify rewrites a sign-in failure into the message shown for it.
func classify(err error) error {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return err
	}
	switch appErr.Kind {
	case apperrors.KindAuth:
		return appErr.WithMessage(apperrors.MsgInvalidCredentials)
	case apperrors.KindValidation:
		if _, msg, ok := apperrors.FirstFieldError(appErr); ok {
			return appErr.WithMessage(msg)
		}
		return appErr
	}
	return appErr.WithMessage(apperrors.UserMessage(appErr))
}
