package session

import (
	"context"
	"net/url"
	"strconv"

	"second-brain/internal/api"
	"second-brain/internal/domain"
	apperrors "second-brain/internal/errors"
)

const MsgGoogleUnavailable = "Google sign-in is not available"

// GoogleAuthURL asks the backend for the Google consent URL. A backend
// without Google configured answers 404, reported as MsgGoogleUnavailable.
func (c *Controller) GoogleAuthURL(ctx context.Context, popup bool) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	params := url.Values{
		"popup":         {strconv.FormatBool(popup)},
		"response_type": {"json"},
	}
	err := c.api.Get(ctx, c.authPath("/google"), &out, api.NoAuth(), api.Query(params))
	if apperrors.IsKind(err, apperrors.KindNotFound) {
		return "", c.fail(apperrors.NotFound(MsgGoogleUnavailable, err))
	}
	if err != nil {
		return "", c.fail(classify(err))
	}
	if out.URL == "" {
		return "", c.fail(apperrors.NotFound(MsgGoogleUnavailable, nil))
	}
	return out.URL, nil
}

// LoginWithGoogle leaves the application for the consent page. The flow
// resumes in HandleOAuthCallback.
func (c *Controller) LoginWithGoogle(ctx context.Context) error {
	target, err := c.GoogleAuthURL(ctx, false)
	if err != nil {
		return err
	}
	c.nav.Navigate(ctx, target)
	return nil
}

// HandleOAuthCallback finishes a redirect sign-in from the URL the provider
// returned to. Tokens may arrive in the query or the fragment; an
// authorization code is exchanged with the backend.
func (c *Controller) HandleOAuthCallback(ctx context.Context, returnURL string) (domain.User, error) {
	defer c.busy()()

	u, err := url.Parse(returnURL)
	if err != nil {
		return domain.User{}, c.fail(apperrors.Validation("Invalid sign-in response", nil))
	}
	params := u.Query()
	if frag, err := url.ParseQuery(u.Fragment); err == nil {
		for k, v := range frag {
			if params.Get(k) == "" {
				params[k] = v
			}
		}
	}

	if msg := params.Get("error"); msg != "" {
		if desc := params.Get("error_description"); desc != "" {
			msg = desc
		}
		return domain.User{}, c.fail(apperrors.Unauthorized(msg, nil))
	}

	access := first(params, "accessToken", "access_token")
	refresh := first(params, "refreshToken", "refresh_token")
	if access != "" {
		return c.signedInWithTokens(ctx, access, refresh)
	}

	code := params.Get("code")
	if code == "" {
		return domain.User{}, c.fail(apperrors.Validation("Missing authorization code", nil))
	}
	var resp domain.AuthResponse
	body := map[string]string{"code": code}
	if err := c.api.Post(ctx, c.authPath("/google/callback"), body, &resp, api.NoAuth()); err != nil {
		return domain.User{}, c.fail(classify(err))
	}
	return c.signedIn(ctx, resp)
}

// LoginWithGooglePopup runs the consent page in a popup and waits for it
// to post the tokens back.
func (c *Controller) LoginWithGooglePopup(ctx context.Context, opener Opener) (domain.User, error) {
	defer c.busy()()

	target, err := c.GoogleAuthURL(ctx, true)
	if err != nil {
		return domain.User{}, err
	}
	popup, err := opener.Open(ctx, target)
	if err != nil {
		return domain.User{}, c.fail(apperrors.BadRequest("Could not open the sign-in window", err))
	}
	msg, err := AwaitPopup(ctx, popup, c.settings.Origin, c.settings.PopupTimeout, c.settings.PollInterval)
	if err != nil {
		return domain.User{}, c.fail(err)
	}
	return c.signedInWithTokens(ctx, msg.AccessToken, msg.RefreshToken)
}

func (c *Controller) signedInWithTokens(ctx context.Context, access, refresh string) (domain.User, error) {
	if err := c.tokens.SetTokens(ctx, access, refresh); err != nil {
		return domain.User{}, c.fail(apperrors.Internal(err))
	}
	c.cache.Clear(ctx)
	user, err := c.CurrentUser(ctx)
	if err != nil {
		return domain.User{}, c.fail(err)
	}
	c.setError("")
	return user, nil
}

func first(v url.Values, keys ...string) string {
	for _, k := range keys {
		if s := v.Get(k); s != "" {
			return s
		}
	}
	return ""
}
