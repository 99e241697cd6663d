package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	apperrors "second-brain/internal/errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// TokenSource provides and renews the credentials attached to requests.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	SetTokens(ctx context.Context, access, refresh string) error
	Clear(ctx context.Context) error
}

// Client is the single HTTP transport to the backend. It attaches the access
// token, unwraps the {data, message, errors} envelope and renews an expired
// session once per request.
type Client struct {
	baseURL      string
	authPrefix   string
	httpClient   *http.Client
	tokens       TokenSource
	log          zerolog.Logger
	refreshGroup singleflight.Group

	mu            sync.RWMutex
	onAuthFailure func(ctx context.Context)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func WithAuthPrefix(prefix string) Option {
	return func(c *Client) { c.authPrefix = prefix }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authPrefix: "/auth",
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		tokens: tokens,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthPrefix is the path prefix of the auth endpoints.
func (c *Client) AuthPrefix() string {
	return c.authPrefix
}

// OnAuthFailure registers the hook run after the session could not be
// renewed. Tokens are already cleared when it runs.
func (c *Client) OnAuthFailure(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthFailure = fn
}

type requestOptions struct {
	noAuth bool
	query  url.Values
}

type RequestOption func(*requestOptions)

// NoAuth sends the request without credentials and without the refresh
// interceptor, for sign-in endpoints where 401 means bad credentials.
func NoAuth() RequestOption {
	return func(o *requestOptions) { o.noAuth = true }
}

// Query adds query parameters to the request.
func Query(v url.Values) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		for k, vals := range v {
			for _, val := range vals {
				o.query.Add(k, val)
			}
		}
	}
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
}

type response struct {
	status int
	body   []byte
	token  string
}

func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, opts...)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, path, body, out, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do sends one request and decodes the envelope data into out. A 401 on an
// authenticated request triggers at most one refresh and one replay.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	resp, err := c.send(ctx, method, path, payload, o)
	if err != nil {
		return err
	}

	if resp.status == http.StatusUnauthorized && !o.noAuth {
		if err := c.renew(ctx, resp.token); err != nil {
			c.authFailed(ctx)
			return apperrors.Unauthorized(apperrors.MsgSessionExpired, err)
		}

		resp, err = c.send(ctx, method, path, payload, o)
		if err != nil {
			return err
		}
		if resp.status == http.StatusUnauthorized {
			// the replay is final, a second refresh would loop
			c.authFailed(ctx)
			return decodeError(resp)
		}
	}

	return decode(resp, out)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, o requestOptions) (*response, error) {
	u := c.baseURL + path
	if len(o.query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		u += sep + o.query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var token string
	if !o.noAuth && c.tokens != nil {
		token, err = c.tokens.AccessToken(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("read access token")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Network(err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Network(err)
	}

	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("api request")
	return &response{status: resp.StatusCode, body: b, token: token}, nil
}

// renew obtains a new access token. Concurrent callers share one refresh
// call; a caller whose request used an already replaced token skips it.
func (c *Client) renew(ctx context.Context, usedToken string) error {
	if c.tokens == nil {
		return apperrors.Unauthorized("no credentials", nil)
	}
	if current, err := c.tokens.AccessToken(ctx); err == nil && current != "" && current != usedToken {
		return nil
	}

	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return nil, c.refresh(context.WithoutCancel(ctx))
	})
	return err
}

func (c *Client) refresh(ctx context.Context) error {
	refreshToken, err := c.tokens.RefreshToken(ctx)
	if err != nil {
		return err
	}
	if refreshToken == "" {
		return apperrors.Unauthorized("no refresh token", nil)
	}

	var pair struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	body := map[string]string{"refreshToken": refreshToken}
	if err := c.Do(ctx, http.MethodPost, c.authPrefix+"/refresh", body, &pair, NoAuth()); err != nil {
		return err
	}
	if pair.AccessToken == "" {
		return apperrors.Unauthorized("refresh returned no token", nil)
	}

	c.log.Debug().Msg("access token refreshed")
	return c.tokens.SetTokens(ctx, pair.AccessToken, pair.RefreshToken)
}

func (c *Client) authFailed(ctx context.Context) {
	if c.tokens != nil {
		if err := c.tokens.Clear(ctx); err != nil {
			c.log.Warn().Err(err).Msg("clear tokens")
		}
	}
	c.mu.RLock()
	hook := c.onAuthFailure
	c.mu.RUnlock()
	if hook != nil {
		hook(ctx)
	}
}

func decode(resp *response, out any) error {
	if resp.status < 200 || resp.status >= 300 {
		return decodeError(resp)
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func decodeError(resp *response) error {
	var env envelope
	// a non-JSON error page still classifies by status
	_ = json.Unmarshal(resp.body, &env)
	return apperrors.FromResponse(resp.status, env.Message, decodeFieldErrors(env.Errors))
}

// decodeFieldErrors accepts {"field": "msg"} and {"field": ["msg", ...]}.
func decodeFieldErrors(raw json.RawMessage) map[string]string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var single map[string]string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var multi map[string][]string
	if err := json.Unmarshal(raw, &multi); err == nil {
		out := make(map[string]string, len(multi))
		for k, v := range multi {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}
		return out
	}
	return nil
}
