package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Storage keys shared with the session controller.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyIntendedPath = "intended_path"
)

// TokenStore persists the access/refresh token pair.
type TokenStore struct {
	storage Storage
	now     func() time.Time
}

func NewTokenStore(storage Storage) *TokenStore {
	return &TokenStore{storage: storage, now: time.Now}
}

// Storage exposes the backing store for the other persisted auth keys.
func (t *TokenStore) Storage() Storage {
	return t.storage
}

// AccessToken returns the stored access token, or "" when none is stored.
func (t *TokenStore) AccessToken(ctx context.Context) (string, error) {
	v, _, err := t.storage.Get(ctx, KeyAccessToken)
	return v, err
}

// RefreshToken returns the stored refresh token, or "" when none is stored.
func (t *TokenStore) RefreshToken(ctx context.Context) (string, error) {
	v, _, err := t.storage.Get(ctx, KeyRefreshToken)
	return v, err
}

func (t *TokenStore) SetAccessToken(ctx context.Context, token string) error {
	return t.storage.Set(ctx, KeyAccessToken, token)
}

func (t *TokenStore) SetRefreshToken(ctx context.Context, token string) error {
	return t.storage.Set(ctx, KeyRefreshToken, token)
}

// SetTokens stores both tokens. An empty refresh token keeps the stored one.
func (t *TokenStore) SetTokens(ctx context.Context, access, refresh string) error {
	if err := t.SetAccessToken(ctx, access); err != nil {
		return err
	}
	if refresh == "" {
		return nil
	}
	return t.SetRefreshToken(ctx, refresh)
}

// Clear removes both tokens.
func (t *TokenStore) Clear(ctx context.Context) error {
	return t.storage.Delete(ctx, KeyAccessToken, KeyRefreshToken)
}

// IsExpired is fail-closed: undecodable tokens are expired.
func (t *TokenStore) IsExpired(token string) bool {
	return IsExpired(token, t.now())
}

// HasToken reports whether an access token is stored, expired or not.
func (t *TokenStore) HasToken(ctx context.Context) bool {
	tok, err := t.AccessToken(ctx)
	return err == nil && tok != ""
}

// HasValidAccessToken reports whether a non-expired access token is stored.
func (t *TokenStore) HasValidAccessToken(ctx context.Context) bool {
	tok, err := t.AccessToken(ctx)
	return err == nil && tok != "" && !t.IsExpired(tok)
}

// Scope names the session that owns cached data: the user the stored access
// token was issued to, or a digest of the token when it carries no readable
// subject. It is "" when no token is stored.
func (t *TokenStore) Scope(ctx context.Context) string {
	tok, err := t.AccessToken(ctx)
	if err != nil || tok == "" {
		return ""
	}
	if sub, err := Subject(tok); err == nil {
		return "u:" + sub
	}
	sum := sha256.Sum256([]byte(tok))
	return "t:" + hex.EncodeToString(sum[:8])
}
