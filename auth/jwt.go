package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims are the claims carried by tokens issued by the backend.
type Claims struct {
	UserID       string `json:"user_id"`
	TokenVersion uint64 `json:"token_version"`
	Type         string `json:"typ"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens.
type Signer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewSigner(secret string, accessTTL, refreshTTL time.Duration) *Signer {
	return &Signer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func (s *Signer) GenerateAccessToken(userID string, tokenVersion uint64) (string, error) {
	return s.generate(userID, tokenVersion, TokenTypeAccess, s.accessTTL)
}

func (s *Signer) GenerateRefreshToken(userID string, tokenVersion uint64) (string, error) {
	return s.generate(userID, tokenVersion, TokenTypeRefresh, s.refreshTTL)
}

func (s *Signer) generate(userID string, tokenVersion uint64, typ string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:       userID,
		TokenVersion: tokenVersion,
		Type:         typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID,
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyJWT checks signature and expiry and returns the claims.
func (s *Signer) VerifyJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	jwtToken, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	// isValid
	if !jwtToken.Valid {
		return nil, errors.New("token invalid")
	}

	return claims, nil
}

// VerifyType verifies a token and checks it is of the expected type.
func (s *Signer) VerifyType(tokenString, typ string) (*Claims, error) {
	claims, err := s.VerifyJWT(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("expected %s token, got %q", typ, claims.Type)
	}
	return claims, nil
}

// ExpiresAt decodes the exp claim without verifying the signature. The client
// never holds the signing key; it only needs to know when to refresh.
func ExpiresAt(tokenString string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return exp.Time, nil
}

// Subject decodes the user the token was issued to without verifying the
// signature.
func Subject(tokenString string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return "", err
	}
	if claims.UserID != "" {
		return claims.UserID, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", errors.New("token has no subject")
}

// IsExpired reports whether the token is expired at now. Tokens that cannot
// be decoded count as expired.
func IsExpired(tokenString string, now time.Time) bool {
	exp, err := ExpiresAt(tokenString)
	if err != nil {
		return true
	}
	return !now.Before(exp)
}
