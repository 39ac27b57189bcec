// Package auth issues and verifies the HS256 access and refresh tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind selects which secret a token is signed and verified with.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims are the registered claims plus the email, which only access tokens
// carry. Every token has a random jti so two tokens minted for the same user
// within the same second still differ.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// IssuerConfig is the immutable token configuration.
type IssuerConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Issuer signs and verifies tokens. It holds no mutable state and is safe
// for concurrent use.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewIssuer validates cfg and returns an Issuer. now may be nil.
func NewIssuer(cfg IssuerConfig, now func() time.Time) (*Issuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, common.ErrMissingTokenSecret
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if now == nil {
		now = time.Now
	}

	return &Issuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           now,
	}, nil
}

// IssueAccess mints an access token for user and returns it with its expiry.
func (i *Issuer) IssueAccess(user *models.User) (string, time.Time, error) {
	return i.sign(i.accessSecret, i.accessTTL, user.ID, user.Email)
}

// IssueRefresh mints a refresh token for user and returns it with its expiry.
func (i *Issuer) IssueRefresh(user *models.User) (string, time.Time, error) {
	return i.sign(i.refreshSecret, i.refreshTTL, user.ID, "")
}

func (i *Issuer) sign(secret []byte, ttl time.Duration, subject, email string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Email: email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, exp, nil
}

// Verify checks signature and expiry of token against the secret of kind.
// Failures are common.ErrTokenExpired, common.ErrTokenBadSignature or
// common.ErrTokenMalformed, all of which match common.ErrInvalidToken.
func (i *Issuer) Verify(token string, kind Kind) (*Claims, error) {
	var secret []byte
	switch kind {
	case KindAccess:
		secret = i.accessSecret
	case KindRefresh:
		secret = i.refreshSecret
	default:
		return nil, common.ErrUnknownTokenKind
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, common.ErrTokenBadSignature
	default:
		return nil, common.ErrTokenMalformed
	}

	if !parsed.Valid || claims.Subject == "" {
		return nil, common.ErrTokenMalformed
	}

	return claims, nil
}
