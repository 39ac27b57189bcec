// Package users implements the session controller: registration, login,
// refresh token rotation and logout.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	userrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// User-facing messages.
const (
	MsgFieldsRequired       = "All fields are required"
	MsgUserExists           = "User already exists"
	MsgCredentialsRequired  = "Email and password are required"
	MsgUserNotFound         = "User not found"
	MsgIncorrectPassword    = "Incorrect password"
	MsgUnauthorizedRequest  = "Unauthorized request"
	MsgInvalidRefreshToken  = "Invalid refresh token"
	MsgRefreshTokenStale    = "Refresh token is expired or invalid"
	MsgInternal             = "Something went wrong"
	MsgLogoutFailed         = "Logout failed"
	MsgRegistered           = "User registered successfully"
	MsgLoggedIn             = "User logged in successfully"
	MsgLoggedOut            = "User logged out successfully"
	MsgAccessTokenRefreshed = "Access token refreshed successfully"
)

// Hasher is the password hasher used by the service.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(digest, plaintext string) bool
}

// TokenIssuer mints and verifies access and refresh tokens.
type TokenIssuer interface {
	IssueAccess(user *models.User) (string, time.Time, error)
	IssueRefresh(user *models.User) (string, time.Time, error)
	Verify(token string, kind auth.Kind) (*auth.Claims, error)
}

// Observer is told the outcome of every operation.
type Observer interface {
	Observe(op, outcome string)
}

type nopObserver struct{}

func (nopObserver) Observe(string, string) {}

// TokenPair is a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	User *models.PublicUser
	TokenPair
}

type Service struct {
	repo     userrepo.Repository
	hasher   Hasher
	issuer   TokenIssuer
	log      logging.Logger
	observer Observer
}

// Option customizes a Service.
type Option func(*Service)

// WithObserver reports operation outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func NewService(repo userrepo.Repository, hasher Hasher, issuer TokenIssuer, log logging.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		hasher:   hasher,
		issuer:   issuer,
		log:      log,
		observer: nopObserver{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// internal logs err and returns the generic internal error.
func (s *Service) internal(ctx context.Context, op string, err error, args ...any) error {
	s.log.Error(ctx, op+" failed", append(args, "error", err)...)
	return common.NewError(common.ErrorInternal, MsgInternal)
}

func (s *Service) done(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, common.ErrorValidation):
		outcome = "invalid"
	case errors.Is(err, common.ErrorConflict):
		outcome = "conflict"
	case errors.Is(err, common.ErrorNotFound):
		outcome = "not_found"
	case errors.Is(err, common.ErrorUnauthorized):
		outcome = "unauthorized"
	default:
		outcome = "error"
	}
	s.observer.Observe(op, outcome)
}

// Register creates an account. The password is hashed before the user is
// handed to the store; the plaintext is never persisted.
func (s *Service) Register(ctx context.Context, username, email, password string) (_ *models.PublicUser, err error) {
	defer func() { s.done("register", err) }()

	if blank(username) || blank(email) || blank(password) {
		return nil, common.NewError(common.ErrorValidation, MsgFieldsRequired)
	}
	email = models.NormalizeEmail(email)

	_, err = s.repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, common.NewError(common.ErrorConflict, MsgUserExists)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, s.internal(ctx, "register", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, s.internal(ctx, "register", err)
	}

	user, err := s.repo.Create(ctx, &models.User{
		UserName:     strings.TrimSpace(username),
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, common.NewError(common.ErrorConflict, MsgUserExists)
		}
		return nil, s.internal(ctx, "register", err)
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID)
	return user.Public(), nil
}

// Login checks the credentials and starts a new session. The stored refresh
// token is overwritten, which ends any previous session of the account.
func (s *Service) Login(ctx context.Context, email, password string) (_ *LoginResult, err error) {
	defer func() { s.done("login", err) }()

	if blank(email) || password == "" {
		return nil, common.NewError(common.ErrorValidation, MsgCredentialsRequired)
	}

	user, err := s.repo.GetUserByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NewError(common.ErrorNotFound, MsgUserNotFound)
		}
		return nil, s.internal(ctx, "login", err)
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		s.log.Warn(ctx, "login rejected", "user_id", user.ID)
		return nil, common.NewError(common.ErrorUnauthorized, MsgIncorrectPassword)
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, s.internal(ctx, "login", err, "user_id", user.ID)
	}

	stored, err := s.repo.UpdateRefreshToken(ctx, user.ID, &pair.RefreshToken)
	if err != nil {
		return nil, s.internal(ctx, "login", err, "user_id", user.ID)
	}

	s.log.Info(ctx, "user logged in", "user_id", user.ID)
	return &LoginResult{User: stored.Public(), TokenPair: *pair}, nil
}

// Logout clears the stored refresh token of userID. Clearing an already
// empty token is not an error.
func (s *Service) Logout(ctx context.Context, userID string) (err error) {
	defer func() { s.done("logout", err) }()

	if _, err = s.repo.UpdateRefreshToken(ctx, userID, nil); err != nil {
		s.log.Error(ctx, "logout failed", "user_id", userID, "error", err)
		return common.NewError(common.ErrorInternal, MsgLogoutFailed)
	}

	s.log.Info(ctx, "user logged out", "user_id", userID)
	return nil
}

// RefreshToken exchanges a refresh token for a new pair. The presented token
// must be the one currently stored for its subject; the replacement is a
// compare-and-set, so of two concurrent exchanges of the same token only
// one succeeds.
func (s *Service) RefreshToken(ctx context.Context, presented string) (_ *TokenPair, err error) {
	defer func() { s.done("refresh", err) }()

	if presented == "" {
		return nil, common.NewError(common.ErrorUnauthorized, MsgUnauthorizedRequest)
	}

	claims, err := s.issuer.Verify(presented, auth.KindRefresh)
	if err != nil {
		s.log.Debug(ctx, "refresh token rejected", "reason", err.Error())
		return nil, common.NewError(common.ErrorUnauthorized, MsgInvalidRefreshToken)
	}

	user, err := s.repo.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NewError(common.ErrorUnauthorized, MsgInvalidRefreshToken)
		}
		return nil, s.internal(ctx, "refresh", err)
	}

	if user.RefreshToken == nil || *user.RefreshToken != presented {
		s.log.Warn(ctx, "stale refresh token presented", "user_id", user.ID)
		return nil, common.NewError(common.ErrorUnauthorized, MsgRefreshTokenStale)
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, s.internal(ctx, "refresh", err, "user_id", user.ID)
	}

	if _, err := s.repo.SwapRefreshToken(ctx, user.ID, presented, pair.RefreshToken); err != nil {
		if errors.Is(err, common.ErrRefreshTokenStale) || errors.Is(err, common.ErrorNotFound) {
			s.log.Warn(ctx, "refresh token rotated concurrently", "user_id", user.ID)
			return nil, common.NewError(common.ErrorUnauthorized, MsgRefreshTokenStale)
		}
		return nil, s.internal(ctx, "refresh", err, "user_id", user.ID)
	}

	s.log.Info(ctx, "refresh token rotated", "user_id", user.ID)
	return pair, nil
}

func (s *Service) issuePair(user *models.User) (*TokenPair, error) {
	access, accessExp, err := s.issuer.IssueAccess(user)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.issuer.IssueRefresh(user)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}
