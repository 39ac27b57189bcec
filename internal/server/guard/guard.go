// Package guard authenticates requests by their access token and carries
// the resulting identity in the request context.
package guard

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

const (
	MsgNoToken      = "No token provided, authorization denied"
	MsgInvalidToken = "Invalid access token"
	MsgUnknownUser  = "Token is not valid, authorization denied"
)

// Verifier verifies tokens; *auth.Issuer implements it.
type Verifier interface {
	Verify(token string, kind auth.Kind) (*auth.Claims, error)
}

// UserLookup finds users by id; the credential store implements it.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type Guard struct {
	verifier Verifier
	users    UserLookup
	log      logging.Logger
}

func New(verifier Verifier, users UserLookup, log logging.Logger) *Guard {
	return &Guard{verifier: verifier, users: users, log: log}
}

// TokenFromRequest picks the access token out of the cookie value and the
// Authorization header. The cookie wins; the header must use the Bearer
// scheme.
func TokenFromRequest(cookie, authorization string) string {
	if cookie != "" {
		return cookie
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate verifies an access token and resolves its subject.
func (g *Guard) Authenticate(ctx context.Context, token string) (*models.PublicUser, error) {
	if token == "" {
		return nil, common.NewError(common.ErrorUnauthorized, MsgNoToken)
	}

	claims, err := g.verifier.Verify(token, auth.KindAccess)
	if err != nil {
		g.log.Debug(ctx, "access token rejected", "reason", err.Error())
		return nil, common.NewError(common.ErrorUnauthorized, MsgInvalidToken)
	}

	user, err := g.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NewError(common.ErrorUnauthorized, MsgUnknownUser)
		}
		g.log.Error(ctx, "user lookup failed", "user_id", claims.Subject, "error", err)
		return nil, common.NewError(common.ErrorInternal, "Something went wrong")
	}

	return user.Public(), nil
}

type userContextKey struct{}

// ContextWithUser attaches the authenticated user to ctx.
func ContextWithUser(ctx context.Context, user *models.PublicUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user attached by ContextWithUser.
func UserFromContext(ctx context.Context) (*models.PublicUser, bool) {
	if ctx == nil {
		return nil, false
	}
	u, ok := ctx.Value(userContextKey{}).(*models.PublicUser)
	if !ok || u == nil {
		return nil, false
	}
	return u, true
}
