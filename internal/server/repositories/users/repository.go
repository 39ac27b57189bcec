// Package users is the credential store: persistence of accounts and of the
// single live refresh token each account may hold.
package users

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository persists users.
//
// Lookups return common.ErrorNotFound for a missing user and Create returns
// common.ErrorConflict for a taken email. SwapRefreshToken returns
// common.ErrRefreshTokenStale when the stored token is not the expected one.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	// UpdateRefreshToken overwrites the stored token; nil clears it.
	UpdateRefreshToken(ctx context.Context, id string, token *string) (*models.User, error)
	// SwapRefreshToken replaces expected with next atomically.
	SwapRefreshToken(ctx context.Context, id, expected, next string) (*models.User, error)
}
