package client

import (
	"context"
)

// User is the account as returned by the server.
type User struct {
	ID        string
	UserName  string
	Email     string
	Company   string
	Working   []string
	CreatedAt string
	UpdatedAt string
}

// Tokens is the session's token pair.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// TokenStore persists Tokens between client runs.
type TokenStore interface {
	Load(ctx context.Context) (Tokens, error)
	Save(ctx context.Context, t Tokens) error
	Clear(ctx context.Context) error
}

type Client interface {
	Close() error
	Register(ctx context.Context, username, email string, password []byte) (*User, error)
	Login(ctx context.Context, email string, password []byte) (*User, error)
	Me(ctx context.Context) (*User, error)
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	Ping(ctx context.Context) error
}
