package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/client/migrations"
	"github.com/dmitrijs2005/authkeeper/internal/client/repositories/session"
	"github.com/dmitrijs2005/authkeeper/internal/filex"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
)

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// OpenSessionDB opens (creating if needed) the SQLite file at path and
// applies the session migrations.
func OpenSessionDB(ctx context.Context, path string) (*sql.DB, error) {
	path, err := filex.EnsureParentDir(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SessionStore is a TokenStore backed by the session repository.
type SessionStore struct {
	repo session.Repository
}

func NewSessionStore(repo session.Repository) *SessionStore {
	return &SessionStore{repo: repo}
}

func (s *SessionStore) Load(ctx context.Context) (Tokens, error) {
	values, err := s.repo.Load(ctx)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{AccessToken: values[keyAccessToken], RefreshToken: values[keyRefreshToken]}, nil
}

func (s *SessionStore) Save(ctx context.Context, t Tokens) error {
	return s.repo.Save(ctx, map[string]string{
		keyAccessToken:  t.AccessToken,
		keyRefreshToken: t.RefreshToken,
	})
}

func (s *SessionStore) Clear(ctx context.Context) error {
	return s.repo.Clear(ctx)
}
