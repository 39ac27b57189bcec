package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
)

const userColumns = `id, username, email, password_hash, refresh_token, company_id, working, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var working []byte

	err := row.Scan(&user.ID, &user.UserName, &user.Email, &user.PasswordHash,
		&user.RefreshToken, &user.CompanyID, &working, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if len(working) > 0 {
		if err := json.Unmarshal(working, &user.Working); err != nil {
			return nil, fmt.Errorf("decode working: %w", err)
		}
	}

	return user, nil
}

func encodeWorking(working []string) string {
	if len(working) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(working)
	return string(b)
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO users (id, username, email, password_hash, company_id, working)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING ` + userColumns

	row := r.db.QueryRowContext(ctx, query,
		user.ID, user.UserName, user.Email, user.PasswordHash, user.CompanyID, encodeWorking(user.Working))

	created, err := scanUser(row)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, err
	}

	return created, nil
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE email = $1`

	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE id = $1`

	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) UpdateRefreshToken(ctx context.Context, id string, token *string) (*models.User, error) {
	return updateRefreshToken(ctx, r.db, id, token)
}

func updateRefreshToken(ctx context.Context, db dbx.DBTX, id string, token *string) (*models.User, error) {
	query :=
		`UPDATE users SET refresh_token = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING ` + userColumns

	return scanUser(db.QueryRowContext(ctx, query, id, token))
}

// SwapRefreshToken locks the user row, compares the stored token with
// expected and stores next only when they match. When the repository is
// bound to a *sql.DB the whole exchange runs in its own transaction; when it
// is already bound to a transaction it runs inside that one.
func (r *PostgresRepository) SwapRefreshToken(ctx context.Context, id, expected, next string) (*models.User, error) {
	var user *models.User

	swap := func(ctx context.Context, tx dbx.DBTX) error {
		query :=
			`SELECT refresh_token FROM users
			 WHERE id = $1
			 FOR UPDATE`

		var stored sql.NullString
		if err := tx.QueryRowContext(ctx, query, id).Scan(&stored); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return common.ErrorNotFound
			}
			return fmt.Errorf("db error: %w", err)
		}

		if !stored.Valid || stored.String != expected {
			return common.ErrRefreshTokenStale
		}

		u, err := updateRefreshToken(ctx, tx, id, &next)
		if err != nil {
			return err
		}
		user = u
		return nil
	}

	var err error
	if b, ok := r.db.(dbx.TxBeginner); ok {
		err = dbx.WithTx(ctx, b, nil, swap)
	} else {
		err = swap(ctx, r.db)
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}
