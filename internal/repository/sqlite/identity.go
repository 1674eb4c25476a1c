package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/opensource-hub/internal/apperror"
	"github.com/sakif/opensource-hub/internal/model"
	"github.com/sakif/opensource-hub/internal/repository"
)

var (
	_ repository.IdentityStore          = (*DB)(nil)
	_ repository.OAuthAccountRepository = (*DB)(nil)
	_ repository.IdentityTx             = (*identityTx)(nil)
)

const accountColumns = `id, provider, provider_user_id, access_token_encrypted, iv_encrypt, tag_encrypt, user_id, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }, a *model.OAuthAccount) error {
	return row.Scan(
		&a.ID,
		&a.Provider,
		&a.ProviderUserID,
		&a.TokenCiphertext,
		&a.TokenIV,
		&a.TokenTag,
		&a.UserID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
}

// WithinTx runs fn inside one immediate transaction. See the package doc for
// why BEGIN IMMEDIATE matters here.
func (db *DB) WithinTx(ctx context.Context, fn func(tx repository.IdentityTx) error) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&identityTx{q: tx})
	})
}

// GetOAuthAccountByUser returns the user's account for one provider.
func (db *DB) GetOAuthAccountByUser(ctx context.Context, provider model.Provider, userID string) (*model.OAuthAccount, error) {
	var a model.OAuthAccount
	err := scanAccount(db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM oauth_accounts WHERE provider = ? AND user_id = ?`,
		string(provider), userID,
	), &a)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(string(provider)+" account for user", userID)
		}
		return nil, fmt.Errorf("sqlite: getting %s account of user %s: %w", provider, userID, err)
	}
	return &a, nil
}

// identityTx implements repository.IdentityTx on an open transaction.
type identityTx struct {
	q querier
}

func (t *identityTx) FindAccount(ctx context.Context, provider model.Provider, providerUserID string) (*model.OAuthAccount, error) {
	var a model.OAuthAccount
	err := scanAccount(t.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM oauth_accounts WHERE provider = ? AND provider_user_id = ?`,
		string(provider), providerUserID,
	), &a)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(string(provider)+" account", providerUserID)
		}
		return nil, fmt.Errorf("sqlite: finding %s account %s: %w", provider, providerUserID, err)
	}
	return &a, nil
}

func (t *identityTx) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := scanUser(t.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email,
	), &u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user with email", email)
		}
		return nil, fmt.Errorf("sqlite: finding user by email: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a user and fills in ID and timestamps.
func (t *identityTx) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := t.q.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, name, bio, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Bio,
		user.AvatarURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}
	return nil
}

// CreateAccount inserts an OAuth account and fills in ID and timestamps.
func (t *identityTx) CreateAccount(ctx context.Context, a *model.OAuthAccount) error {
	now := time.Now().UTC()
	a.ID = xid.New().String()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := t.q.ExecContext(ctx,
		`INSERT INTO oauth_accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		string(a.Provider),
		a.ProviderUserID,
		a.TokenCiphertext,
		a.TokenIV,
		a.TokenTag,
		a.UserID,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(string(a.Provider)+" account", a.ProviderUserID)
		}
		return fmt.Errorf("sqlite: inserting %s account %s: %w", a.Provider, a.ProviderUserID, err)
	}
	return nil
}

// UpdateAccountToken replaces the sealed token triple of an existing account.
func (t *identityTx) UpdateAccountToken(ctx context.Context, a *model.OAuthAccount) error {
	a.UpdatedAt = time.Now().UTC()

	res, err := t.q.ExecContext(ctx,
		`UPDATE oauth_accounts
		 SET access_token_encrypted = ?, iv_encrypt = ?, tag_encrypt = ?, updated_at = ?
		 WHERE id = ?`,
		a.TokenCiphertext,
		a.TokenIV,
		a.TokenTag,
		a.UpdatedAt,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating token of account %s: %w", a.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("oauth account", a.ID)
	}
	return nil
}
