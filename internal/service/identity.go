package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/opensource-hub/internal/apperror"
	"github.com/sakif/opensource-hub/internal/auth"
	"github.com/sakif/opensource-hub/internal/model"
	"github.com/sakif/opensource-hub/internal/repository"
)

// TokenCipher seals provider access tokens for storage and opens them again.
// *auth.Cipher implements it.
type TokenCipher interface {
	Encrypt(plaintext string) (auth.Sealed, error)
	Decrypt(sealed auth.Sealed) (string, error)
}

// Identity is what an OAuth provider tells us about the person signing in.
type Identity struct {
	Provider    model.Provider
	ExternalID  string
	Email       string
	DisplayName string
	AvatarURL   string
	Token       string // provider access token, plaintext
}

// IdentityResolver maps an external identity to exactly one local user.
//
// RESOLUTION ORDER (inside one transaction):
//  1. An account with (provider, externalID) exists → replace its sealed token.
//  2. A user with the same email exists → link a new account to that user.
//  3. Otherwise → create the user (random placeholder password) and account.
//
// CONCURRENT FIRST LOGINS:
// Two callbacks for the same new person can both reach step 3. The database's
// unique constraints let only one insert win; the loser gets ErrConflict,
// rolls back, and runs the whole resolution once more. On the retry step 1 or
// 2 matches, so both callbacks end up with the same user id.
type IdentityResolver struct {
	store     repository.IdentityStore
	cipher    TokenCipher
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewIdentityResolver(
	store repository.IdentityStore,
	cipher TokenCipher,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *IdentityResolver {
	return &IdentityResolver{
		store:     store,
		cipher:    cipher,
		passwords: passwords,
		logger:    logger,
	}
}

// resolution records which branch a transaction took, for logging after
// commit.
type resolution int

const (
	resolvedRotated resolution = iota
	resolvedLinked
	resolvedCreated
)

// Resolve returns the local user id for id, creating or linking rows as
// needed, and stores id.Token sealed on the account.
func (r *IdentityResolver) Resolve(ctx context.Context, id Identity) (string, error) {
	if id.ExternalID == "" {
		return "", apperror.ValidationFailed("externalId", "provider user id is required")
	}
	if id.Email == "" {
		return "", apperror.Rejected(apperror.ReasonNoEmail, "GitHub email not received")
	}

	sealed, err := r.cipher.Encrypt(id.Token)
	if err != nil {
		return "", fmt.Errorf("service/identity: sealing token: %w", err)
	}

	userID, how, err := r.resolveOnce(ctx, id, sealed)
	if errors.Is(err, apperror.ErrConflict) {
		r.logger.Info("identity resolution lost a race, retrying",
			slog.String("provider", string(id.Provider)),
			slog.String("externalId", id.ExternalID),
		)
		userID, how, err = r.resolveOnce(ctx, id, sealed)
	}
	if err != nil {
		return "", fmt.Errorf("service/identity: resolving %s user %s: %w", id.Provider, id.ExternalID, err)
	}

	attrs := []any{
		slog.String("userID", userID),
		slog.String("provider", string(id.Provider)),
	}
	switch how {
	case resolvedRotated:
		// Never log the token itself.
		r.logger.Info(strings.ToLower(string(id.Provider))+" token rotated", attrs...)
	case resolvedLinked:
		r.logger.Info("oauth account linked to existing user", attrs...)
	case resolvedCreated:
		r.logger.Info("user registered", attrs...)
	}

	return userID, nil
}

func (r *IdentityResolver) resolveOnce(ctx context.Context, id Identity, sealed auth.Sealed) (string, resolution, error) {
	var (
		userID string
		how    resolution
	)

	err := r.store.WithinTx(ctx, func(tx repository.IdentityTx) error {
		account, err := tx.FindAccount(ctx, id.Provider, id.ExternalID)
		switch {
		case err == nil:
			account.TokenCiphertext = sealed.Ciphertext
			account.TokenIV = sealed.IV
			account.TokenTag = sealed.Tag
			if err := tx.UpdateAccountToken(ctx, account); err != nil {
				return err
			}
			userID, how = account.UserID, resolvedRotated
			return nil
		case !errors.Is(err, apperror.ErrNotFound):
			return err
		}

		user, err := tx.FindUserByEmail(ctx, id.Email)
		switch {
		case err == nil:
			how = resolvedLinked
		case errors.Is(err, apperror.ErrNotFound):
			hash, err := r.passwords.PlaceholderHash()
			if err != nil {
				return fmt.Errorf("generating placeholder password: %w", err)
			}
			user = &model.User{
				Email:        id.Email,
				PasswordHash: hash,
				Name:         id.DisplayName,
				AvatarURL:    id.AvatarURL,
			}
			if err := tx.CreateUser(ctx, user); err != nil {
				return err
			}
			how = resolvedCreated
		default:
			return err
		}

		if err := tx.CreateAccount(ctx, &model.OAuthAccount{
			Provider:        id.Provider,
			ProviderUserID:  id.ExternalID,
			TokenCiphertext: sealed.Ciphertext,
			TokenIV:         sealed.IV,
			TokenTag:        sealed.Tag,
			UserID:          user.ID,
		}); err != nil {
			return err
		}
		userID = user.ID
		return nil
	})

	return userID, how, err
}
