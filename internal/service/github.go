package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/opensource-hub/internal/apperror"
	"github.com/sakif/opensource-hub/internal/auth"
	"github.com/sakif/opensource-hub/internal/github"
	"github.com/sakif/opensource-hub/internal/model"
	"github.com/sakif/opensource-hub/internal/repository"
)

// GitHubAPI is the subset of *github.Client the services call. Tests
// substitute a fake.
type GitHubAPI interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchUser(ctx context.Context, token string) (*github.User, error)
	ListUserRepos(ctx context.Context, token string) ([]github.Repo, error)
	GetRepo(ctx context.Context, token, owner, name string) (*github.Repo, error)
}

// RepoSummary is one entry of the "pick a repository to submit" list.
type RepoSummary struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// credentials opens the GitHub token stored for a user.
type credentials struct {
	accounts repository.OAuthAccountRepository
	cipher   TokenCipher
}

// githubToken returns the user's GitHub account and decrypted token.
// No linked account is ErrNotFound; a token that fails to decrypt is
// ErrCorruptedCredential, since only a fresh login can repair it.
func (c credentials) githubToken(ctx context.Context, userID string) (*model.OAuthAccount, string, error) {
	account, err := c.accounts.GetOAuthAccountByUser(ctx, model.ProviderGitHub, userID)
	if err != nil {
		return nil, "", err
	}

	token, err := c.cipher.Decrypt(auth.Sealed{
		Ciphertext: account.TokenCiphertext,
		IV:         account.TokenIV,
		Tag:        account.TokenTag,
	})
	if err != nil {
		return nil, "", apperror.CorruptedCredential(err)
	}
	return account, token, nil
}

// GitHubService serves GitHub data on behalf of a signed-in user.
type GitHubService struct {
	github GitHubAPI
	creds  credentials
	logger *slog.Logger
}

func NewGitHubService(
	gh GitHubAPI,
	accounts repository.OAuthAccountRepository,
	cipher TokenCipher,
	logger *slog.Logger,
) *GitHubService {
	return &GitHubService{
		github: gh,
		creds:  credentials{accounts: accounts, cipher: cipher},
		logger: logger,
	}
}

// ListUserRepos returns every repository the user can see on GitHub, in
// GitHub's order, across all pages.
func (s *GitHubService) ListUserRepos(ctx context.Context, userID string) ([]RepoSummary, error) {
	_, token, err := s.creds.githubToken(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrCorruptedCredential) {
			s.logger.Error("stored github token unreadable", slog.String("userID", userID))
		}
		return nil, err
	}

	repos, err := s.github.ListUserRepos(ctx, token)
	if err != nil {
		s.logger.Warn("listing github repositories failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("failed to list GitHub repositories", err)
	}

	out := make([]RepoSummary, 0, len(repos))
	for _, r := range repos {
		out = append(out, RepoSummary{Name: r.Name, URL: r.HTMLURL})
	}
	return out, nil
}

// wrapGitHubErr keeps package github errors out of handler code.
func wrapGitHubErr(what string, err error) error {
	if errors.Is(err, github.ErrNotFound) {
		return apperror.NotFound("GitHub repository", what)
	}
	return apperror.Upstream(fmt.Sprintf("GitHub request for %s failed", what), err)
}
