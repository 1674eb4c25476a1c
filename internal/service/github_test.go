package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/opensource-hub/internal/apperror"
	"github.com/sakif/opensource-hub/internal/auth"
	"github.com/sakif/opensource-hub/internal/github"
)

func TestListUserRepos(t *testing.T) {
	env := newTestEnv(t)
	userID := env.signUp(t, 10, "ten@example.com")
	env.addRepo(10, 1, "ten", "alpha")
	env.addRepo(10, 2, "ten", "beta")

	repos, err := env.githubSvc.ListUserRepos(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListUserRepos() error = %v", err)
	}

	want := []RepoSummary{
		{Name: "alpha", URL: "https://github.com/ten/alpha"},
		{Name: "beta", URL: "https://github.com/ten/beta"},
	}
	if len(repos) != len(want) {
		t.Fatalf("len(repos) = %d, want %d", len(repos), len(want))
	}
	for i := range want {
		if repos[i] != want[i] {
			t.Errorf("repos[%d] = %+v, want %+v", i, repos[i], want[i])
		}
	}
	if got := env.gh.lastToken(); got != "gho_token_10" {
		t.Errorf("token sent to GitHub = %q, want the decrypted token", got)
	}
}

func TestListUserRepos_Empty(t *testing.T) {
	env := newTestEnv(t)
	userID := env.signUp(t, 10, "ten@example.com")

	repos, err := env.githubSvc.ListUserRepos(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListUserRepos() error = %v", err)
	}
	if repos == nil || len(repos) != 0 {
		t.Errorf("repos = %#v, want empty non-nil slice", repos)
	}
}

func TestListUserRepos_NoAccount(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.githubSvc.ListUserRepos(context.Background(), "nobody")
	wantKind(t, err, apperror.ErrNotFound)
}

func TestListUserRepos_CorruptedCredential(t *testing.T) {
	env := newTestEnv(t)
	userID := env.signUp(t, 10, "ten@example.com")

	// A service holding a different key cannot open the stored token.
	wrongCipher, err := auth.NewCipher(otherKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	svc := NewGitHubService(env.gh, env.db, wrongCipher, testLogger())

	_, err = svc.ListUserRepos(context.Background(), userID)
	wantKind(t, err, apperror.ErrCorruptedCredential)
	if env.gh.lastToken() != "" {
		t.Error("GitHub was called with an unreadable credential")
	}
}

func TestListUserRepos_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	userID := env.signUp(t, 10, "ten@example.com")
	env.gh.errs["ListUserRepos"] = github.ErrTooManyPages

	_, err := env.githubSvc.ListUserRepos(context.Background(), userID)
	wantKind(t, err, apperror.ErrUpstream)
	if !errors.Is(err, github.ErrTooManyPages) {
		t.Errorf("cause lost: %v", err)
	}
}

func TestWrapGitHubErr(t *testing.T) {
	if err := wrapGitHubErr("a/b", github.ErrNotFound); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("ErrNotFound mapped to %v", err)
	}
	apiErr := &github.APIError{StatusCode: 500, Message: "boom"}
	if err := wrapGitHubErr("a/b", apiErr); !errors.Is(err, apperror.ErrUpstream) {
		t.Errorf("APIError mapped to %v", err)
	}
}
