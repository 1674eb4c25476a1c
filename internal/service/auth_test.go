package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/opensource-hub/internal/apperror"
	"github.com/sakif/opensource-hub/internal/auth"
	"github.com/sakif/opensource-hub/internal/github"
	"github.com/sakif/opensource-hub/internal/model"
	"github.com/sakif/opensource-hub/internal/repository"
)

func validState(t *testing.T) (auth.State, string) {
	t.Helper()
	s := auth.NewState("/projects/new")
	raw, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return s, raw
}

func wantReason(t *testing.T, err error, reason string) {
	t.Helper()
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrRejected) {
		t.Fatalf("error = %v, want a rejection", err)
	}
	if appErr.Code != reason {
		t.Errorf("reason = %q, want %q", appErr.Code, reason)
	}
}

// assertNoIdentityRows checks that nothing was written for the given email
// or GitHub id.
func assertNoIdentityRows(t *testing.T, env *testEnv, email, externalID string) {
	t.Helper()
	err := env.db.WithinTx(context.Background(), func(tx repository.IdentityTx) error {
		if _, err := tx.FindUserByEmail(context.Background(), email); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("FindUserByEmail(%q) error = %v, want ErrNotFound", email, err)
		}
		if _, err := tx.FindAccount(context.Background(), model.ProviderGitHub, externalID); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("FindAccount(%q) error = %v, want ErrNotFound", externalID, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx() error = %v", err)
	}
}

// =========================================================================
// CALLBACK TESTS
// =========================================================================

func TestCompleteGitHubLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	env.gh.addUser("code-1", "gho_abc", &github.User{
		ID: 42, Login: "octocat", Email: strPtr("octo@example.com"), AvatarURL: "https://a.example.com/42",
	})
	state, raw := validState(t)

	res, err := env.auth.CompleteGitHubLogin(context.Background(), "code-1", raw)
	if err != nil {
		t.Fatalf("CompleteGitHubLogin() error = %v", err)
	}

	if res.State != state {
		t.Errorf("State = %+v, want %+v", res.State, state)
	}
	if got, err := env.tokens.VerifyAccess(res.AccessToken); err != nil || got != res.UserID {
		t.Errorf("VerifyAccess() = %q, %v; want %q", got, err, res.UserID)
	}
	if got, err := env.tokens.VerifyRefresh(res.RefreshToken); err != nil || got != res.UserID {
		t.Errorf("VerifyRefresh() = %q, %v; want %q", got, err, res.UserID)
	}

	user, err := env.db.GetUserByID(context.Background(), res.UserID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Name != "octocat" {
		t.Errorf("Name = %q, want login fallback %q", user.Name, "octocat")
	}
}

func TestCompleteGitHubLogin_SecondLoginSameUser(t *testing.T) {
	env := newTestEnv(t)
	env.gh.addUser("code-1", "gho_one", &github.User{ID: 42, Login: "octocat", Email: strPtr("octo@example.com")})
	env.gh.addUser("code-2", "gho_two", &github.User{ID: 42, Login: "octocat", Email: strPtr("octo@example.com")})
	_, raw := validState(t)

	first, err := env.auth.CompleteGitHubLogin(context.Background(), "code-1", raw)
	if err != nil {
		t.Fatalf("first login error = %v", err)
	}
	second, err := env.auth.CompleteGitHubLogin(context.Background(), "code-2", raw)
	if err != nil {
		t.Fatalf("second login error = %v", err)
	}
	if first.UserID != second.UserID {
		t.Errorf("user ids differ: %q vs %q", first.UserID, second.UserID)
	}

	// The stored token is the latest one.
	if _, err := env.githubSvc.ListUserRepos(context.Background(), second.UserID); err != nil {
		t.Fatalf("ListUserRepos() error = %v", err)
	}
	if got := env.gh.lastToken(); got != "gho_two" {
		t.Errorf("token used = %q, want gho_two", got)
	}
}

func TestCompleteGitHubLogin_Rejections(t *testing.T) {
	_, raw := validState(t)

	tests := []struct {
		name       string
		setup      func(gh *fakeGitHub)
		code       string
		state      string
		wantReason string
		wantKind   error
	}{
		{
			name:       "undecodable state",
			code:       "code-1",
			state:      "!!not-base64!!",
			wantReason: apperror.ReasonBadState,
		},
		{
			name:       "empty state",
			code:       "code-1",
			state:      "",
			wantReason: apperror.ReasonBadState,
		},
		{
			name:       "missing code",
			code:       "",
			state:      raw,
			wantReason: apperror.ReasonBadState,
		},
		{
			name:       "code not exchangeable",
			code:       "unknown-code",
			state:      raw,
			wantReason: apperror.ReasonNoToken,
		},
		{
			name: "profile fetch fails",
			setup: func(gh *fakeGitHub) {
				gh.addUser("code-1", "gho_abc", &github.User{ID: 42, Email: strPtr("octo@example.com")})
				gh.errs["FetchUser"] = &github.APIError{StatusCode: 502, Message: "bad gateway"}
			},
			code:     "code-1",
			state:    raw,
			wantKind: apperror.ErrUpstream,
		},
		{
			name: "null email",
			setup: func(gh *fakeGitHub) {
				gh.addUser("code-1", "gho_abc", &github.User{ID: 42, Login: "private"})
			},
			code:       "code-1",
			state:      raw,
			wantReason: apperror.ReasonNoEmail,
		},
		{
			name: "empty email",
			setup: func(gh *fakeGitHub) {
				gh.addUser("code-1", "gho_abc", &github.User{ID: 42, Login: "private", Email: strPtr("")})
			},
			code:       "code-1",
			state:      raw,
			wantReason: apperror.ReasonNoEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(env.gh)
			}

			res, err := env.auth.CompleteGitHubLogin(context.Background(), tt.code, tt.state)
			if res != nil {
				t.Errorf("result = %+v, want nil", res)
			}
			if tt.wantKind != nil {
				wantKind(t, err, tt.wantKind)
			} else {
				wantReason(t, err, tt.wantReason)
			}
			assertNoIdentityRows(t, env, "octo@example.com", "42")
		})
	}
}

// =========================================================================
// REFRESH TESTS
// =========================================================================

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)

	refresh, err := env.tokens.IssueRefresh("user-1")
	if err != nil {
		t.Fatalf("IssueRefresh() error = %v", err)
	}
	access, err := env.tokens.IssueAccess("user-1")
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}

	s, err := env.auth.Refresh(refresh)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if s.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", s.UserID)
	}
	if got, err := env.tokens.VerifyAccess(s.AccessToken); err != nil || got != "user-1" {
		t.Errorf("new access token: %q, %v", got, err)
	}

	for name, tok := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"access token": access,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.auth.Refresh(tok)
			wantKind(t, err, apperror.ErrUnauthorized)
		})
	}
}

func TestRefreshMaxAge(t *testing.T) {
	env := newTestEnv(t)
	if got, want := env.auth.RefreshMaxAge(), 7*24*60*60; got != want {
		t.Errorf("RefreshMaxAge() = %d, want %d", got, want)
	}
}
