package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/opensource-hub/internal/auth"
	"github.com/sakif/opensource-hub/internal/github"
	"github.com/sakif/opensource-hub/internal/handler"
	"github.com/sakif/opensource-hub/internal/repository/sqlite"
	"github.com/sakif/opensource-hub/internal/service"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

const testKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

// stubGitHub answers every call with one fixed user and repository.
type stubGitHub struct {
	user *github.User
	repo *github.Repo
}

func (s *stubGitHub) ExchangeCode(ctx context.Context, code string) (string, error) {
	if code != "good-code" {
		return "", github.ErrNoToken
	}
	return "gho_stub", nil
}

func (s *stubGitHub) FetchUser(ctx context.Context, token string) (*github.User, error) {
	return s.user, nil
}

func (s *stubGitHub) ListUserRepos(ctx context.Context, token string) ([]github.Repo, error) {
	if s.repo == nil {
		return nil, nil
	}
	return []github.Repo{*s.repo}, nil
}

func (s *stubGitHub) GetRepo(ctx context.Context, token, owner, name string) (*github.Repo, error) {
	if s.repo == nil || s.repo.FullName != owner+"/"+name {
		return nil, github.ErrNotFound
	}
	return s.repo, nil
}

type testAPI struct {
	router http.Handler
	tokens *auth.TokenIssuer
	gh     *stubGitHub
}

// newTestAPI mounts the handlers on a chi router the way the server does,
// minus rate limiting and CORS.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqlite.New(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cipher, err := auth.NewCipher(testKey)
	require.NoError(t, err)
	tokens, err := auth.NewTokenIssuer("handler-test-secret-0123456789")
	require.NoError(t, err)

	email := "octo@example.com"
	desc := "a repo"
	repo := &github.Repo{ID: 900, Name: "hub", FullName: "octocat/hub", HTMLURL: "https://github.com/octocat/hub", Description: &desc, CreatedAt: time.Now()}
	repo.Owner.ID = 42
	gh := &stubGitHub{
		user: &github.User{ID: 42, Login: "octocat", Email: &email},
		repo: repo,
	}

	resolver := service.NewIdentityResolver(db, cipher, auth.NewPasswordServiceForTest(4), logger)
	authSvc := service.NewAuthService(gh, resolver, tokens, logger)
	projectSvc := service.NewProjectService(db, db, db, db, gh, cipher, logger)

	authH := handler.NewAuthHandler(authSvc, "http://front.example.com/", false, logger)
	projectH := handler.NewProjectHandler(projectSvc, logger)
	userH := handler.NewUserHandler(service.NewUserService(db, logger), projectSvc, authH, logger)
	githubH := handler.NewGitHubHandler(service.NewGitHubService(gh, db, cipher, logger), logger)

	r := chi.NewRouter()
	r.Get("/github/callback", authH.HandleGitHubCallback)
	r.Patch("/token/refresh", authH.HandleRefresh)
	r.Post("/logout", authH.HandleLogout)
	r.Get("/tags", projectH.HandleListTags)
	r.Get("/skills", userH.HandleListSkills)
	r.With(auth.OptionalAuth(tokens)).Get("/projects", projectH.HandleList)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/github/user/repos", githubH.HandleListRepos)
		r.Post("/projects", projectH.HandleSubmit)
		r.Patch("/projects/{id}", projectH.HandleUpdate)
		r.Delete("/projects/{id}", projectH.HandleDelete)
		r.Post("/projects/{id}/vote", projectH.HandleVote)
		r.Delete("/projects/{id}/vote", projectH.HandleUnvote)
		r.Post("/projects/{id}/bookmark", projectH.HandleBookmark)
		r.Delete("/projects/{id}/bookmark", projectH.HandleUnbookmark)
		r.Get("/users/me", userH.HandleMe)
		r.Patch("/users/me", userH.HandleUpdate)
		r.Delete("/users/me", userH.HandleDelete)
		r.Get("/users/me/projects", userH.HandleMyProjects)
		r.Get("/users/me/bookmarks", userH.HandleMyBookmarks)
	})

	return &testAPI{router: r, tokens: tokens, gh: gh}
}

func (a *testAPI) do(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

// login runs the callback and returns the access token from the redirect.
func (a *testAPI) login(t *testing.T) string {
	t.Helper()
	raw, err := auth.NewState("/").Encode()
	require.NoError(t, err)

	rr := a.do(t, http.MethodGet, "/github/callback?code=good-code&state="+url.QueryEscape(raw), "", "")
	require.Equal(t, http.StatusFound, rr.Code, rr.Body.String())

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	return loc.Query().Get("token")
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(dst), rr.Body.String())
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func newRefreshRequest(value string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPatch, "/token/refresh", nil)
	req.AddCookie(&http.Cookie{Name: handler.RefreshCookieName, Value: value})
	return req, httptest.NewRecorder()
}
