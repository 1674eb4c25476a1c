package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sakif/opensource-hub/internal/auth"
	"github.com/sakif/opensource-hub/internal/github"
	"github.com/sakif/opensource-hub/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// The services run against a real in-memory SQLite database (schema and
// seed data included) and a fake GitHub. Only GitHub is faked: it is the
// one dependency that needs the network.

const (
	testKey    = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	otherKey   = "ZmVkY2JhOTg3NjU0MzIxMGZlZGNiYTk4NzY1NDMyMTA="
	testSecret = "test-secret-that-is-long-enough"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

// fakeGitHub is an in-memory GitHubAPI. codes maps an OAuth code to the
// access token it exchanges for; users and repos are keyed by token.
type fakeGitHub struct {
	mu     sync.Mutex
	codes  map[string]string
	users  map[string]*github.User
	repos  map[string][]github.Repo
	errs   map[string]error // per-method failure, keyed by method name
	tokens []string         // tokens seen by token-authenticated calls
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		codes: make(map[string]string),
		users: make(map[string]*github.User),
		repos: make(map[string][]github.Repo),
		errs:  make(map[string]error),
	}
}

// addUser registers a GitHub user reachable through the given code/token.
func (f *fakeGitHub) addUser(code, token string, u *github.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[code] = token
	f.users[token] = u
}

func (f *fakeGitHub) ExchangeCode(ctx context.Context, code string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["ExchangeCode"]; err != nil {
		return "", err
	}
	token, ok := f.codes[code]
	if !ok {
		return "", github.ErrNoToken
	}
	return token, nil
}

func (f *fakeGitHub) FetchUser(ctx context.Context, token string) (*github.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	if err := f.errs["FetchUser"]; err != nil {
		return nil, err
	}
	u, ok := f.users[token]
	if !ok {
		return nil, &github.APIError{StatusCode: 401, Message: "Bad credentials"}
	}
	return u, nil
}

func (f *fakeGitHub) ListUserRepos(ctx context.Context, token string) ([]github.Repo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	if err := f.errs["ListUserRepos"]; err != nil {
		return nil, err
	}
	return f.repos[token], nil
}

func (f *fakeGitHub) GetRepo(ctx context.Context, token, owner, name string) (*github.Repo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	if err := f.errs["GetRepo"]; err != nil {
		return nil, err
	}
	for _, repos := range f.repos {
		for i := range repos {
			if repos[i].FullName == owner+"/"+name {
				r := repos[i]
				return &r, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", github.ErrNotFound, owner, name)
}

func (f *fakeGitHub) lastToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tokens) == 0 {
		return ""
	}
	return f.tokens[len(f.tokens)-1]
}

// testEnv wires every service on one database.
type testEnv struct {
	db        *sqlite.DB
	gh        *fakeGitHub
	cipher    *auth.Cipher
	tokens    *auth.TokenIssuer
	resolver  *IdentityResolver
	auth      *AuthService
	githubSvc *GitHubService
	projects  *ProjectService
	users     *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:", testLogger())
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cipher, err := auth.NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	tokens, err := auth.NewTokenIssuer(testSecret)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}

	gh := newFakeGitHub()
	logger := testLogger()
	resolver := NewIdentityResolver(db, cipher, auth.NewPasswordServiceForTest(4), logger)

	return &testEnv{
		db:        db,
		gh:        gh,
		cipher:    cipher,
		tokens:    tokens,
		resolver:  resolver,
		auth:      NewAuthService(gh, resolver, tokens, logger),
		githubSvc: NewGitHubService(gh, db, cipher, logger),
		projects:  NewProjectService(db, db, db, db, gh, cipher, logger),
		users:     NewUserService(db, logger),
	}
}

// signUp resolves a GitHub identity with the given numeric id and returns
// the local user id.
func (e *testEnv) signUp(t *testing.T, githubID int64, email string) string {
	t.Helper()
	userID, err := e.resolver.Resolve(context.Background(), Identity{
		Provider:    "GITHUB",
		ExternalID:  fmt.Sprint(githubID),
		Email:       email,
		DisplayName: "user" + fmt.Sprint(githubID),
		AvatarURL:   "https://avatars.example.com/" + fmt.Sprint(githubID),
		Token:       fmt.Sprintf("gho_token_%d", githubID),
	})
	if err != nil {
		t.Fatalf("Resolve(%d) error = %v", githubID, err)
	}
	return userID
}

// addRepo makes a repository owned by ownerID visible to GitHub lookups.
func (e *testEnv) addRepo(ownerID, repoID int64, owner, name string) github.Repo {
	lang := "Go"
	home := "https://" + name + ".example.com"
	desc := "the " + name + " project"
	r := github.Repo{
		ID:              repoID,
		Name:            name,
		FullName:        owner + "/" + name,
		HTMLURL:         "https://github.com/" + owner + "/" + name,
		Description:     &desc,
		Homepage:        &home,
		Language:        &lang,
		StargazersCount: int(repoID),
		CreatedAt:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(repoID) * time.Hour),
	}
	r.Owner.ID = ownerID
	r.Owner.Login = owner
	r.Owner.AvatarURL = "https://avatars.example.com/" + owner
	r.License = &struct {
		Name string `json:"name"`
	}{Name: "MIT License"}

	e.gh.mu.Lock()
	defer e.gh.mu.Unlock()
	key := fmt.Sprintf("gho_token_%d", ownerID)
	e.gh.repos[key] = append(e.gh.repos[key], r)
	return r
}

func wantKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want %v", err, kind)
	}
}
