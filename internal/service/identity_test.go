package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sakif/opensource-hub/internal/apperror"
	"github.com/sakif/opensource-hub/internal/auth"
	"github.com/sakif/opensource-hub/internal/model"
	"github.com/sakif/opensource-hub/internal/repository"
)

// =========================================================================
// RESOLVE TESTS
// =========================================================================

func TestResolve_SameIdentityTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := Identity{
		Provider:    model.ProviderGitHub,
		ExternalID:  "42",
		Email:       "octo@example.com",
		DisplayName: "Octo Cat",
		AvatarURL:   "https://avatars.example.com/42",
		Token:       "gho_first",
	}

	first, err := env.resolver.Resolve(ctx, id)
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	before, err := env.db.GetOAuthAccountByUser(ctx, model.ProviderGitHub, first)
	if err != nil {
		t.Fatalf("GetOAuthAccountByUser() error = %v", err)
	}

	id.Token = "gho_second"
	second, err := env.resolver.Resolve(ctx, id)
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if second != first {
		t.Errorf("second Resolve() = %q, want %q", second, first)
	}

	after, err := env.db.GetOAuthAccountByUser(ctx, model.ProviderGitHub, first)
	if err != nil {
		t.Fatalf("GetOAuthAccountByUser() error = %v", err)
	}
	if after.ID != before.ID {
		t.Errorf("account id changed from %q to %q", before.ID, after.ID)
	}
	if after.TokenCiphertext == before.TokenCiphertext || after.TokenIV == before.TokenIV {
		t.Error("token was not re-sealed on the second login")
	}

	plain, err := env.cipher.Decrypt(auth.Sealed{Ciphertext: after.TokenCiphertext, IV: after.TokenIV, Tag: after.TokenTag})
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if plain != "gho_second" {
		t.Errorf("stored token = %q, want %q", plain, "gho_second")
	}
}

func TestResolve_NewUserProfile(t *testing.T) {
	env := newTestEnv(t)
	userID := env.signUp(t, 7, "seven@example.com")

	user, err := env.db.GetUserByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Email != "seven@example.com" || user.Name != "user7" {
		t.Errorf("user = %+v, want email seven@example.com and name user7", user)
	}
	if user.PasswordHash == "" {
		t.Error("placeholder password hash not stored")
	}
}

func TestResolve_LinksByEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	original := env.signUp(t, 1, "shared@example.com")

	linked, err := env.resolver.Resolve(ctx, Identity{
		Provider:   "GITLAB",
		ExternalID: "gl-99",
		Email:      "shared@example.com",
		Token:      "glpat",
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if linked != original {
		t.Errorf("Resolve() = %q, want existing user %q", linked, original)
	}

	acct, err := env.db.GetOAuthAccountByUser(ctx, "GITLAB", original)
	if err != nil {
		t.Fatalf("GetOAuthAccountByUser(GITLAB) error = %v", err)
	}
	if acct.ProviderUserID != "gl-99" {
		t.Errorf("ProviderUserID = %q, want gl-99", acct.ProviderUserID)
	}
}

func TestResolve_RejectsIncompleteIdentity(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.resolver.Resolve(context.Background(), Identity{Provider: model.ProviderGitHub, Email: "a@example.com"})
	wantKind(t, err, apperror.ErrValidation)

	_, err = env.resolver.Resolve(context.Background(), Identity{Provider: model.ProviderGitHub, ExternalID: "5"})
	wantKind(t, err, apperror.ErrRejected)
}

// conflictOnceStore fails the first transaction the way a lost insert race
// does, then behaves like the wrapped store.
type conflictOnceStore struct {
	repository.IdentityStore
	mu    sync.Mutex
	calls int
}

func (s *conflictOnceStore) WithinTx(ctx context.Context, fn func(tx repository.IdentityTx) error) error {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first {
		return apperror.Conflict("oauth account", "race")
	}
	return s.IdentityStore.WithinTx(ctx, fn)
}

func TestResolve_RetriesOnceOnConflict(t *testing.T) {
	env := newTestEnv(t)
	store := &conflictOnceStore{IdentityStore: env.db}
	r := NewIdentityResolver(store, env.cipher, auth.NewPasswordServiceForTest(4), testLogger())

	userID, err := r.Resolve(context.Background(), Identity{
		Provider: model.ProviderGitHub, ExternalID: "77", Email: "race@example.com", Token: "t",
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if userID == "" {
		t.Error("Resolve() returned empty user id")
	}
	if store.calls != 2 {
		t.Errorf("transactions = %d, want 2", store.calls)
	}
}

// alwaysConflictStore never lets a transaction succeed.
type alwaysConflictStore struct{ calls int }

func (s *alwaysConflictStore) WithinTx(ctx context.Context, fn func(tx repository.IdentityTx) error) error {
	s.calls++
	return apperror.Conflict("oauth account", "race")
}

func TestResolve_GivesUpAfterSecondConflict(t *testing.T) {
	env := newTestEnv(t)
	store := &alwaysConflictStore{}
	r := NewIdentityResolver(store, env.cipher, auth.NewPasswordServiceForTest(4), testLogger())

	_, err := r.Resolve(context.Background(), Identity{
		Provider: model.ProviderGitHub, ExternalID: "78", Email: "x@example.com", Token: "t",
	})
	wantKind(t, err, apperror.ErrConflict)
	if store.calls != 2 {
		t.Errorf("transactions = %d, want 2", store.calls)
	}
}

func TestResolve_ConcurrentFirstLogins(t *testing.T) {
	env := newTestEnv(t)

	const n = 4
	ids := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i], errs[i] = env.resolver.Resolve(context.Background(), Identity{
				Provider: model.ProviderGitHub, ExternalID: "500", Email: "same@example.com", Token: "t",
			})
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Resolve #%d error = %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("Resolve #%d = %q, want %q", i, ids[i], ids[0])
		}
	}
}

func TestResolve_DoesNotLeakTokenInError(t *testing.T) {
	env := newTestEnv(t)
	r := NewIdentityResolver(&alwaysConflictStore{}, env.cipher, auth.NewPasswordServiceForTest(4), testLogger())

	_, err := r.Resolve(context.Background(), Identity{
		Provider: model.ProviderGitHub, ExternalID: "1", Email: "x@example.com", Token: "gho_secret_value",
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error %v is not an AppError", err)
	}
	if strings.Contains(err.Error(), "gho_secret_value") {
		t.Errorf("error message %q contains the token", err.Error())
	}
}
