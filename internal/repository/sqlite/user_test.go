package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/opensource-hub/internal/apperror"
	"github.com/sakif/opensource-hub/internal/model"
	"github.com/sakif/opensource-hub/internal/repository"
)

func strPtr(s string) *string { return &s }

// =========================================================================
// GET BY ID TESTS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "octo@example.com")

	found, err := db.GetUserByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}

	if found.Email != "octo@example.com" {
		t.Errorf("Email = %q, want %q", found.Email, "octo@example.com")
	}
	if found.Skills == nil || len(found.Skills) != 0 {
		t.Errorf("Skills = %v, want empty non-nil slice", found.Skills)
	}
	if found.CreatedAt.IsZero() {
		t.Error("CreatedAt not read back")
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATE PROFILE TESTS
// =========================================================================

func TestUpdateProfile_Partial(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "partial@example.com")

	updated, err := db.UpdateProfile(context.Background(), user.ID, model.UserUpdate{
		Bio: strPtr("Gopher"),
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}

	if updated.Bio != "Gopher" {
		t.Errorf("Bio = %q, want %q", updated.Bio, "Gopher")
	}
	if updated.Name != "partial" {
		t.Errorf("Name = %q, want unchanged %q", updated.Name, "partial")
	}
}

func TestUpdateProfile_ReplacesSkills(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "skills@example.com")
	ctx := context.Background()

	if _, err := db.UpdateProfile(ctx, user.ID, model.UserUpdate{SkillIDs: []int64{1, 2, 2}}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	updated, err := db.UpdateProfile(ctx, user.ID, model.UserUpdate{SkillIDs: []int64{3}})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}

	if len(updated.Skills) != 1 || updated.Skills[0].ID != 3 {
		t.Errorf("Skills = %v, want only skill 3", updated.Skills)
	}

	// nil SkillIDs leaves the set alone
	updated, err = db.UpdateProfile(ctx, user.ID, model.UserUpdate{Name: strPtr("New")})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if len(updated.Skills) != 1 {
		t.Errorf("Skills = %v, want skill set kept", updated.Skills)
	}
}

func TestUpdateProfile_UnknownSkillWritesNothing(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "unknown@example.com")
	ctx := context.Background()

	_, err := db.UpdateProfile(ctx, user.ID, model.UserUpdate{
		Name:     strPtr("Changed"),
		SkillIDs: []int64{1, 9999},
	})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("UpdateProfile() error = %v, want ErrValidation", err)
	}

	found, err := db.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.Name != "unknown" {
		t.Errorf("Name = %q, want the rolled-back original", found.Name)
	}
	if len(found.Skills) != 0 {
		t.Errorf("Skills = %v, want none", found.Skills)
	}
}

func TestUpdateProfile_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.UpdateProfile(context.Background(), "missing", model.UserUpdate{Bio: strPtr("x")})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateProfile() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDeleteUser_Cascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "gone@example.com")
	project := createTestProject(t, db, user.ID, 42, "gone-repo")
	if err := db.AddBookmark(ctx, user.ID, project.ID); err != nil {
		t.Fatalf("AddBookmark() error = %v", err)
	}

	if err := db.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}

	if _, err := db.GetOAuthAccountByUser(ctx, model.ProviderGitHub, user.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("account survived user deletion: err = %v", err)
	}
	if _, err := db.GetProject(ctx, project.ID, ""); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("project survived user deletion: err = %v", err)
	}
	n, err := db.CountProjects(ctx, repository.ProjectFilter{})
	if err != nil || n != 0 {
		t.Errorf("CountProjects() = %d, %v; want 0", n, err)
	}

	if err := db.DeleteUser(ctx, user.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second DeleteUser() error = %v, want ErrNotFound", err)
	}
}
