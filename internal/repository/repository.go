// Package repository declares the storage interfaces the service layer
// depends on. The sqlite subpackage implements all of them on one *DB.
package repository

import (
	"context"

	"github.com/sakif/opensource-hub/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateProfile(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error)
	DeleteUser(ctx context.Context, id string) error
	ListSkills(ctx context.Context) ([]model.Skill, error)
}

// OAuthAccountRepository reads linked provider accounts outside the login
// transaction, e.g. to decrypt a stored token for a later GitHub call.
type OAuthAccountRepository interface {
	GetOAuthAccountByUser(ctx context.Context, provider model.Provider, userID string) (*model.OAuthAccount, error)
}

// IdentityTx is the set of reads and writes the identity resolver performs
// inside one transaction. Lookups return apperror.ErrNotFound when nothing
// matches; inserts that lose a unique-constraint race return
// apperror.ErrConflict.
type IdentityTx interface {
	FindAccount(ctx context.Context, provider model.Provider, providerUserID string) (*model.OAuthAccount, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	CreateAccount(ctx context.Context, account *model.OAuthAccount) error
	UpdateAccountToken(ctx context.Context, account *model.OAuthAccount) error
}

// IdentityStore runs fn in a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type IdentityStore interface {
	WithinTx(ctx context.Context, fn func(tx IdentityTx) error) error
}

// ProjectSort orders a project listing. Ties break on project id.
type ProjectSort string

const (
	SortVotes             ProjectSort = "votes"
	SortStars             ProjectSort = "stars"
	SortGitHubCreatedDesc ProjectSort = "github_created_at_desc"
	SortGitHubCreatedAsc  ProjectSort = "github_created_at_asc"
	SortNewest            ProjectSort = "newest"
)

// Valid reports whether s is a sort clients may request.
func (s ProjectSort) Valid() bool {
	switch s {
	case SortVotes, SortStars, SortGitHubCreatedDesc, SortGitHubCreatedAsc:
		return true
	}
	return false
}

// ProjectFilter narrows a project listing. Zero fields do not filter.
// ViewerID only affects the IsVoted/IsBookmarked flags.
type ProjectFilter struct {
	Search       string
	Language     string
	TagIDs       []int64
	Sort         ProjectSort
	OwnerID      string
	BookmarkedBy string
	ViewerID     string
}

type ProjectRepository interface {
	CreateProject(ctx context.Context, project *model.Project, tagIDs []int64) error
	GetProject(ctx context.Context, id, viewerID string) (*model.Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter, opts ListOptions) ([]model.Project, error)
	CountProjects(ctx context.Context, filter ProjectFilter) (int, error)
	UpdateProject(ctx context.Context, id string, upd model.ProjectUpdate) error
	DeleteProject(ctx context.Context, id string) error
}

// EngagementRepository stores votes and bookmarks. Adding a duplicate
// returns apperror.ErrConflict, removing a missing one apperror.ErrNotFound.
type EngagementRepository interface {
	AddVote(ctx context.Context, userID, projectID string) error
	RemoveVote(ctx context.Context, userID, projectID string) error
	AddBookmark(ctx context.Context, userID, projectID string) error
	RemoveBookmark(ctx context.Context, userID, projectID string) error
}

type TagRepository interface {
	ListTags(ctx context.Context) ([]model.Tag, error)
}
