// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, never *sqlite.DB, and return
// apperror kinds that the handler package maps to HTTP statuses.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/sakif/opensource-hub/internal/apperror"
	"github.com/sakif/opensource-hub/internal/model"
	"github.com/sakif/opensource-hub/internal/repository"
)

// Pagination defaults for every project listing.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// PageQuery is a 1-based page request.
type PageQuery struct {
	Page  int
	Limit int
}

func (q PageQuery) normalize() (PageQuery, error) {
	if q.Page == 0 {
		q.Page = DefaultPage
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Page < 1 {
		return q, apperror.ValidationFailed("page", "page must be a positive integer")
	}
	if q.Limit < 1 {
		return q, apperror.ValidationFailed("limit", "limit must be a positive integer")
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q, nil
}

// ProjectQuery is a public listing request.
type ProjectQuery struct {
	Search   string
	Language string
	TagIDs   []int64
	Sort     repository.ProjectSort
	PageQuery
}

type ProjectService struct {
	projects   repository.ProjectRepository
	engagement repository.EngagementRepository
	tags       repository.TagRepository
	github     GitHubAPI
	creds      credentials
	logger     *slog.Logger
}

func NewProjectService(
	projects repository.ProjectRepository,
	engagement repository.EngagementRepository,
	tags repository.TagRepository,
	accounts repository.OAuthAccountRepository,
	gh GitHubAPI,
	cipher TokenCipher,
	logger *slog.Logger,
) *ProjectService {
	return &ProjectService{
		projects:   projects,
		engagement: engagement,
		tags:       tags,
		github:     gh,
		creds:      credentials{accounts: accounts, cipher: cipher},
		logger:     logger,
	}
}

// =========================================================================
// LISTINGS
// =========================================================================

// List returns one page of the public listing as seen by viewerID ("" for
// anonymous visitors).
func (s *ProjectService) List(ctx context.Context, viewerID string, q ProjectQuery) (*model.ProjectPage, error) {
	if q.Sort == "" {
		q.Sort = repository.SortVotes
	}
	if !q.Sort.Valid() {
		return nil, apperror.ValidationFailed("sort",
			fmt.Sprintf("sort must be one of %s, %s, %s, %s",
				repository.SortVotes, repository.SortStars,
				repository.SortGitHubCreatedDesc, repository.SortGitHubCreatedAsc))
	}

	return s.page(ctx, repository.ProjectFilter{
		Search:   strings.TrimSpace(q.Search),
		Language: strings.ToLower(strings.TrimSpace(q.Language)),
		TagIDs:   q.TagIDs,
		Sort:     q.Sort,
		ViewerID: viewerID,
	}, q.PageQuery)
}

// ListOwned returns the projects userID submitted, newest first.
func (s *ProjectService) ListOwned(ctx context.Context, userID string, q PageQuery) (*model.ProjectPage, error) {
	return s.page(ctx, repository.ProjectFilter{
		OwnerID:  userID,
		Sort:     repository.SortNewest,
		ViewerID: userID,
	}, q)
}

// ListBookmarked returns the projects userID bookmarked, newest first.
func (s *ProjectService) ListBookmarked(ctx context.Context, userID string, q PageQuery) (*model.ProjectPage, error) {
	return s.page(ctx, repository.ProjectFilter{
		BookmarkedBy: userID,
		Sort:         repository.SortNewest,
		ViewerID:     userID,
	}, q)
}

// page fetches Limit+1 rows; the extra row only signals that a next page
// exists and is not returned.
func (s *ProjectService) page(ctx context.Context, f repository.ProjectFilter, q PageQuery) (*model.ProjectPage, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}

	projects, err := s.projects.ListProjects(ctx, f, repository.ListOptions{
		Limit:  q.Limit + 1,
		Offset: (q.Page - 1) * q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	total, err := s.projects.CountProjects(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("counting projects: %w", err)
	}

	result := &model.ProjectPage{Projects: projects, TotalCount: total}
	if len(projects) > q.Limit {
		result.Projects = projects[:q.Limit]
		next := q.Page + 1
		result.NextPage = &next
	}
	return result, nil
}

// ListTags returns every tag a project can carry.
func (s *ProjectService) ListTags(ctx context.Context) ([]model.Tag, error) {
	return s.tags.ListTags(ctx)
}

// =========================================================================
// SUBMISSION
// =========================================================================

// ParseRepoURL extracts owner and repository name from
// https://github.com/{owner}/{repo}. A trailing slash or ".git" is accepted.
func ParseRepoURL(raw string) (owner, name string, err error) {
	invalid := apperror.ValidationFailed("repoUrl", "repoUrl must look like https://github.com/{owner}/{repo}")

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" {
		return "", "", invalid
	}
	if host := strings.ToLower(u.Host); host != "github.com" && host != "www.github.com" {
		return "", "", invalid
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", invalid
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// Submit fetches a repository from GitHub and stores it as a project owned
// by userID. Only the repository's GitHub owner may submit it, and each
// repository can be submitted once.
func (s *ProjectService) Submit(ctx context.Context, userID, repoURL string, tagIDs []int64) (*model.Project, error) {
	owner, name, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	account, token, err := s.creds.githubToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	repo, err := s.github.GetRepo(ctx, token, owner, name)
	if err != nil {
		s.logger.Warn("fetching repository for submission failed",
			slog.String("repo", owner+"/"+name),
			slog.String("error", err.Error()),
		)
		return nil, wrapGitHubErr(owner+"/"+name, err)
	}

	if strconv.FormatInt(repo.Owner.ID, 10) != account.ProviderUserID {
		return nil, apperror.ValidationFailed("repoUrl", "User is not the owner of repository sent")
	}

	project := &model.Project{
		GitHubProjectID: repo.ID,
		Name:            repo.Name,
		RepoURL:         repoURL,
		AvatarURL:       repo.Owner.AvatarURL,
		Stars:           repo.StargazersCount,
		GitHubCreatedAt: repo.CreatedAt,
		UserID:          userID,
	}
	if repo.Description != nil {
		project.Description = *repo.Description
	}
	if repo.License != nil {
		project.License = repo.License.Name
	}
	if repo.Homepage != nil {
		project.LiveLink = *repo.Homepage
	}
	if repo.Language != nil {
		project.ProgrammingLanguage = strings.ToLower(*repo.Language)
	}

	if err := s.projects.CreateProject(ctx, project, tagIDs); err != nil {
		return nil, err
	}

	s.logger.Info("project submitted",
		slog.String("projectID", project.ID),
		slog.String("repo", owner+"/"+name),
		slog.String("userID", userID),
	)
	return project, nil
}

// =========================================================================
// OWNER EDITS
// =========================================================================

// ownedProject loads a project and checks userID submitted it.
func (s *ProjectService) ownedProject(ctx context.Context, userID, projectID, action string) (*model.Project, error) {
	project, err := s.projects.GetProject(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if project.UserID != userID {
		return nil, apperror.Forbidden(fmt.Sprintf("User not authorized to %s this project", action))
	}
	return project, nil
}

// Update changes the owner-editable fields and returns the updated project.
func (s *ProjectService) Update(ctx context.Context, userID, projectID string, upd model.ProjectUpdate) (*model.Project, error) {
	if upd.LiveLink != nil && *upd.LiveLink != "" && !isHTTPURL(*upd.LiveLink) {
		return nil, apperror.ValidationFailed("liveLink", "liveLink must be an http(s) URL")
	}

	if _, err := s.ownedProject(ctx, userID, projectID, "edit"); err != nil {
		return nil, err
	}
	if err := s.projects.UpdateProject(ctx, projectID, upd); err != nil {
		return nil, err
	}
	return s.projects.GetProject(ctx, projectID, userID)
}

// Delete removes a project the user submitted.
func (s *ProjectService) Delete(ctx context.Context, userID, projectID string) error {
	if _, err := s.ownedProject(ctx, userID, projectID, "delete"); err != nil {
		return err
	}
	if err := s.projects.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	s.logger.Info("project deleted", slog.String("projectID", projectID), slog.String("userID", userID))
	return nil
}

// =========================================================================
// VOTES AND BOOKMARKS
// =========================================================================

// Each operation checks the project exists first so a missing project is
// reported as such rather than as a missing vote or bookmark.

func (s *ProjectService) Vote(ctx context.Context, userID, projectID string) error {
	return s.engage(ctx, userID, projectID, s.engagement.AddVote)
}

func (s *ProjectService) Unvote(ctx context.Context, userID, projectID string) error {
	return s.engage(ctx, userID, projectID, s.engagement.RemoveVote)
}

func (s *ProjectService) Bookmark(ctx context.Context, userID, projectID string) error {
	return s.engage(ctx, userID, projectID, s.engagement.AddBookmark)
}

func (s *ProjectService) Unbookmark(ctx context.Context, userID, projectID string) error {
	return s.engage(ctx, userID, projectID, s.engagement.RemoveBookmark)
}

func (s *ProjectService) engage(ctx context.Context, userID, projectID string, op func(ctx context.Context, userID, projectID string) error) error {
	if _, err := s.projects.GetProject(ctx, projectID, ""); err != nil {
		return err
	}
	return op(ctx, userID, projectID)
}

func isHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
