package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/opensource-hub/internal/auth"
	"github.com/sakif/opensource-hub/internal/model"
	"github.com/sakif/opensource-hub/internal/repository"
	"github.com/sakif/opensource-hub/internal/service"
)

// ProjectHandler exposes project browsing, submission, owner edits, votes
// and bookmarks.
//
// URL PARAMETERS:
// chi.URLParam(r, "id") reads {id} from the matched route pattern, so for
// DELETE /projects/abc123 it returns "abc123".
type ProjectHandler struct {
	projects *service.ProjectService
	logger   *slog.Logger
}

func NewProjectHandler(projects *service.ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

// HandleList returns one page of the public listing.
//
// HTTP: GET /projects?search&language&tagIds=1,11&sort=votes&page=1&limit=10
// Auth: Optional (signed-in viewers get isVoted / isBookmarked)
// Response: {"projects": [...], "nextPage": 2 | null, "totalCount": 42}
func (h *ProjectHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := pageQuery(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	tagIDs, err := idList(q.Get("tagIds"), "tagIds")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	viewerID, _ := auth.UserIDFromContext(r.Context())
	result, err := h.projects.List(r.Context(), viewerID, service.ProjectQuery{
		Search:    q.Get("search"),
		Language:  q.Get("language"),
		TagIDs:    tagIDs,
		Sort:      repository.ProjectSort(q.Get("sort")),
		PageQuery: page,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleListTags returns every tag.
//
// HTTP: GET /tags
func (h *ProjectHandler) HandleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.projects.ListTags(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.Tag{"tags": tags})
}

type submitProjectRequest struct {
	RepoURL string  `json:"repoUrl"`
	TagIDs  []int64 `json:"tagIds"`
}

// HandleSubmit adds a repository the user owns on GitHub.
//
// HTTP: POST /projects
// Auth: Required
// REQUEST BODY: {"repoUrl": "https://github.com/owner/repo", "tagIds": [1, 11]}
// Response: 201 {"newProject": {...}}
func (h *ProjectHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	project, err := h.projects.Submit(r.Context(), userID, req.RepoURL, req.TagIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]*model.Project{"newProject": project})
}

type updateProjectRequest struct {
	LiveLink            *string `json:"liveLink"`
	ProgrammingLanguage *string `json:"programmingLanguage"`
	TagIDs              []int64 `json:"tagIds"`
}

// HandleUpdate edits an owned project.
//
// HTTP: PATCH /projects/{id}
// Auth: Required (owner only)
// Response: {"updatedProject": {...}}
func (h *ProjectHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	project, err := h.projects.Update(r.Context(), userID, chi.URLParam(r, "id"), model.ProjectUpdate{
		LiveLink:            req.LiveLink,
		ProgrammingLanguage: req.ProgrammingLanguage,
		TagIDs:              req.TagIDs,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]*model.Project{"updatedProject": project})
}

// HandleDelete removes an owned project.
//
// HTTP: DELETE /projects/{id}
// Auth: Required (owner only)
// Response: 204 No Content
func (h *ProjectHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := h.projects.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === VOTES AND BOOKMARKS ===
// POST creates the mark (201), DELETE removes it (204). A duplicate POST is
// 409 and a DELETE without a mark is 404.

func (h *ProjectHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, h.projects.Vote, "voted")
}

func (h *ProjectHandler) HandleUnvote(w http.ResponseWriter, r *http.Request) {
	h.unmark(w, r, h.projects.Unvote)
}

func (h *ProjectHandler) HandleBookmark(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, h.projects.Bookmark, "bookmarked")
}

func (h *ProjectHandler) HandleUnbookmark(w http.ResponseWriter, r *http.Request) {
	h.unmark(w, r, h.projects.Unbookmark)
}

type engageFunc func(ctx context.Context, userID, projectID string) error

func (h *ProjectHandler) mark(w http.ResponseWriter, r *http.Request, op engageFunc, done string) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := op(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "project " + done})
}

func (h *ProjectHandler) unmark(w http.ResponseWriter, r *http.Request, op engageFunc) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := op(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
