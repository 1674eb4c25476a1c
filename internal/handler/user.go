package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/opensource-hub/internal/auth"
	"github.com/sakif/opensource-hub/internal/model"
	"github.com/sakif/opensource-hub/internal/service"
)

// UserHandler serves the signed-in user's profile and personal listings.
type UserHandler struct {
	users    *service.UserService
	projects *service.ProjectService
	sessions *AuthHandler // clears the refresh cookie on account deletion
	logger   *slog.Logger
}

func NewUserHandler(
	users *service.UserService,
	projects *service.ProjectService,
	sessions *AuthHandler,
	logger *slog.Logger,
) *UserHandler {
	return &UserHandler{users: users, projects: projects, sessions: sessions, logger: logger}
}

// HandleMe returns the current user's profile with skills.
//
// HTTP: GET /users/me
// Response: {"user": {...}}
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.users.Get(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*model.User{"user": user})
}

type updateUserRequest struct {
	Name      *string `json:"name"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatarUrl"`
	SkillIDs  []int64 `json:"skillIds"`
}

// HandleUpdate applies a partial profile update.
//
// HTTP: PATCH /users/me
// REQUEST BODY: {"name"?, "bio"?, "avatarUrl"?, "skillIds"?}
// Response: {"updatedUser": {...}}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	user, err := h.users.Update(r.Context(), userID, model.UserUpdate{
		Name:      req.Name,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
		SkillIDs:  req.SkillIDs,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*model.User{"updatedUser": user})
}

// HandleDelete deletes the account and ends the session.
//
// HTTP: DELETE /users/me
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.users.Delete(r.Context(), userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.sessions.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMyProjects lists the projects the user submitted.
//
// HTTP: GET /users/me/projects?page&limit
func (h *UserHandler) HandleMyProjects(w http.ResponseWriter, r *http.Request) {
	h.listPage(w, r, h.projects.ListOwned)
}

// HandleMyBookmarks lists the projects the user bookmarked.
//
// HTTP: GET /users/me/bookmarks?page&limit
func (h *UserHandler) HandleMyBookmarks(w http.ResponseWriter, r *http.Request) {
	h.listPage(w, r, h.projects.ListBookmarked)
}

func (h *UserHandler) listPage(
	w http.ResponseWriter,
	r *http.Request,
	list func(ctx context.Context, userID string, q service.PageQuery) (*model.ProjectPage, error),
) {
	page, err := pageQuery(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	result, err := list(r.Context(), userID, page)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleListSkills returns every skill.
//
// HTTP: GET /skills
func (h *UserHandler) HandleListSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := h.users.ListSkills(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.Skill{"skills": skills})
}
