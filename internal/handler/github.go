package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/opensource-hub/internal/auth"
	"github.com/sakif/opensource-hub/internal/service"
)

// GitHubHandler serves the signed-in user's GitHub data.
type GitHubHandler struct {
	github *service.GitHubService
	logger *slog.Logger
}

func NewGitHubHandler(github *service.GitHubService, logger *slog.Logger) *GitHubHandler {
	return &GitHubHandler{github: github, logger: logger}
}

// HandleListRepos returns the repositories the user could submit.
//
// HTTP: GET /github/user/repos
// Auth: Required
// Response: {"gitHubRepositories": [{"name": "...", "url": "..."}]}
func (h *GitHubHandler) HandleListRepos(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	repos, err := h.github.ListUserRepos(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]service.RepoSummary{"gitHubRepositories": repos})
}
