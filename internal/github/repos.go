package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// Repo is the portion of a GitHub repository object we use.
type Repo struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	HTMLURL         string    `json:"html_url"`
	Description     *string   `json:"description"`
	Homepage        *string   `json:"homepage"`
	Language        *string   `json:"language"`
	StargazersCount int       `json:"stargazers_count"`
	CreatedAt       time.Time `json:"created_at"`
	License         *struct {
		Name string `json:"name"`
	} `json:"license"`
	Owner struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
	} `json:"owner"`
}

// ListUserRepos returns every repository visible to the token's owner.
func (c *Client) ListUserRepos(ctx context.Context, token string) ([]Repo, error) {
	raw, err := c.FetchAllPages(ctx, c.cfg.BaseURL+"/user/repos", token)
	if err != nil {
		return nil, err
	}

	repos := make([]Repo, 0, len(raw))
	for i, item := range raw {
		var r Repo
		if err := json.Unmarshal(item, &r); err != nil {
			return nil, fmt.Errorf("github: decoding repository %d: %w", i, err)
		}
		repos = append(repos, r)
	}
	return repos, nil
}

// GetRepo fetches one repository. token may be empty for public repositories.
// A missing repository returns an error matching ErrNotFound.
func (c *Client) GetRepo(ctx context.Context, token, owner, name string) (*Repo, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s", c.cfg.BaseURL, url.PathEscape(owner), url.PathEscape(name))

	body, _, err := c.get(ctx, endpoint, token)
	if err != nil {
		return nil, err
	}

	var r Repo
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("github: decoding repository %s/%s: %w", owner, name, err)
	}
	return &r, nil
}
