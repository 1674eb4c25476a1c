package model

import "time"

// Project is a GitHub repository submitted by its owner.
//
// Repository metadata (name, stars, license...) is copied from GitHub at
// submission time. GitHubProjectID is GitHub's numeric repository id and is
// unique, so a repository can only be submitted once.
//
// VotesCount, IsVoted and IsBookmarked are computed per query; IsVoted and
// IsBookmarked are relative to the requesting user and false for anonymous
// requests.
type Project struct {
	ID                  string    `json:"id"`
	GitHubProjectID     int64     `json:"gitHubProjectId"`
	Name                string    `json:"name"`
	RepoURL             string    `json:"repoUrl"`
	Description         string    `json:"description"`
	AvatarURL           string    `json:"avatarUrl"`
	Stars               int       `json:"stars"`
	License             string    `json:"license"`
	LiveLink            string    `json:"liveLink"`
	ProgrammingLanguage string    `json:"programmingLanguage"`
	GitHubCreatedAt     time.Time `json:"gitHubCreatedAt"`
	UserID              string    `json:"userId"`
	Tags                []Tag     `json:"tags"`
	CreatedAt           time.Time `json:"createdAt"`

	VotesCount   int  `json:"votesCount"`
	IsVoted      bool `json:"isVoted"`
	IsBookmarked bool `json:"isBookmarked"`
}

// Tag is a seeded project category.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ProjectUpdate is the owner-editable subset of a project.
type ProjectUpdate struct {
	LiveLink            *string
	ProgrammingLanguage *string
	TagIDs              []int64 // nil leaves tags unchanged
}

// ProjectPage is one page of a project listing.
// NextPage is nil on the last page.
type ProjectPage struct {
	Projects   []Project `json:"projects"`
	NextPage   *int      `json:"nextPage"`
	TotalCount int       `json:"totalCount"`
}
