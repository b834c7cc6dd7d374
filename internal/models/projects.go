package models

// VoteType is a project vote.
type VoteType string

const (
	VoteLike    VoteType = "like"
	VoteDislike VoteType = "dislike"
)

func (v VoteType) Valid() bool {
	return v == VoteLike || v == VoteDislike
}

// Project is a post in the project-sharing feed.
type Project struct {
	ID              int64    `json:"id"`
	UserID          string   `json:"userId"`
	UserName        string   `json:"userName"`
	UserArea        string   `json:"userArea"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	DescriptionHTML string   `json:"descriptionHtml,omitempty"`
	GitHubURL       string   `json:"githubUrl"`
	Technologies    string   `json:"technologies"`
	CreatedAt       int64    `json:"createdAt"` // Unix milliseconds
	Likes           int      `json:"likes"`
	Dislikes        int      `json:"dislikes"`
	UserVote        VoteType `json:"userVote,omitempty"`
}

// Comment belongs to a project.
type Comment struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"projectId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Text      string `json:"text"`
	// TextHTML is Text escaped for display, filled in on read.
	TextHTML  string `json:"textHtml,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// VoteResult is returned after a vote toggle.
type VoteResult struct {
	Likes    int      `json:"likes"`
	Dislikes int      `json:"dislikes"`
	UserVote VoteType `json:"userVote,omitempty"`
}
