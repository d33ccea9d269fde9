package types

// CommitAuthor identifies the author of a commit as reported by the
// GitHub commits API.
type CommitAuthor struct {
	// Name is the author's name as recorded in the commit.
	Name string `json:"name"`

	// Email is the author's email as recorded in the commit.
	Email string `json:"email"`

	// Date is the author timestamp in RFC 3339 format.
	Date string `json:"date"`
}

// Commit is a single entry from the GitHub commits API, reduced to the
// fields the activity feed renders.
type Commit struct {
	// SHA is the full commit hash.
	SHA string `json:"sha"`

	// HTMLURL links to the commit on github.com.
	HTMLURL string `json:"html_url"`

	// Commit holds the nested commit payload (message and author).
	Commit CommitDetail `json:"commit"`
}

// CommitDetail is the nested "commit" object of the GitHub response.
type CommitDetail struct {
	// Message is the full commit message.
	Message string `json:"message"`

	// Author identifies the commit author.
	Author CommitAuthor `json:"author"`
}

// CommitFeed is the activity payload served to clients.
type CommitFeed struct {
	// Commits are the most recent commits, newest first.
	Commits []Commit `json:"commits"`

	// TotalCount is the number of commits in this payload.
	TotalCount int `json:"total_count"`

	// Stale indicates the payload was served from an expired cache
	// because the upstream call failed or was rate limited.
	Stale bool `json:"is_stale,omitempty"`
}

// AppVersion is a version number derived from the total commit count of
// the tracked repository.
type AppVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`

	// Display is the rendered "major.minor.patch" string.
	Display string `json:"display"`
}
