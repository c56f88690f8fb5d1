package github

type user struct {
	Login string `json:"login"`
	Name  string `json:"name"`
}

type repository struct {
	Name  string `json:"name"`
	Owner user   `json:"owner"`
}

type pullRequest struct {
	Number    int   `json:"number"`
	Mergeable *bool `json:"mergeable"`
}

type review struct {
	State string `json:"state"`
}

// PullRequestState is what status derivation needs to know about one open
// pull request.
type PullRequestState struct {
	Number    int
	Mergeable *bool
	Reviews   []string
}
