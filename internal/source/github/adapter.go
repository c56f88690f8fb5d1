package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/source"
)

const (
	defaultBaseURL = "https://api.github.com"
	perPage        = 100
	maxPages       = 10
)

// Adapter implements source.RepositorySource for GitHub.
type Adapter struct {
	client  *source.Client
	baseURL string
}

// NewAdapter creates a GitHub adapter. An empty baseURL selects
// api.github.com; GitHub Enterprise hosts pass their API root.
func NewAdapter(baseURL, token string, opts ...source.ClientOption) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		client:  source.NewClient(model.ProviderGitHub, source.BearerAuth(token), opts...),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Type returns the provider type for GitHub.
func (a *Adapter) Type() model.ProviderType {
	return model.ProviderGitHub
}

// ValidateConnection fetches the authenticated user and returns its name.
func (a *Adapter) ValidateConnection(ctx context.Context) (string, error) {
	var u user
	if err := a.client.GetJSON(ctx, a.baseURL+"/user", &u); err != nil {
		return "", fmt.Errorf("validating GitHub connection: %w", err)
	}
	if u.Name != "" {
		return u.Name, nil
	}
	return u.Login, nil
}

// ListRepositories returns the repositories visible to the token.
func (a *Adapter) ListRepositories(ctx context.Context) ([]source.RepositoryRef, error) {
	var refs []source.RepositoryRef
	for page := 1; page <= maxPages; page++ {
		var repos []repository
		u := fmt.Sprintf("%s/user/repos?per_page=%d&page=%d", a.baseURL, perPage, page)
		if err := a.client.GetJSON(ctx, u, &repos); err != nil {
			return nil, fmt.Errorf("listing repositories: %w", err)
		}
		for _, r := range repos {
			refs = append(refs, source.RepositoryRef{Owner: r.Owner.Login, Repo: r.Name})
		}
		if len(repos) < perPage {
			break
		}
	}
	return refs, nil
}

// GetRepositoryStatus derives the repository status from its open pull
// requests.
func (a *Adapter) GetRepositoryStatus(ctx context.Context, owner, repo string) (*source.RepositoryStatus, error) {
	prs, err := a.openPullRequests(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("listing pull requests for %s/%s: %w", owner, repo, err)
	}

	status, err := derive(len(prs), func(i int) (PullRequestState, error) {
		// The list endpoint omits mergeability.
		var detail pullRequest
		if err := a.client.GetJSON(ctx, a.repoURL(owner, repo, fmt.Sprintf("pulls/%d", prs[i].Number)), &detail); err != nil {
			return PullRequestState{}, err
		}
		return PullRequestState{Number: detail.Number, Mergeable: detail.Mergeable}, nil
	}, func(pr PullRequestState) ([]string, error) {
		var reviews []review
		if err := a.client.GetJSON(ctx, a.repoURL(owner, repo, fmt.Sprintf("pulls/%d/reviews", pr.Number)), &reviews); err != nil {
			return nil, err
		}
		states := make([]string, 0, len(reviews))
		for _, r := range reviews {
			states = append(states, r.State)
		}
		return states, nil
	})
	if err != nil {
		return nil, fmt.Errorf("inspecting pull requests for %s/%s: %w", owner, repo, err)
	}

	return &source.RepositoryStatus{Status: status, PRCount: len(prs)}, nil
}

func (a *Adapter) openPullRequests(ctx context.Context, owner, repo string) ([]pullRequest, error) {
	var all []pullRequest
	for page := 1; page <= maxPages; page++ {
		var prs []pullRequest
		u := a.repoURL(owner, repo, fmt.Sprintf("pulls?state=open&per_page=%d&page=%d", perPage, page))
		if err := a.client.GetJSON(ctx, u, &prs); err != nil {
			return nil, err
		}
		all = append(all, prs...)
		if len(prs) < perPage {
			break
		}
	}
	return all, nil
}

func (a *Adapter) repoURL(owner, repo, rest string) string {
	return fmt.Sprintf("%s/repos/%s/%s/%s", a.baseURL, url.PathEscape(owner), url.PathEscape(repo), rest)
}
