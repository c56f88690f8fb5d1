package github

import (
	"strings"

	"github.com/nhle/ambrose/internal/model"
)

const changesRequested = "CHANGES_REQUESTED"

// DeriveStatus computes the repository status from its open pull requests,
// in order. A pull request that is not mergeable (or whose mergeability is
// still unknown) or that has a changes-requested review ends the scan with
// prs_with_issues.
func DeriveStatus(prs []PullRequestState) string {
	status, _ := derive(len(prs), func(i int) (PullRequestState, error) {
		return prs[i], nil
	}, func(pr PullRequestState) ([]string, error) {
		return pr.Reviews, nil
	})
	return status
}

// derive walks n pull requests, loading each lazily so the scan can stop
// before fetching reviews of later pull requests.
func derive(
	n int,
	load func(i int) (PullRequestState, error),
	reviews func(pr PullRequestState) ([]string, error),
) (string, error) {
	if n == 0 {
		return model.StatusNoOpenPRs, nil
	}

	needsReview := false
	for i := 0; i < n; i++ {
		pr, err := load(i)
		if err != nil {
			return "", err
		}
		if pr.Mergeable == nil || !*pr.Mergeable {
			return model.StatusPRsWithIssues, nil
		}

		states, err := reviews(pr)
		if err != nil {
			return "", err
		}
		for _, s := range states {
			if strings.EqualFold(s, changesRequested) {
				return model.StatusPRsWithIssues, nil
			}
		}
		if len(states) == 0 {
			needsReview = true
		}
	}

	if needsReview {
		return model.StatusPRsNeedReview, nil
	}
	return model.StatusOpenPRs, nil
}
