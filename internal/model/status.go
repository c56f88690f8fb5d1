package model

// Canonical status values shared by all providers.
const (
	StatusQueued          = "queued"
	StatusInProgress      = "inprogress"
	StatusSucceeded       = "succeeded"
	StatusFailed          = "failed"
	StatusPendingApproval = "pending_approval"

	StatusNoOpenPRs     = "no_open_prs"
	StatusOpenPRs       = "open_prs"
	StatusPRsNeedReview = "prs_need_review"
	StatusPRsWithIssues = "prs_with_issues"

	StatusHealthy    = "healthy"
	StatusNotHealthy = "not-healthy"
)

// IsRunning reports whether status describes an unfinished run.
func IsRunning(status string) bool {
	return status == StatusQueued || status == StatusInProgress
}
