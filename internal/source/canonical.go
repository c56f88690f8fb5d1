package source

import (
	"strings"

	"github.com/nhle/ambrose/internal/model"
)

// Canonicalize maps a raw provider status into the shared vocabulary.
func Canonicalize(raw string) string {
	status := strings.ToLower(strings.TrimSpace(raw))
	switch status {
	case "rejected":
		return model.StatusFailed
	case "notstarted":
		return model.StatusQueued
	}
	return status
}

// BuildStatus canonicalizes a build. A completed build reports its result.
func BuildStatus(status, result string) string {
	if strings.EqualFold(status, "completed") {
		return Canonicalize(result)
	}
	return Canonicalize(status)
}

// ReleaseEnvironmentStatus canonicalizes a release environment given the
// statuses of its post-deploy approvals. An in-progress environment whose
// first approval is pending is waiting on approval.
func ReleaseEnvironmentStatus(status string, postDeployApprovals []string) string {
	s := Canonicalize(status)
	if s == model.StatusInProgress && len(postDeployApprovals) > 0 &&
		strings.EqualFold(postDeployApprovals[0], "pending") {
		return model.StatusPendingApproval
	}
	return s
}
