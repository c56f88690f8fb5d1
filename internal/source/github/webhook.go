package github

import (
	"errors"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nhle/ambrose/internal/model"
)

// PullRequestEvent is the subset of a pull_request webhook used to update
// a repository task.
type PullRequestEvent struct {
	Action string
	Owner  string
	Repo   string
	Number int
}

// ParsePullRequestEvent extracts the action and repository from a
// pull_request webhook payload.
func ParsePullRequestEvent(payload []byte) (*PullRequestEvent, error) {
	if !gjson.ValidBytes(payload) {
		return nil, errors.New("pull request webhook: invalid JSON")
	}
	action := gjson.GetBytes(payload, "action").String()
	if action == "" {
		return nil, errors.New("pull request webhook: missing action")
	}
	return &PullRequestEvent{
		Action: action,
		Owner:  gjson.GetBytes(payload, "repository.owner.login").String(),
		Repo:   gjson.GetBytes(payload, "repository.name").String(),
		Number: int(gjson.GetBytes(payload, "pull_request.number").Int()),
	}, nil
}

// Outcome says how a webhook action affected a task.
type Outcome int

const (
	// OutcomeIgnored means the action cannot change the derived status.
	OutcomeIgnored Outcome = iota
	// OutcomeApplied means the task was updated in place.
	OutcomeApplied
	// OutcomeRefresh means the status must be fetched from the provider.
	OutcomeRefresh
)

var ignoredActions = map[string]bool{
	"assigned":                 true,
	"unassigned":               true,
	"review_requested":         true,
	"review_request_removed":   true,
	"review_requested_removed": true,
	"labeled":                  true,
	"unlabeled":                true,
	"ready_for_review":         true,
	"locked":                   true,
	"unlocked":                 true,
}

// ApplyAction updates task for a pull request action when the new status
// follows from the action alone. Opening a pull request adds one needing
// review; closing the last one leaves none open.
func ApplyAction(task *model.Task, action string, now time.Time) Outcome {
	if ignoredActions[action] {
		return OutcomeIgnored
	}

	switch action {
	case "opened":
		task.PRCount++
		if task.Value == model.StatusNoOpenPRs || task.Value == model.StatusOpenPRs || task.Value == "" {
			task.SetValue(model.StatusPRsNeedReview, now)
		}
		return OutcomeApplied
	case "closed":
		if task.PRCount > 0 {
			task.PRCount--
		}
		if task.PRCount == 0 {
			task.SetValue(model.StatusNoOpenPRs, now)
			return OutcomeApplied
		}
		return OutcomeRefresh
	}
	return OutcomeRefresh
}
