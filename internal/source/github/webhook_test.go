package github

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ambrose/internal/model"
)

func TestParsePullRequestEvent(t *testing.T) {
	t.Parallel()

	ev, err := ParsePullRequestEvent([]byte(`{
	  "action": "opened",
	  "pull_request": {"number": 42},
	  "repository": {"name": "ambrose", "owner": {"login": "nhle"}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, &PullRequestEvent{Action: "opened", Owner: "nhle", Repo: "ambrose", Number: 42}, ev)

	_, err = ParsePullRequestEvent([]byte(`{"zen": "Keep it logically awesome."}`))
	assert.Error(t, err)
}

func TestApplyAction(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("ignored", func(t *testing.T) {
		t.Parallel()
		task := &model.Task{Value: model.StatusOpenPRs, PRCount: 1}
		assert.Equal(t, OutcomeIgnored, ApplyAction(task, "labeled", now))
		assert.Equal(t, model.StatusOpenPRs, task.Value)
		assert.Equal(t, 1, task.PRCount)
	})

	t.Run("opened on a quiet repository", func(t *testing.T) {
		t.Parallel()
		task := &model.Task{Value: model.StatusNoOpenPRs}
		assert.Equal(t, OutcomeApplied, ApplyAction(task, "opened", now))
		assert.Equal(t, model.StatusPRsNeedReview, task.Value)
		assert.Equal(t, model.StatusNoOpenPRs, task.PrevValue)
		assert.True(t, task.HasChanged)
		assert.Equal(t, 1, task.PRCount)
	})

	t.Run("opened keeps an existing issue status", func(t *testing.T) {
		t.Parallel()
		task := &model.Task{Value: model.StatusPRsWithIssues, PRCount: 1}
		assert.Equal(t, OutcomeApplied, ApplyAction(task, "opened", now))
		assert.Equal(t, model.StatusPRsWithIssues, task.Value)
		assert.False(t, task.HasChanged)
		assert.Equal(t, 2, task.PRCount)
	})

	t.Run("closing the last pull request", func(t *testing.T) {
		t.Parallel()
		task := &model.Task{Value: model.StatusOpenPRs, PRCount: 1}
		assert.Equal(t, OutcomeApplied, ApplyAction(task, "closed", now))
		assert.Equal(t, model.StatusNoOpenPRs, task.Value)
		assert.Zero(t, task.PRCount)
	})

	t.Run("closing with others open needs a refresh", func(t *testing.T) {
		t.Parallel()
		task := &model.Task{Value: model.StatusPRsWithIssues, PRCount: 2}
		assert.Equal(t, OutcomeRefresh, ApplyAction(task, "closed", now))
		assert.Equal(t, 1, task.PRCount)
	})

	t.Run("other actions need a refresh", func(t *testing.T) {
		t.Parallel()
		task := &model.Task{Value: model.StatusOpenPRs, PRCount: 1}
		assert.Equal(t, OutcomeRefresh, ApplyAction(task, "synchronize", now))
	})
}
