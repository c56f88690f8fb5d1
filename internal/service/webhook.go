package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/ambrose/internal/events"
	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/source"
	"github.com/nhle/ambrose/internal/source/devops"
	"github.com/nhle/ambrose/internal/source/github"
)

// WebhookResult reports what a webhook delivery changed.
type WebhookResult struct {
	Matched int    `json:"matched"`
	Changed int    `json:"changed"`
	Outcome string `json:"outcome,omitempty"`
}

// ApplyReleaseWebhook updates the release tasks of an account named by an
// Azure DevOps deployment event. Tasks match on definition and
// environment, and on project when the payload names one.
func (s *AccountService) ApplyReleaseWebhook(ctx context.Context, accountID string, payload []byte) (*WebhookResult, error) {
	event, err := devops.ParseReleaseWebhook(payload)
	if err != nil {
		s.metrics.AddWebhook(ctx, string(model.ProviderDevOps), "malformed")
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, translate(err)
	}
	if account.Provider != model.ProviderDevOps {
		return nil, invalid("account %s is not an Azure DevOps account", accountID)
	}

	release, err := s.locks.Acquire(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("locking account %s: %w", account.ID, err)
	}
	defer release()

	tasks, err := s.store.ListTasks(ctx, account.ID)
	if err != nil {
		return nil, translate(err)
	}

	now := s.now()
	result := &WebhookResult{}
	var written, changed []model.Task
	for _, t := range tasks {
		if t.Kind != model.KindRelease ||
			t.DefinitionID != event.DefinitionID ||
			t.EnvironmentID != event.EnvironmentID {
			continue
		}
		if event.Project != "" && !strings.EqualFold(t.Project, event.Project) {
			continue
		}
		result.Matched++
		if t.SetValue(event.Status, now) {
			changed = append(changed, t)
		}
		written = append(written, t)
	}
	result.Changed = len(changed)

	if err := s.commit(ctx, *account, written, changed, now); err != nil {
		return nil, err
	}

	outcome := "applied"
	if result.Matched == 0 {
		outcome = "unmatched"
	}
	result.Outcome = outcome
	s.metrics.AddWebhook(ctx, string(model.ProviderDevOps), outcome)
	s.logger.Debug("release webhook",
		zap.String("account", account.ID),
		zap.Int("definition", event.DefinitionID),
		zap.Int("environment", event.EnvironmentID),
		zap.String("status", event.Status),
		zap.Int("matched", result.Matched),
	)
	return result, nil
}

// ApplyGitHubWebhook updates one repository task from a pull_request
// event. Opening and closing adjust the task in place where the outcome
// is certain, and any other relevant action fetches the repository status.
func (s *AccountService) ApplyGitHubWebhook(ctx context.Context, accountID, taskID string, payload []byte) (*WebhookResult, error) {
	event, err := github.ParsePullRequestEvent(payload)
	if err != nil {
		s.metrics.AddWebhook(ctx, string(model.ProviderGitHub), "malformed")
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, translate(err)
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, translate(err)
	}
	if task.AccountID != account.ID || task.Kind != model.KindRepository {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if event.Repo != "" && (!strings.EqualFold(event.Owner, task.Owner) || !strings.EqualFold(event.Repo, task.Repo)) {
		s.metrics.AddWebhook(ctx, string(model.ProviderGitHub), "ignored")
		return &WebhookResult{Outcome: "ignored"}, nil
	}

	release, err := s.locks.Acquire(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("locking account %s: %w", account.ID, err)
	}
	defer release()

	// Reload under the lock so the count reflects any concurrent refresh.
	task, err = s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, translate(err)
	}

	now := s.now()
	before := task.Value
	result := &WebhookResult{Matched: 1}

	switch github.ApplyAction(task, event.Action, now) {
	case github.OutcomeIgnored:
		result.Outcome = "ignored"
		s.metrics.AddWebhook(ctx, string(model.ProviderGitHub), result.Outcome)
		return result, nil
	case github.OutcomeApplied:
		result.Outcome = "applied"
	case github.OutcomeRefresh:
		result.Outcome = "refreshed"
		if err := s.fetchRepository(ctx, *account, task, now); err != nil {
			s.metrics.AddWebhook(ctx, string(model.ProviderGitHub), "failed")
			return nil, err
		}
	}

	var changed []model.Task
	if task.Value != before {
		changed = append(changed, *task)
		result.Changed = 1
	}
	if err := s.commit(ctx, *account, []model.Task{*task}, changed, now); err != nil {
		return nil, err
	}
	s.metrics.AddWebhook(ctx, string(model.ProviderGitHub), result.Outcome)
	return result, nil
}

func (s *AccountService) fetchRepository(ctx context.Context, account model.Account, task *model.Task, now time.Time) error {
	src, err := s.refresher.Source(account)
	if err != nil {
		return err
	}
	rs, ok := src.(source.RepositorySource)
	if !ok {
		return fmt.Errorf("%s source cannot fetch repositories", account.Provider)
	}
	st, err := rs.GetRepositoryStatus(ctx, task.Owner, task.Repo)
	if err != nil {
		return fmt.Errorf("fetching %s/%s: %w", task.Owner, task.Repo, err)
	}
	task.PRCount = st.PRCount
	task.SetValue(st.Status, now)
	return nil
}

func (s *AccountService) commit(ctx context.Context, account model.Account, written, changed []model.Task, now time.Time) error {
	if len(written) == 0 {
		return nil
	}
	if err := s.store.CommitTaskValues(ctx, account.ID, written); err != nil {
		return translate(err)
	}
	s.metrics.AddTaskChanges(ctx, string(account.Provider), len(changed))
	for _, t := range changed {
		if err := s.publisher.Publish(ctx, events.NewTaskChanged(t, "webhook", now)); err != nil {
			s.logger.Warn("publishing task change", zap.String("task", t.ID), zap.Error(err))
		}
	}
	return nil
}
