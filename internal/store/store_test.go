package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/store"
	"github.com/nhle/ambrose/tests/testutil"
)

func releaseTask(defID, envID int, pipeline, env string) model.Task {
	return model.Task{
		Kind:          model.KindRelease,
		Project:       "web",
		DefinitionID:  defID,
		EnvironmentID: envID,
		Pipeline:      pipeline,
		Environment:   env,
	}
}

func TestUsers(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, model.User{Username: "ada"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)

	got, err := s.GetUserByUsername(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.CreateUser(ctx, model.User{Username: "ada"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAccountsCascadeTasks(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	user, account := testutil.SeedAccount(t, s, "ada", model.ProviderDevOps)

	task := releaseTask(4, 9, "Deploy", "Prod")
	task.AccountID = account.ID
	_, err := s.CreateTask(ctx, task)
	require.NoError(t, err)

	accounts, err := s.ListAccountsForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	require.NoError(t, s.DeleteAccount(ctx, account.ID))

	tasks, err := s.ListTasks(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.ErrorIs(t, s.DeleteAccount(ctx, account.ID), store.ErrNotFound)
}

func TestCreateTaskRejectsDuplicateKey(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	_, account := testutil.SeedAccount(t, s, "ada", model.ProviderDevOps)

	first := releaseTask(4, 9, "Deploy", "Prod")
	first.AccountID = account.ID
	_, err := s.CreateTask(ctx, first)
	require.NoError(t, err)

	again := releaseTask(4, 9, "Renamed", "Production")
	again.AccountID = account.ID
	_, err = s.CreateTask(ctx, again)
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestApplyTaskPlan(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	_, account := testutil.SeedAccount(t, s, "ada", model.ProviderDevOps)

	require.NoError(t, s.ApplyTaskPlan(ctx, account.ID, store.TaskPlan{
		Add: []model.Task{releaseTask(1, 1, "A", "Prod"), releaseTask(2, 1, "B", "Prod")},
	}))
	tasks, err := s.ListTasks(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	b := tasks[1]
	b.Pipeline = "B renamed"
	b.UsesWebhook = true

	err = s.ApplyTaskPlan(ctx, account.ID, store.TaskPlan{
		Add:    []model.Task{releaseTask(3, 1, "C", "Prod")},
		Remove: []string{tasks[0].ID},
		Update: []model.Task{b},
	})
	require.NoError(t, err)

	tasks, err = s.ListTasks(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	got, err := s.GetTask(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "B renamed", got.Pipeline)
	assert.True(t, got.UsesWebhook)
}

func TestApplyTaskPlanIsAtomic(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	_, account := testutil.SeedAccount(t, s, "ada", model.ProviderDevOps)

	require.NoError(t, s.ApplyTaskPlan(ctx, account.ID, store.TaskPlan{
		Add: []model.Task{releaseTask(1, 1, "A", "Prod")},
	}))
	before, err := s.ListTasks(ctx, account.ID)
	require.NoError(t, err)

	err = s.ApplyTaskPlan(ctx, account.ID, store.TaskPlan{
		Add:    []model.Task{releaseTask(2, 1, "B", "Prod"), releaseTask(2, 1, "B", "Prod")},
		Remove: []string{before[0].ID},
	})
	require.ErrorIs(t, err, store.ErrDuplicate)

	after, err := s.ListTasks(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)
}

func TestCommitTaskValuesAndViewed(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	user, account := testutil.SeedAccount(t, s, "ada", model.ProviderDevOps)
	_, other := testutil.SeedAccount(t, s, "bob", model.ProviderDevOps)

	require.NoError(t, s.ApplyTaskPlan(ctx, account.ID, store.TaskPlan{
		Add: []model.Task{releaseTask(1, 1, "A", "Prod"), releaseTask(2, 1, "B", "Prod")},
	}))
	tasks, err := s.ListTasks(ctx, account.ID)
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range tasks {
		tasks[i].SetValue(model.StatusSucceeded, now)
	}
	require.NoError(t, s.CommitTaskValues(ctx, account.ID, tasks))

	// Writes scoped to another account touch nothing.
	tasks[0].SetValue(model.StatusFailed, now)
	require.NoError(t, s.CommitTaskValues(ctx, other.ID, tasks[:1]))

	got, err := s.GetTask(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, got.Value)
	assert.True(t, got.HasChanged)
	require.NotNil(t, got.LastUpdate)
	assert.True(t, now.Equal(*got.LastUpdate))

	n, err := s.MarkTasksViewed(ctx, user.ID, []string{tasks[0].ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.MarkTasksViewed(ctx, user.ID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	all, err := s.ListTasksForUser(ctx, user.ID)
	require.NoError(t, err)
	for _, task := range all {
		assert.False(t, task.HasChanged, task.Name())
		assert.Equal(t, model.StatusSucceeded, task.Value)
	}
}

func TestTaskOwnerAndSettings(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	user, account := testutil.SeedAccount(t, s, "ada", model.ProviderGitHub)

	created, err := s.CreateTask(ctx, model.Task{
		AccountID: account.ID, Kind: model.KindRepository, Owner: "octo", Repo: "hello",
	})
	require.NoError(t, err)

	owner, err := s.TaskOwner(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, owner)

	on := true
	nick := "Hello"
	require.NoError(t, s.UpdateTaskSettings(ctx, created.ID, store.TaskSettings{UsesWebhook: &on, Nickname: &nick}))

	got, err := s.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.UsesWebhook)
	assert.Equal(t, "Hello", got.Name())

	assert.ErrorIs(t, s.UpdateTaskSettings(ctx, "missing", store.TaskSettings{Nickname: &nick}), store.ErrNotFound)
}

func TestStatusColors(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	user, _ := testutil.SeedAccount(t, s, "ada", model.ProviderWeb)

	require.NoError(t, s.SetStatusColor(ctx, user.ID, "Succeeded", model.Color{G: 127}))
	require.NoError(t, s.SetStatusColor(ctx, user.ID, "succeeded", model.Color{G: 255}))
	require.NoError(t, s.SetStatusColor(ctx, user.ID, "failed", model.Color{R: 127}))

	colors, err := s.ListStatusColors(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, colors, 2)
	assert.Equal(t, "failed", colors[0].Status)
	assert.Equal(t, model.Color{G: 255}, colors[1].Color())

	require.NoError(t, s.DeleteStatusColor(ctx, user.ID, "failed"))
	assert.ErrorIs(t, s.DeleteStatusColor(ctx, user.ID, "failed"), store.ErrNotFound)
}

func TestDevicesAndLights(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	user, account := testutil.SeedAccount(t, s, "ada", model.ProviderWeb)

	task, err := s.CreateTask(ctx, model.Task{AccountID: account.ID, Kind: model.KindHealthcheck, Path: "/health"})
	require.NoError(t, err)

	device, err := s.CreateDevice(ctx, model.Device{UserID: user.ID, Name: "desk"}, 3)
	require.NoError(t, err)

	byUUID, err := s.GetDeviceByUUID(ctx, device.UUID)
	require.NoError(t, err)
	assert.Equal(t, device.ID, byUUID.ID)
	assert.Nil(t, byUUID.LastContact)

	require.NoError(t, s.SetLight(ctx, device.ID, 1, &task.ID))
	assert.ErrorIs(t, s.SetLight(ctx, device.ID, 7, &task.ID), store.ErrNotFound)

	lights, err := s.ListLights(ctx, device.ID)
	require.NoError(t, err)
	require.Len(t, lights, 3)
	assert.Nil(t, lights[0].TaskID)
	require.NotNil(t, lights[1].TaskID)
	assert.Equal(t, task.ID, *lights[1].TaskID)

	require.NoError(t, s.TouchDevice(ctx, device.ID))
	touched, err := s.GetDevice(ctx, device.ID)
	require.NoError(t, err)
	assert.NotNil(t, touched.LastContact)

	// Deleting the task leaves the slot empty.
	require.NoError(t, s.DeleteTask(ctx, task.ID))
	lights, err = s.ListLights(ctx, device.ID)
	require.NoError(t, err)
	assert.Nil(t, lights[1].TaskID)
}

func TestMessagesAndGauges(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	user, _ := testutil.SeedAccount(t, s, "ada", model.ProviderWeb)

	msg, err := s.CreateMessage(ctx, model.Message{
		UserID:  user.ID,
		Kind:    model.MessageRandom,
		Text:    "{choice}",
		Choices: model.StringList{"hello", "hi"},
	})
	require.NoError(t, err)

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StringList{"hello", "hi"}, got.Choices)

	got.Text = "changed {choice}"
	got.Choices = nil
	require.NoError(t, s.UpdateMessage(ctx, *got))

	msgs, err := s.ListMessages(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "changed {choice}", msgs[0].Text)
	assert.Empty(t, msgs[0].Choices)

	require.NoError(t, s.DeleteMessage(ctx, msg.ID))
	_, err = s.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.CreateGauge(ctx, model.Gauge{UserID: user.ID, Name: "latency", Min: 0, Max: 500})
	require.NoError(t, err)
	gauges, err := s.ListGauges(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, gauges, 1)
	assert.InDelta(t, 500.0, gauges[0].Max, 0.0001)
}

func TestCommitTaskValuesLeavesViewedFlagWithoutChange(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	user, account := testutil.SeedAccount(t, s, "ada", model.ProviderDevOps)

	require.NoError(t, s.ApplyTaskPlan(ctx, account.ID, store.TaskPlan{
		Add: []model.Task{releaseTask(1, 1, "A", "Prod")},
	}))
	stale, err := s.ListTasks(ctx, account.ID)
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stale[0].SetValue(model.StatusSucceeded, now)
	require.NoError(t, s.CommitTaskValues(ctx, account.ID, stale))

	// Read, then cleared by a viewer before the next commit lands.
	stale, err = s.ListTasks(ctx, account.ID)
	require.NoError(t, err)
	_, err = s.MarkTasksViewed(ctx, user.ID, nil)
	require.NoError(t, err)

	stale[0].PRCount = 3
	require.NoError(t, s.CommitTaskValues(ctx, account.ID, stale))

	got, err := s.GetTask(ctx, stale[0].ID)
	require.NoError(t, err)
	assert.False(t, got.HasChanged)
	assert.Equal(t, 3, got.PRCount)
	require.NotNil(t, got.LastUpdate)
	assert.True(t, now.Equal(*got.LastUpdate))
}

func TestMarkTasksSeenSkipsMovedValues(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	user, account := testutil.SeedAccount(t, s, "ada", model.ProviderDevOps)
	_, other := testutil.SeedAccount(t, s, "bob", model.ProviderDevOps)

	require.NoError(t, s.ApplyTaskPlan(ctx, account.ID, store.TaskPlan{
		Add: []model.Task{releaseTask(1, 1, "A", "Prod"), releaseTask(2, 1, "B", "Prod")},
	}))
	require.NoError(t, s.ApplyTaskPlan(ctx, other.ID, store.TaskPlan{
		Add: []model.Task{releaseTask(3, 1, "C", "Prod")},
	}))
	tasks, err := s.ListTasks(ctx, account.ID)
	require.NoError(t, err)
	foreign, err := s.ListTasks(ctx, other.ID)
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range tasks {
		tasks[i].SetValue(model.StatusFailed, now)
	}
	require.NoError(t, s.CommitTaskValues(ctx, account.ID, tasks))
	foreign[0].SetValue(model.StatusFailed, now)
	require.NoError(t, s.CommitTaskValues(ctx, other.ID, foreign))

	n, err := s.MarkTasksSeen(ctx, user.ID, map[string]string{
		tasks[0].ID:   model.StatusFailed,
		tasks[1].ID:   model.StatusSucceeded, // shown before the value moved
		foreign[0].ID: model.StatusFailed,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	first, err := s.GetTask(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.False(t, first.HasChanged)

	second, err := s.GetTask(ctx, tasks[1].ID)
	require.NoError(t, err)
	assert.True(t, second.HasChanged)

	theirs, err := s.GetTask(ctx, foreign[0].ID)
	require.NoError(t, err)
	assert.True(t, theirs.HasChanged)

	n, err = s.MarkTasksSeen(ctx, user.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
