package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ambrose/internal/message"
	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/service"
	"github.com/nhle/ambrose/internal/store"
	"github.com/nhle/ambrose/tests/testutil"
)

func seedTask(t *testing.T, st store.Store, accountID string, task model.Task) *model.Task {
	t.Helper()
	task.AccountID = accountID
	created, err := st.CreateTask(context.Background(), task)
	require.NoError(t, err)
	return created
}

func TestDeviceVisitSettlesChangedLights(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()
	user, account := testutil.SeedAccount(t, fx.store, "ada", model.ProviderWeb)

	task := seedTask(t, fx.store, account.ID, model.Task{
		Kind: model.KindHealthcheck, Path: "/up",
		Value: model.StatusNotHealthy, PrevValue: model.StatusHealthy, HasChanged: true,
	})
	require.NoError(t, fx.users.SetStatusColor(ctx, user.ID, model.StatusNotHealthy, model.Color{R: 255}))

	device, err := fx.users.CreateDevice(ctx, user.ID, "desk", 2)
	require.NoError(t, err)
	require.NoError(t, fx.users.AssignLight(ctx, user.ID, device.ID, 0, &task.ID))

	lights, err := fx.users.MarkDeviceVisit(ctx, device.UUID)
	require.NoError(t, err)
	require.Len(t, lights, 2)
	assert.Equal(t, model.LightInitiallyBlinking, lights[0].Light.Type)
	assert.Equal(t, model.Color{R: 255}, lights[0].Light.PrimaryColor)
	assert.Equal(t, model.LightSteady, lights[1].Light.Type)
	assert.Nil(t, lights[1].TaskID)

	lights, err = fx.users.MarkDeviceVisit(ctx, device.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.LightSteady, lights[0].Light.Type)

	got, err := fx.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, got.HasChanged)
	assert.Equal(t, model.StatusHealthy, got.PrevValue, "history is kept")

	devices, err := fx.users.Devices(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.NotNil(t, devices[0].LastContact)

	_, err = fx.users.MarkDeviceVisit(ctx, "unknown")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestDeviceLightsDoNotSettle(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()
	user, account := testutil.SeedAccount(t, fx.store, "ada", model.ProviderWeb)
	task := seedTask(t, fx.store, account.ID, model.Task{
		Kind: model.KindHealthcheck, Path: "/up", Value: model.StatusHealthy, HasChanged: true,
	})
	device, err := fx.users.CreateDevice(ctx, user.ID, "desk", 1)
	require.NoError(t, err)
	require.NoError(t, fx.users.AssignLight(ctx, user.ID, device.ID, 0, &task.ID))

	for range 2 {
		lights, err := fx.users.DeviceLights(ctx, user.ID, device.ID)
		require.NoError(t, err)
		assert.Equal(t, model.LightInitiallyBlinking, lights[0].Light.Type)
	}
}

func TestUserOwnershipChecks(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()
	owner, account := testutil.SeedAccount(t, fx.store, "ada", model.ProviderWeb)
	intruder, _ := testutil.SeedAccount(t, fx.store, "grace", model.ProviderWeb)
	task := seedTask(t, fx.store, account.ID, model.Task{Kind: model.KindHealthcheck, Path: "/up"})
	device, err := fx.users.CreateDevice(ctx, owner.ID, "desk", 1)
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
	}{
		{"get task", func() error { _, err := fx.users.Task(ctx, intruder.ID, task.ID); return err }},
		{"delete task", func() error { return fx.users.DeleteTask(ctx, intruder.ID, task.ID) }},
		{"mark viewed", func() error { _, err := fx.users.MarkViewed(ctx, intruder.ID, []string{task.ID}); return err }},
		{"device lights", func() error { _, err := fx.users.DeviceLights(ctx, intruder.ID, device.ID); return err }},
		{"assign other task", func() error {
			intruderDevice, err := fx.users.CreateDevice(ctx, intruder.ID, "mine", 1)
			if err != nil {
				return err
			}
			return fx.users.AssignLight(ctx, intruder.ID, intruderDevice.ID, 0, &task.ID)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), service.ErrUnauthorized)
		})
	}
}

func TestUpdateTaskSettings(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()
	user, account := testutil.SeedAccount(t, fx.store, "ada", model.ProviderDevOps)
	task := seedTask(t, fx.store, account.ID, model.Task{Kind: model.KindBuild, Project: "web", DefinitionID: 1, Pipeline: "CI"})

	webhook, branch := true, "release/1"
	got, err := fx.users.UpdateTask(ctx, user.ID, task.ID, store.TaskSettings{UsesWebhook: &webhook, Branch: &branch})
	require.NoError(t, err)
	assert.True(t, got.UsesWebhook)
	assert.Equal(t, "release/1", got.Branch)
	assert.Equal(t, "CI", got.Pipeline)
}

func TestMessages(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()
	user, account := testutil.SeedAccount(t, fx.store, "ada", model.ProviderWeb)
	task := seedTask(t, fx.store, account.ID, model.Task{
		Kind: model.KindHealthcheck, Path: "/up", Nickname: "site", Value: model.StatusHealthy,
	})

	msg, err := fx.users.CreateMessage(ctx, user.ID, model.Message{
		Kind: model.MessageTask, Nickname: "status", Text: "{name} is {}", TaskID: &task.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "{name} is {value}", msg.Text)

	text, err := fx.users.RenderMessage(ctx, user.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "site is healthy", text)

	require.NoError(t, fx.users.DeleteTask(ctx, user.ID, task.ID))
	text, err = fx.users.RenderMessage(ctx, user.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, message.Invalid, text)

	dt, err := fx.users.CreateMessage(ctx, user.ID, model.Message{Kind: model.MessageDateTime, Text: "Now: {}"})
	require.NoError(t, err)
	assert.Equal(t, message.DefaultDateFormat, dt.DateFormat)
	text, err = fx.users.RenderMessage(ctx, user.ID, dt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Now: Jun 01 at 0900", text)

	_, err = fx.users.CreateMessage(ctx, user.ID, model.Message{Kind: "poem", Text: "x"})
	assert.ErrorIs(t, err, service.ErrInvalid)

	msgs, err := fx.users.Messages(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestGaugePositions(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()
	user, account := testutil.SeedAccount(t, fx.store, "ada", model.ProviderAppInsights)
	task := seedTask(t, fx.store, account.ID, model.Task{Kind: model.KindMetric, Metric: "requests/count", Value: "75"})

	_, err := fx.users.CreateGauge(ctx, user.ID, model.Gauge{Name: "bad", Min: 1, Max: 1})
	assert.ErrorIs(t, err, service.ErrInvalid)

	g, err := fx.users.CreateGauge(ctx, user.ID, model.Gauge{Name: "load", Min: 50, Max: 100, TaskID: &task.ID})
	require.NoError(t, err)

	views, err := fx.users.Gauges(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "75", views[0].Value)
	assert.InDelta(t, 0.5, views[0].Position, 1e-9)

	require.NoError(t, fx.users.DeleteGauge(ctx, user.ID, g.ID))
	assert.ErrorIs(t, fx.users.DeleteGauge(ctx, user.ID, g.ID), service.ErrNotFound)
}
