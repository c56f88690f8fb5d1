package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ambrose/internal/api"
	"github.com/nhle/ambrose/internal/credential"
	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/refresh"
	"github.com/nhle/ambrose/internal/service"
	"github.com/nhle/ambrose/internal/source/registry"
	"github.com/nhle/ambrose/internal/store"
	ambsync "github.com/nhle/ambrose/internal/sync"
	"github.com/nhle/ambrose/internal/telemetry"
	"github.com/nhle/ambrose/tests/testutil"
)

type env struct {
	store   *store.SQLStore
	handler http.Handler
	user    *model.User
	account *model.Account
	task    *model.Task
}

func newEnv(t *testing.T, opts ...api.Option) *env {
	t.Helper()

	st := testutil.NewTestStore(t)
	cipher, err := credential.NewCipher("api test")
	require.NoError(t, err)
	sources := registry.New(registry.Endpoints{})
	locks := ambsync.NewAccountLocks()
	refresher := refresh.New(st, sources, cipher, locks)

	accounts := service.NewAccountService(st, sources, cipher, locks, refresher)
	users := service.NewUserService(st)

	user, account := testutil.SeedAccount(t, st, "ada", model.ProviderDevOps)
	task, err := st.CreateTask(context.Background(), model.Task{
		AccountID: account.ID, Kind: model.KindRelease, Project: "web",
		DefinitionID: 7, EnvironmentID: 70, Pipeline: "Deploy", Environment: "QA",
		Value: model.StatusSucceeded, HasChanged: true,
	})
	require.NoError(t, err)

	return &env{
		store:   st,
		handler: api.NewServer(accounts, users, opts...),
		user:    user,
		account: account,
		task:    task,
	}
}

func (e *env) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rr := e.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestHealthzReportsFailingCheck(t *testing.T) {
	t.Parallel()

	e := newEnv(t, api.WithHealthCheck(func(context.Context) error { return errors.New("db down") }))
	rr := e.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "unavailable")
}

func TestMessageKinds(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rr := e.do(t, http.MethodGet, "/api/messages/kinds", e.user.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var kinds []struct {
		Kind      string   `json:"kind"`
		Variables []string `json:"variables"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &kinds))
	require.Len(t, kinds, 4)
	assert.Equal(t, "task", kinds[2].Kind)
	assert.Equal(t, "value", kinds[2].Variables[0])
}

func TestUserRoutesRequireUser(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rr := e.do(t, http.MethodGet, "/api/tasks", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestTaskRoutes(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	other, err := e.store.CreateUser(context.Background(), model.User{Username: "grace"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		want   int
	}{
		{"list", http.MethodGet, "/api/tasks", e.user.ID, "", http.StatusOK},
		{"get", http.MethodGet, "/api/tasks/" + e.task.ID, e.user.ID, "", http.StatusOK},
		{"get foreign", http.MethodGet, "/api/tasks/" + e.task.ID, other.ID, "", http.StatusForbidden},
		{"get missing", http.MethodGet, "/api/tasks/nope", e.user.ID, "", http.StatusNotFound},
		{"patch malformed", http.MethodPatch, "/api/tasks/" + e.task.ID, e.user.ID, "{", http.StatusBadRequest},
		{"patch unknown field", http.MethodPatch, "/api/tasks/" + e.task.ID, e.user.ID, `{"value":"x"}`, http.StatusBadRequest},
		{"viewed foreign", http.MethodPost, "/api/tasks/viewed", other.ID, `{"task_ids":["` + e.task.ID + `"]}`, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestPatchAndViewTask(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rr := e.do(t, http.MethodPatch, "/api/tasks/"+e.task.ID, e.user.ID, `{"uses_webhook":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var task model.Task
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &task))
	assert.True(t, task.UsesWebhook)

	rr = e.do(t, http.MethodPost, "/api/tasks/viewed", e.user.ID, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"cleared":1}`, rr.Body.String())

	rr = e.do(t, http.MethodDelete, "/api/tasks/"+e.task.ID, e.user.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestReleaseHook(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	payload := `{"resource":{"environment":{"status":"inProgress","definitionEnvironmentId":70,"releaseDefinition":{"id":7}}}}`

	rr := e.do(t, http.MethodPost, "/hooks/devops/"+e.account.ID, "", payload)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"matched":1,"changed":1,"outcome":"applied"}`, rr.Body.String())

	got, err := e.store.GetTask(context.Background(), e.task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, got.Value)

	rr = e.do(t, http.MethodPost, "/hooks/devops/"+e.account.ID, "", "not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPost, "/hooks/devops/missing", "", payload)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGitHubHookIgnoresOtherEvents(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/hooks/github/"+e.account.ID+"/"+e.task.ID, strings.NewReader(`{"zen":"hi"}`))
	req.Header.Set("X-GitHub-Event", "ping")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"matched":0,"changed":0,"outcome":"ignored"}`, rr.Body.String())
}

func TestDeviceVisit(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	device, err := e.store.CreateDevice(ctx, model.Device{UserID: e.user.ID, Name: "desk"}, 1)
	require.NoError(t, err)
	require.NoError(t, e.store.SetLight(ctx, device.ID, 0, &e.task.ID))

	rr := e.do(t, http.MethodGet, "/device/"+device.UUID+"/lights", "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var lights []service.Light
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lights))
	require.Len(t, lights, 1)
	assert.Equal(t, model.LightInitiallyBlinking, lights[0].Light.Type)

	rr = e.do(t, http.MethodGet, "/api/devices/"+device.ID+"/lights", e.user.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lights))
	assert.Equal(t, model.LightSteady, lights[0].Light.Type, "the visit settled the light")

	rr = e.do(t, http.MethodGet, "/device/unknown/lights", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsAndSyncRoutes(t *testing.T) {
	t.Parallel()

	provider, err := telemetry.NewProvider(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	e := newEnv(t,
		api.WithMetricsHandler(provider.Handler()),
		api.WithSyncStatus(func() []ambsync.SyncStatus {
			return []ambsync.SyncStatus{{AccountID: "a", State: ambsync.SyncIdle}}
		}),
	)

	rr := e.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/sync", e.user.ID, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"account_id":"a"`)
	assert.Contains(t, rr.Body.String(), `"state":"idle"`)
}
