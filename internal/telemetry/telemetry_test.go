package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	t.Parallel()

	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordRefresh(ctx, "github", time.Second, true)
		m.AddTaskChanges(ctx, "github", 2)
		m.AddProviderError(ctx, "github")
		m.AddWebhook(ctx, "github", "applied")
	})

	got, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPrometheusHandlerExposesInstruments(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	m, err := NewMetrics(p.MeterProvider())
	require.NoError(t, err)
	m.AddTaskChanges(context.Background(), "devops", 3)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ambrose_task_changes_total")
}

func TestDisabledProvider(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(false)
	require.NoError(t, err)

	m, err := NewMetrics(p.MeterProvider())
	require.NoError(t, err)
	m.AddProviderError(context.Background(), "web")

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, p.Shutdown(context.Background()))
}
