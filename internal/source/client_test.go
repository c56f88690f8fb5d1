package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ambrose/internal/model"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRetriesRateLimitedRequests(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok": true}`))
	})

	c := NewClient(model.ProviderGitHub, nil)
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientGivesUpAfterMaxTries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c := NewClient(model.ProviderGitHub, nil, WithMaxTries(3), WithInitialBackoff(time.Millisecond))
	err := c.GetJSON(context.Background(), srv.URL, nil)
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := NewClient(model.ProviderDevOps, nil).GetJSON(context.Background(), srv.URL, nil)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusInternalServerError, pe.StatusCode)
	assert.Equal(t, model.ProviderDevOps, pe.Provider)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, IsAuthError(err))
}

func TestClientMalformedPayload(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	var out map[string]any
	err := NewClient(model.ProviderAppInsights, nil).GetJSON(context.Background(), srv.URL, &out)
	assert.True(t, IsProviderError(err))
}

func TestClientTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(model.ProviderWeb, nil).Fetch(context.Background(), url)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Zero(t, pe.StatusCode)
}

func TestAuthStrategies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		auth  Auth
		check func(t *testing.T, r *http.Request)
	}{
		{"basic", BasicAuth("u", "p"), func(t *testing.T, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "u", user)
			assert.Equal(t, "p", pass)
		}},
		{"bearer", BearerAuth("tok"), func(t *testing.T, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		}},
		{"header", HeaderAuth("x-api-key", "k"), func(t *testing.T, r *http.Request) {
			assert.Equal(t, "k", r.Header.Get("x-api-key"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				tt.check(t, r)
				w.WriteHeader(http.StatusNoContent)
			})
			require.NoError(t, NewClient(model.ProviderWeb, tt.auth).GetJSON(context.Background(), srv.URL, nil))
		})
	}
}

func TestStatusSummaryFirstWins(t *testing.T) {
	t.Parallel()

	s := NewStatusSummary("x")
	s.SetDefinition(1, model.StatusSucceeded)
	s.SetDefinition(1, model.StatusFailed)

	v, ok := s.StatusForDefinition(1)
	assert.True(t, ok)
	assert.Equal(t, model.StatusSucceeded, v)

	var nilSummary *StatusSummary
	_, ok = nilSummary.StatusForEnvironment(1)
	assert.False(t, ok)
	assert.True(t, nilSummary.Empty())
}
