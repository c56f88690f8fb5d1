package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/refresh"
	"github.com/nhle/ambrose/internal/source"
)

type staticAccounts []model.Account

func (s staticAccounts) ListAccounts(context.Context) ([]model.Account, error) {
	return s, nil
}

type scriptedRefresher struct {
	mu    gosync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, a model.Account) (*refresh.Result, error)
}

func (r *scriptedRefresher) Refresh(ctx context.Context, a model.Account) (*refresh.Result, error) {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[a.ID]++
	r.mu.Unlock()
	return r.fn(ctx, a)
}

func (r *scriptedRefresher) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	t.Parallel()

	accounts := staticAccounts{
		{ID: "bad", Nickname: "Broken", Provider: model.ProviderDevOps},
		{ID: "panics", Nickname: "Panicky", Provider: model.ProviderGitHub},
		{ID: "good", Nickname: "Fine", Provider: model.ProviderWeb},
	}
	r := &scriptedRefresher{fn: func(_ context.Context, a model.Account) (*refresh.Result, error) {
		switch a.ID {
		case "bad":
			return nil, &source.ProviderError{Provider: a.Provider, StatusCode: 401, Err: errors.New("denied")}
		case "panics":
			panic("boom")
		}
		return &refresh.Result{AccountID: a.ID, Checked: 1}, nil
	}}

	s := New(accounts, r, WithWorkers(2))
	report := s.RunCycle(context.Background())

	assert.ElementsMatch(t, []string{"bad", "panics", "good"}, report.Attempted)
	require.Len(t, report.Failed, 2)
	assert.Contains(t, report.Failed, "bad")
	assert.ErrorContains(t, report.Failed["panics"], "boom")
	assert.Equal(t, 1, r.count("good"))

	byID := map[string]SyncStatus{}
	for _, st := range s.Statuses() {
		byID[st.AccountID] = st
	}
	assert.Equal(t, SyncIdle, byID["good"].State)
	assert.False(t, byID["good"].LastSync.IsZero())
	assert.Equal(t, SyncError, byID["bad"].State)
	assert.True(t, byID["bad"].AuthError)
	assert.Equal(t, "Panicky", byID["panics"].Nickname)
}

func TestRunCycleAppliesAccountTimeout(t *testing.T) {
	t.Parallel()

	r := &scriptedRefresher{fn: func(ctx context.Context, a model.Account) (*refresh.Result, error) {
		if a.ID == "slow" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &refresh.Result{AccountID: a.ID}, nil
	}}
	s := New(staticAccounts{{ID: "slow"}, {ID: "fast"}}, r, WithAccountTimeout(20*time.Millisecond))

	report := s.RunCycle(context.Background())
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed["slow"], context.DeadlineExceeded)
}

func TestRunCycleBoundsWorkers(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	r := &scriptedRefresher{fn: func(context.Context, model.Account) (*refresh.Result, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return &refresh.Result{}, nil
	}}

	var accounts staticAccounts
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		accounts = append(accounts, model.Account{ID: id})
	}
	s := New(accounts, r, WithWorkers(2))
	report := s.RunCycle(context.Background())

	assert.Len(t, report.Attempted, 6)
	assert.Empty(t, report.Failed)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestStartRunsImmediatelyAndOnTrigger(t *testing.T) {
	t.Parallel()

	r := &scriptedRefresher{fn: func(_ context.Context, a model.Account) (*refresh.Result, error) {
		return &refresh.Result{AccountID: a.ID}, nil
	}}
	s := New(staticAccounts{{ID: "a"}}, r, WithInterval(time.Hour))

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool { return r.count("a") >= 1 }, time.Second, 5*time.Millisecond)
	s.Trigger()
	require.Eventually(t, func() bool { return r.count("a") >= 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestAccountLocks(t *testing.T) {
	t.Parallel()

	locks := NewAccountLocks()
	release, err := locks.Acquire(context.Background(), "a")
	require.NoError(t, err)

	// Another account is independent.
	other, err := locks.Acquire(context.Background(), "b")
	require.NoError(t, err)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Acquire(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	again, err := locks.Acquire(context.Background(), "a")
	require.NoError(t, err)
	again()
}
