package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/tests/testutil"
)

func (f *fakeDevOps) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchCalls
}

func TestRefreshKeepsViewedFlagSetDuringFetch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		remote      string
		wantChanged bool
		wantPrev    string
	}{
		{name: "unchanged remote keeps the task viewed", remote: model.StatusSucceeded, wantChanged: false, wantPrev: ""},
		{name: "changed remote flags the task again", remote: model.StatusFailed, wantChanged: true, wantPrev: model.StatusSucceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			st := testutil.NewTestStore(t)
			user, account := testutil.SeedAccount(t, st, "ada", model.ProviderDevOps)
			task, err := st.CreateTask(ctx, model.Task{
				AccountID: account.ID, Kind: model.KindBuild, Project: "web",
				DefinitionID: 1, Pipeline: "CI",
				Value: model.StatusSucceeded, HasChanged: true,
			})
			require.NoError(t, err)

			src := &fakeDevOps{block: make(chan struct{}), builds: map[int]string{1: tt.remote}}
			r := New(st, factory{src}, plainText{}, noLock{}, WithClock(func() time.Time { return fixedNow }))

			done := make(chan error, 1)
			go func() {
				_, err := r.Refresh(ctx, *account)
				done <- err
			}()

			require.Eventually(t, func() bool { return src.calls() == 1 }, time.Second, 5*time.Millisecond)

			// The device shows the light and clears the flag while the
			// provider call is still in flight.
			n, err := st.MarkTasksViewed(ctx, user.ID, nil)
			require.NoError(t, err)
			require.EqualValues(t, 1, n)

			close(src.block)
			require.NoError(t, <-done)

			got, err := st.GetTask(ctx, task.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.remote, got.Value)
			assert.Equal(t, tt.wantChanged, got.HasChanged)
			assert.Equal(t, tt.wantPrev, got.PrevValue)
		})
	}
}
