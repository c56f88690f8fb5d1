package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ambrose/internal/model"
)

func release(env int, name string) model.Task {
	return model.Task{Kind: model.KindRelease, Project: "web", DefinitionID: 1, EnvironmentID: env, Pipeline: name}
}

func keyOf(t model.Task) model.TaskKey { return t.Key() }

func envIDs(tasks []model.Task) []int {
	ids := make([]int, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.EnvironmentID)
	}
	return ids
}

func TestDiffSetOperations(t *testing.T) {
	t.Parallel()

	a, b, c, d := release(1, "A"), release(2, "B"), release(3, "C"), release(4, "D")

	plan := Diff([]model.Task{a, b, c}, []model.Task{b, c, d}, keyOf)

	assert.Equal(t, []int{1}, envIDs(plan.ToAdd))
	assert.Equal(t, []int{4}, envIDs(plan.ToRemove))
	require.Len(t, plan.ToUpdate, 2)
	assert.Equal(t, 2, plan.ToUpdate[0].Current.EnvironmentID)
	assert.Equal(t, 3, plan.ToUpdate[1].Current.EnvironmentID)
	assert.Empty(t, plan.Conflicts)
	assert.False(t, plan.Empty())
}

func TestDiffAgainstItself(t *testing.T) {
	t.Parallel()

	set := []model.Task{release(1, "A"), release(2, "B")}

	plan := Diff(set, set, keyOf)

	assert.Empty(t, plan.ToAdd)
	assert.Empty(t, plan.ToRemove)
	assert.Len(t, plan.ToUpdate, 2)
	assert.True(t, plan.Empty())
}

func TestDiffMatchesAcrossAttributeDrift(t *testing.T) {
	t.Parallel()

	current := release(2, "Deploy")
	current.ID = "task-1"
	current.UsesWebhook = true
	discovered := release(2, "Deploy (renamed)")

	plan := Diff([]model.Task{discovered}, []model.Task{current}, keyOf)

	require.Len(t, plan.ToUpdate, 1)
	assert.Empty(t, plan.ToAdd)
	assert.Empty(t, plan.ToRemove)
	assert.Equal(t, "task-1", plan.ToUpdate[0].Current.ID)
	assert.True(t, plan.ToUpdate[0].Current.UsesWebhook)
	assert.Equal(t, "Deploy (renamed)", plan.ToUpdate[0].Discovered.Pipeline)
}

func TestDiffReportsDuplicateKeys(t *testing.T) {
	t.Parallel()

	first, dup := release(1, "first"), release(1, "second")

	plan := Diff([]model.Task{first, dup}, nil, keyOf)

	require.Len(t, plan.ToAdd, 1)
	assert.Equal(t, "first", plan.ToAdd[0].Pipeline)
	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, 2, plan.Conflicts[0].Count)
	assert.False(t, plan.Conflicts[0].Current)
	assert.Contains(t, plan.Conflicts[0].Error(), "discovered")
}

func TestDiffWorksOnTuples(t *testing.T) {
	t.Parallel()

	type pair struct{ a, b int }
	plan := Diff([]pair{{1, 2}, {3, 4}}, []pair{{3, 4}, {5, 6}}, func(p pair) pair { return p })

	assert.Equal(t, []pair{{1, 2}}, plan.ToAdd)
	assert.Equal(t, []pair{{5, 6}}, plan.ToRemove)
	assert.Len(t, plan.ToUpdate, 1)
}
