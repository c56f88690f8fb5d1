package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/service"
)

func TestWriteTasks(t *testing.T) {
	t.Parallel()

	tasks := []service.TaskView{
		{ID: "t1", Kind: model.KindBuild, Name: "CI", Value: model.StatusFailed, HasChanged: true},
		{ID: "t2", Kind: model.KindHealthcheck, Name: "site", Value: model.StatusHealthy},
	}

	t.Run("table", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, writeTasks(&buf, "table", tasks))
		assert.Contains(t, buf.String(), "KIND")
		assert.Contains(t, buf.String(), "failed")
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, writeTasks(&buf, "json", tasks))
		var got []map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Len(t, got, 2)
		assert.Equal(t, "CI", got[0]["name"])
	})

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, writeTasks(&buf, "yaml", tasks))
		var got []map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Len(t, got, 2)
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, writeTasks(&bytes.Buffer{}, "xml", tasks))
	})
}

func TestCommandsRegistered(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"serve", "refresh", "user", "account", "tasks", "device", "watch", "config"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
