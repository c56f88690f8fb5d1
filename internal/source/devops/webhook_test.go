package devops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ambrose/internal/model"
)

func TestParseReleaseWebhook(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
	  "eventType": "ms.vss-release.deployment-completed-event",
	  "resource": {
	    "environment": {
	      "id": 5001,
	      "name": "prod",
	      "status": "Rejected",
	      "definitionEnvironmentId": 12,
	      "releaseDefinition": {"id": 7, "name": "Web Deploy"}
	    },
	    "project": {"id": "abc", "name": "web"}
	  }
	}`)

	ev, err := ParseReleaseWebhook(payload)
	require.NoError(t, err)

	assert.Equal(t, &ReleaseEvent{
		Project:       "web",
		DefinitionID:  7,
		EnvironmentID: 12,
		Status:        model.StatusFailed,
	}, ev)
}

func TestParseReleaseWebhookPendingApproval(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"resource": {"environment": {
	  "status": "inProgress",
	  "definitionEnvironmentId": 3,
	  "releaseDefinition": {"id": 2},
	  "postDeployApprovals": [{"status": "pending"}, {"status": "approved"}]
	}}}`)

	ev, err := ParseReleaseWebhook(payload)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingApproval, ev.Status)
	assert.Empty(t, ev.Project)
}

func TestParseReleaseWebhookRejectsIncompletePayloads(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"invalid json":        `{"resource":`,
		"missing environment": `{"resource": {}}`,
		"missing definition":  `{"resource": {"environment": {"status": "succeeded", "definitionEnvironmentId": 3}}}`,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseReleaseWebhook([]byte(payload))
			assert.Error(t, err)
		})
	}
}
