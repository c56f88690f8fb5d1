package devops

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/nhle/ambrose/internal/source"
)

// ReleaseEvent is the status change carried by a release deployment
// webhook.
type ReleaseEvent struct {
	Project       string
	DefinitionID  int
	EnvironmentID int
	Status        string
}

// ParseReleaseWebhook extracts the environment status from a service hook
// payload (release deployment started/completed/approval events).
func ParseReleaseWebhook(payload []byte) (*ReleaseEvent, error) {
	if !gjson.ValidBytes(payload) {
		return nil, errors.New("release webhook: invalid JSON")
	}

	env := gjson.GetBytes(payload, "resource.environment")
	if !env.Exists() {
		return nil, errors.New("release webhook: missing resource.environment")
	}

	status := env.Get("status").String()
	defID := env.Get("releaseDefinition.id").Int()
	envID := env.Get("definitionEnvironmentId").Int()
	if status == "" || defID == 0 || envID == 0 {
		return nil, fmt.Errorf("release webhook: incomplete environment (definition %d, environment %d, status %q)",
			defID, envID, status)
	}

	var approvals []string
	env.Get("postDeployApprovals.#.status").ForEach(func(_, v gjson.Result) bool {
		approvals = append(approvals, v.String())
		return true
	})

	project := gjson.GetBytes(payload, "resource.project.name").String()
	if project == "" {
		project = gjson.GetBytes(payload, "resource.release.projectReference.name").String()
	}

	return &ReleaseEvent{
		Project:       project,
		DefinitionID:  int(defID),
		EnvironmentID: int(envID),
		Status:        source.ReleaseEnvironmentStatus(status, approvals),
	}, nil
}
