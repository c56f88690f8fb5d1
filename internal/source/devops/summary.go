package devops

import (
	"github.com/nhle/ambrose/internal/source"
)

// parseBuildSummary maps the latest build of each definition to its
// canonical status. Builds are ordered newest first, so the first build
// seen for a definition wins.
func parseBuildSummary(builds []build) *source.StatusSummary {
	summary := source.NewStatusSummary("")
	for _, b := range builds {
		if summary.Name == "" {
			summary.Name = b.Definition.Name
		}
		summary.SetDefinition(b.Definition.ID, source.BuildStatus(b.Status, b.Result))
	}
	return summary
}

// parseReleaseSummary maps each environment of the definition to the status
// it has in its most recent release.
func parseReleaseSummary(rs releaseSummary) *source.StatusSummary {
	summary := source.NewStatusSummary(rs.ReleaseDefinition.Name)

	releases := make(map[int]release, len(rs.Releases))
	for _, r := range rs.Releases {
		releases[r.ID] = r
	}

	for _, env := range rs.Environments {
		if len(env.LastReleases) == 0 {
			continue
		}
		rel, ok := releases[env.LastReleases[0].ID]
		if !ok {
			continue
		}
		for _, re := range rel.Environments {
			if re.DefinitionEnvironmentID != env.ID {
				continue
			}
			summary.SetEnvironment(env.ID, source.ReleaseEnvironmentStatus(re.Status, approvalStatuses(re.PostDeployApprovals)))
			break
		}
	}
	return summary
}

func approvalStatuses(approvals []approval) []string {
	out := make([]string, 0, len(approvals))
	for _, a := range approvals {
		out = append(out, a.Status)
	}
	return out
}
