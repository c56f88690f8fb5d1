package source

import (
	"context"
	"time"

	"github.com/nhle/ambrose/internal/model"
)

// Source is implemented by every provider integration.
type Source interface {
	// Type returns the provider this source talks to.
	Type() model.ProviderType

	// ValidateConnection checks the credentials and returns a display
	// name for the authenticated identity.
	ValidateConnection(ctx context.Context) (string, error)
}

// ProjectRef names a project on a provider.
type ProjectRef struct {
	ID   string
	Name string
}

// PipelineRef is a monitorable pipeline entity. Release definitions expand
// into one PipelineRef per environment.
type PipelineRef struct {
	Kind            model.TaskKind
	Project         string
	DefinitionID    int
	Name            string
	EnvironmentID   int
	EnvironmentName string
}

// Task converts the reference into an unsaved task.
func (p PipelineRef) Task() model.Task {
	return model.Task{
		Kind:          p.Kind,
		Project:       p.Project,
		DefinitionID:  p.DefinitionID,
		EnvironmentID: p.EnvironmentID,
		Pipeline:      p.Name,
		Environment:   p.EnvironmentName,
	}
}

// PipelineSource is a provider that hosts build and release pipelines.
type PipelineSource interface {
	Source

	// ListProjects returns all projects visible to the account.
	ListProjects(ctx context.Context) ([]ProjectRef, error)

	// ListPipelineDefinitions returns the build definitions and the
	// release environments of a project.
	ListPipelineDefinitions(ctx context.Context, project string) ([]PipelineRef, error)

	// GetBatchStatus fetches the latest build status of every listed
	// definition in a single request.
	GetBatchStatus(ctx context.Context, project string, definitionIDs []int, branch string) (*StatusSummary, error)

	// GetSingleEnvironmentStatus fetches the most recent release of one
	// definition, keyed by environment id.
	GetSingleEnvironmentStatus(ctx context.Context, project string, definitionID int) (*StatusSummary, error)
}

// RepositoryRef names a repository.
type RepositoryRef struct {
	Owner string
	Repo  string
}

// RepositoryStatus is the status derived from a repository's open pull
// requests.
type RepositoryStatus struct {
	Status  string
	PRCount int
}

// RepositorySource is a provider that hosts repositories.
type RepositorySource interface {
	Source
	ListRepositories(ctx context.Context) ([]RepositoryRef, error)
	GetRepositoryStatus(ctx context.Context, owner, repo string) (*RepositoryStatus, error)
}

// MetricQuery selects one aggregated metric over a timespan.
type MetricQuery struct {
	Metric      string
	Aggregation string
	Timespan    string
}

// Metric is an aggregated metric value and the interval it covers.
type Metric struct {
	Value float64
	Start *time.Time
	End   *time.Time
}

// MetricSource is a provider that serves application metrics.
type MetricSource interface {
	Source
	GetMetric(ctx context.Context, q MetricQuery) (*Metric, error)
}

// HealthSource checks HTTP endpoints relative to the account base URL.
type HealthSource interface {
	Source

	// Check performs a GET against path and returns StatusHealthy or
	// StatusNotHealthy.
	Check(ctx context.Context, path string) (string, error)
}
