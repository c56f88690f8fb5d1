package devops

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/source"
)

const (
	defaultCoreURL    = "https://dev.azure.com"
	defaultReleaseURL = "https://vsrm.dev.azure.com"
	apiVersion        = "7.1"
)

// Adapter implements source.PipelineSource for Azure DevOps.
type Adapter struct {
	client       *source.Client
	organization string
	coreURL      string
	releaseURL   string
	clientOpts   []source.ClientOption
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURLs overrides the core and release (vsrm) hosts.
func WithBaseURLs(core, release string) Option {
	return func(a *Adapter) {
		a.coreURL = strings.TrimRight(core, "/")
		a.releaseURL = strings.TrimRight(release, "/")
	}
}

// WithClientOptions passes options to the underlying HTTP client.
func WithClientOptions(opts ...source.ClientOption) Option {
	return func(a *Adapter) {
		a.clientOpts = append(a.clientOpts, opts...)
	}
}

// NewAdapter creates an Azure DevOps adapter authenticating with basic
// auth (username and personal access token).
func NewAdapter(organization, username, token string, opts ...Option) *Adapter {
	a := &Adapter{
		organization: organization,
		coreURL:      defaultCoreURL,
		releaseURL:   defaultReleaseURL,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.client = source.NewClient(model.ProviderDevOps, source.BasicAuth(username, token), a.clientOpts...)
	return a
}

// Type returns the provider type for Azure DevOps.
func (a *Adapter) Type() model.ProviderType {
	return model.ProviderDevOps
}

// ValidateConnection lists the organization's projects to confirm the
// token works and returns the organization name.
func (a *Adapter) ValidateConnection(ctx context.Context) (string, error) {
	if _, err := a.ListProjects(ctx); err != nil {
		return "", fmt.Errorf("validating Azure DevOps connection: %w", err)
	}
	return a.organization, nil
}

// ListProjects returns the projects of the organization.
func (a *Adapter) ListProjects(ctx context.Context) ([]source.ProjectRef, error) {
	u := fmt.Sprintf("%s/%s/_apis/projects?api-version=%s", a.coreURL, url.PathEscape(a.organization), apiVersion)

	var resp listResponse[project]
	if err := a.client.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	refs := make([]source.ProjectRef, 0, len(resp.Value))
	for _, p := range resp.Value {
		refs = append(refs, source.ProjectRef{ID: p.ID, Name: p.Name})
	}
	return refs, nil
}

// ListPipelineDefinitions returns every build definition of the project
// and one entry per environment of each release definition.
func (a *Adapter) ListPipelineDefinitions(ctx context.Context, projectName string) ([]source.PipelineRef, error) {
	var releases listResponse[releaseDefinition]
	relURL := a.projectURL(a.releaseURL, projectName, "release/definitions", url.Values{"$expand": {"environments"}})
	if err := a.client.GetJSON(ctx, relURL, &releases); err != nil {
		return nil, fmt.Errorf("listing release definitions for %s: %w", projectName, err)
	}

	var builds listResponse[buildDefinition]
	buildURL := a.projectURL(a.coreURL, projectName, "build/definitions", nil)
	if err := a.client.GetJSON(ctx, buildURL, &builds); err != nil {
		return nil, fmt.Errorf("listing build definitions for %s: %w", projectName, err)
	}

	var refs []source.PipelineRef
	for _, def := range releases.Value {
		for _, env := range def.Environments {
			refs = append(refs, source.PipelineRef{
				Kind:            model.KindRelease,
				Project:         projectName,
				DefinitionID:    def.ID,
				Name:            def.Name,
				EnvironmentID:   env.ID,
				EnvironmentName: env.Name,
			})
		}
	}
	for _, def := range builds.Value {
		refs = append(refs, source.PipelineRef{
			Kind:         model.KindBuild,
			Project:      projectName,
			DefinitionID: def.ID,
			Name:         def.Name,
		})
	}
	return refs, nil
}

// GetBatchStatus fetches the latest build on branch for every definition
// in one request.
func (a *Adapter) GetBatchStatus(
	ctx context.Context,
	projectName string,
	definitionIDs []int,
	branch string,
) (*source.StatusSummary, error) {
	if len(definitionIDs) == 0 {
		return source.NewStatusSummary(""), nil
	}
	if branch == "" {
		branch = model.DefaultBranch
	}

	ids := append([]int(nil), definitionIDs...)
	sort.Ints(ids)
	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = strconv.Itoa(id)
	}

	u := a.projectURL(a.coreURL, projectName, "build/builds", url.Values{
		"maxBuildsPerDefinition": {"1"},
		"definitions":            {strings.Join(idStrs, ",")},
		"branchName":             {"refs/heads/" + branch},
	})

	var resp listResponse[build]
	if err := a.client.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("fetching build status for %s: %w", projectName, err)
	}
	return parseBuildSummary(resp.Value), nil
}

// GetSingleEnvironmentStatus fetches the most recent release of a
// definition and reports its environment statuses.
func (a *Adapter) GetSingleEnvironmentStatus(
	ctx context.Context,
	projectName string,
	definitionID int,
) (*source.StatusSummary, error) {
	u := a.projectURL(a.releaseURL, projectName, "release/releases", url.Values{
		"definitionId": {strconv.Itoa(definitionID)},
		"releaseCount": {"1"},
	})

	var resp releaseSummary
	if err := a.client.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("fetching release status for %s/%d: %w", projectName, definitionID, err)
	}
	return parseReleaseSummary(resp), nil
}

func (a *Adapter) projectURL(base, projectName, endpoint string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", apiVersion)
	return fmt.Sprintf("%s/%s/%s/_apis/%s?%s",
		base, url.PathEscape(a.organization), url.PathEscape(projectName), endpoint, query.Encode())
}
