// Package registry builds provider sources for accounts from a static
// table keyed by provider type.
package registry

import (
	"fmt"

	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/source"
	"github.com/nhle/ambrose/internal/source/devops"
	"github.com/nhle/ambrose/internal/source/github"
	"github.com/nhle/ambrose/internal/source/insights"
	"github.com/nhle/ambrose/internal/source/web"
)

// Endpoints overrides provider API roots, for enterprise hosts and tests.
// Empty fields select the public endpoints.
type Endpoints struct {
	DevOpsCore    string
	DevOpsRelease string
	GitHub        string
	AppInsights   string
}

type constructor func(r *Registry, account model.Account, token string) source.Source

var constructors = map[model.ProviderType]constructor{
	model.ProviderDevOps: func(r *Registry, a model.Account, token string) source.Source {
		opts := []devops.Option{devops.WithClientOptions(r.clientOpts...)}
		if r.endpoints.DevOpsCore != "" {
			opts = append(opts, devops.WithBaseURLs(r.endpoints.DevOpsCore, r.endpoints.DevOpsRelease))
		}
		return devops.NewAdapter(a.Organization, a.Username, token, opts...)
	},
	model.ProviderGitHub: func(r *Registry, _ model.Account, token string) source.Source {
		return github.NewAdapter(r.endpoints.GitHub, token, r.clientOpts...)
	},
	model.ProviderAppInsights: func(r *Registry, a model.Account, token string) source.Source {
		return insights.NewAdapter(r.endpoints.AppInsights, a.ApplicationID, token, r.clientOpts...)
	},
	model.ProviderWeb: func(r *Registry, a model.Account, _ string) source.Source {
		return web.NewAdapter(a.BaseURL, r.clientOpts...)
	},
}

// Registry creates sources for accounts.
type Registry struct {
	endpoints  Endpoints
	clientOpts []source.ClientOption
}

// New returns a registry using the given endpoints and client options.
func New(endpoints Endpoints, opts ...source.ClientOption) *Registry {
	return &Registry{endpoints: endpoints, clientOpts: opts}
}

// New builds the source for account using the decrypted token.
func (r *Registry) New(account model.Account, token string) (source.Source, error) {
	ctor, ok := constructors[account.Provider]
	if !ok {
		return nil, fmt.Errorf("no source for provider %q", account.Provider)
	}
	return ctor(r, account, token), nil
}
