package model

import "time"

// ProviderType identifies the external system an account connects to.
type ProviderType string

const (
	ProviderDevOps      ProviderType = "devops"
	ProviderGitHub      ProviderType = "github"
	ProviderAppInsights ProviderType = "appinsights"
	ProviderWeb         ProviderType = "web"
)

var providerLabels = map[ProviderType]string{
	ProviderDevOps:      "Azure DevOps",
	ProviderGitHub:      "GitHub",
	ProviderAppInsights: "Application Insights",
	ProviderWeb:         "Website",
}

// ProviderTypes lists every supported provider in display order.
func ProviderTypes() []ProviderType {
	return []ProviderType{ProviderDevOps, ProviderGitHub, ProviderAppInsights, ProviderWeb}
}

// Valid reports whether p is one of the supported providers.
func (p ProviderType) Valid() bool {
	_, ok := providerLabels[p]
	return ok
}

// Label returns the human-readable provider name.
func (p ProviderType) Label() string {
	if l, ok := providerLabels[p]; ok {
		return l
	}
	return string(p)
}

// Account is a credentialed connection to one external provider.
type Account struct {
	// ID is the internal unique identifier for this account.
	ID string `json:"id" db:"id"`

	// UserID is the owning user.
	UserID string `json:"user_id" db:"user_id"`

	// Provider selects which integration serves this account.
	Provider ProviderType `json:"provider" db:"provider"`

	// Nickname is the user-chosen display name.
	Nickname string `json:"nickname" db:"nickname"`

	// Username is the basic-auth user for DevOps accounts.
	Username string `json:"username,omitempty" db:"username"`

	// Organization is the DevOps organization name.
	Organization string `json:"organization,omitempty" db:"organization"`

	// ApplicationID is the Application Insights app id.
	ApplicationID string `json:"application_id,omitempty" db:"application_id"`

	// BaseURL is the root URL healthchecks are resolved against.
	BaseURL string `json:"base_url,omitempty" db:"base_url"`

	// Credential is the encrypted access token. Never serialized.
	Credential string `json:"-" db:"credential"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DisplayName returns the nickname, falling back to the provider label.
func (a Account) DisplayName() string {
	if a.Nickname != "" {
		return a.Nickname
	}
	return a.Provider.Label()
}
