package devops

type listResponse[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

type project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type buildDefinition struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type releaseDefinition struct {
	ID           int                `json:"id"`
	Name         string             `json:"name"`
	Environments []definitionEnvRef `json:"environments"`
}

type definitionEnvRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type build struct {
	ID         int             `json:"id"`
	Status     string          `json:"status"`
	Result     string          `json:"result"`
	Definition buildDefinition `json:"definition"`
}

type approval struct {
	Status string `json:"status"`
}

type releaseEnvironment struct {
	ID                      int        `json:"id"`
	DefinitionEnvironmentID int        `json:"definitionEnvironmentId"`
	Name                    string     `json:"name"`
	Status                  string     `json:"status"`
	PostDeployApprovals     []approval `json:"postDeployApprovals"`
}

type release struct {
	ID           int                  `json:"id"`
	Name         string               `json:"name"`
	Environments []releaseEnvironment `json:"environments"`
}

type summaryEnvironment struct {
	ID           int `json:"id"`
	LastReleases []struct {
		ID int `json:"id"`
	} `json:"lastReleases"`
}

// releaseSummary is the body of release/releases?definitionId=..&releaseCount=1.
type releaseSummary struct {
	ReleaseDefinition struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"releaseDefinition"`
	Environments []summaryEnvironment `json:"environments"`
	Releases     []release            `json:"releases"`
}
