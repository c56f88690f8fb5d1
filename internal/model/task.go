package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TaskKind tags the variant of a Task and selects which kind fields apply.
type TaskKind string

const (
	KindBuild       TaskKind = "devops_build"
	KindRelease     TaskKind = "devops_release"
	KindRepository  TaskKind = "github_repo"
	KindMetric      TaskKind = "appinsights_metric"
	KindHealthcheck TaskKind = "healthcheck"
)

// DefaultBranch is used for build tasks that do not name a branch.
const DefaultBranch = "master"

type kindInfo struct {
	label    string
	provider ProviderType
}

var kinds = map[TaskKind]kindInfo{
	KindBuild:       {label: "Azure DevOps Build Pipeline", provider: ProviderDevOps},
	KindRelease:     {label: "Azure DevOps Release Environment", provider: ProviderDevOps},
	KindRepository:  {label: "GitHub Repository", provider: ProviderGitHub},
	KindMetric:      {label: "Application Insights Metric", provider: ProviderAppInsights},
	KindHealthcheck: {label: "Healthcheck", provider: ProviderWeb},
}

// Valid reports whether k is a known task kind.
func (k TaskKind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Label returns the human-readable kind name.
func (k TaskKind) Label() string {
	if info, ok := kinds[k]; ok {
		return info.label
	}
	return string(k)
}

// Provider returns the provider type that serves tasks of this kind.
func (k TaskKind) Provider() ProviderType {
	return kinds[k].provider
}

// TaskKey is the natural identity of a task within its account. Only the
// fields relevant to the kind are populated, so two keys compare equal
// exactly when they name the same remote entity.
type TaskKey struct {
	Kind          TaskKind
	Project       string
	DefinitionID  int
	EnvironmentID int
	Owner         string
	Repo          string
	Metric        string
	Aggregation   string
	Timespan      string
	Path          string
}

// String encodes the key for storage in the natural_key column.
func (k TaskKey) String() string {
	parts := []string{string(k.Kind)}
	switch k.Kind {
	case KindBuild:
		parts = append(parts, k.Project, strconv.Itoa(k.DefinitionID))
	case KindRelease:
		parts = append(parts, k.Project, strconv.Itoa(k.DefinitionID), strconv.Itoa(k.EnvironmentID))
	case KindRepository:
		parts = append(parts, k.Owner, k.Repo)
	case KindMetric:
		parts = append(parts, k.Metric, k.Aggregation, k.Timespan)
	case KindHealthcheck:
		parts = append(parts, k.Path)
	}
	return strings.Join(parts, "|")
}

// Task is a monitored unit of status.
type Task struct {
	ID        string   `json:"id" db:"id"`
	AccountID string   `json:"account_id" db:"account_id"`
	Kind      TaskKind `json:"kind" db:"kind"`

	// DevOps build and release fields.
	Project       string `json:"project,omitempty" db:"project"`
	DefinitionID  int    `json:"definition_id,omitempty" db:"definition_id"`
	EnvironmentID int    `json:"environment_id,omitempty" db:"environment_id"`
	Pipeline      string `json:"pipeline,omitempty" db:"pipeline"`
	Environment   string `json:"environment,omitempty" db:"environment"`
	Branch        string `json:"branch,omitempty" db:"branch"`

	// GitHub repository fields.
	Owner   string `json:"owner,omitempty" db:"owner"`
	Repo    string `json:"repo,omitempty" db:"repo"`
	PRCount int    `json:"pr_count,omitempty" db:"pr_count"`

	// Application Insights metric fields.
	Metric      string     `json:"metric,omitempty" db:"metric"`
	Aggregation string     `json:"aggregation,omitempty" db:"aggregation"`
	Timespan    string     `json:"timespan,omitempty" db:"timespan"`
	MetricStart *time.Time `json:"metric_start,omitempty" db:"metric_start"`
	MetricEnd   *time.Time `json:"metric_end,omitempty" db:"metric_end"`

	// Healthcheck fields.
	Path string `json:"path,omitempty" db:"path"`

	// Nickname overrides the derived display name where supported.
	Nickname string `json:"nickname,omitempty" db:"nickname"`

	Value       string     `json:"value" db:"value"`
	PrevValue   string     `json:"prev_value" db:"prev_value"`
	HasChanged  bool       `json:"has_changed" db:"has_changed"`
	LastUpdate  *time.Time `json:"last_update,omitempty" db:"last_update"`
	UsesWebhook bool       `json:"uses_webhook" db:"uses_webhook"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Key extracts the natural key of the task. Reconciliation and lookups
// compare tasks through this key only.
func (t Task) Key() TaskKey {
	k := TaskKey{Kind: t.Kind}
	switch t.Kind {
	case KindBuild:
		k.Project, k.DefinitionID = t.Project, t.DefinitionID
	case KindRelease:
		k.Project, k.DefinitionID, k.EnvironmentID = t.Project, t.DefinitionID, t.EnvironmentID
	case KindRepository:
		k.Owner, k.Repo = t.Owner, t.Repo
	case KindMetric:
		k.Metric, k.Aggregation, k.Timespan = t.Metric, t.Aggregation, t.Timespan
	case KindHealthcheck:
		k.Path = t.Path
	}
	return k
}

// Name returns the display name of the task.
func (t Task) Name() string {
	switch t.Kind {
	case KindBuild:
		return t.Pipeline
	case KindRelease:
		return strings.TrimSpace(t.Pipeline + " " + t.Environment)
	case KindRepository:
		if t.Nickname != "" {
			return t.Nickname
		}
		return t.Owner + "/" + t.Repo
	case KindMetric:
		if t.Nickname != "" {
			return t.Nickname
		}
		return t.Metric
	case KindHealthcheck:
		if t.Nickname != "" {
			return t.Nickname
		}
		return "Healthcheck for " + t.Path
	}
	return t.ID
}

// BranchOrDefault returns the build branch, defaulting to DefaultBranch.
func (t Task) BranchOrDefault() string {
	if t.Branch == "" {
		return DefaultBranch
	}
	return t.Branch
}

// SetValue records a newly observed value. When v differs from the current
// value the old value shifts into PrevValue, HasChanged is raised and
// LastUpdate is stamped. It reports whether the value changed.
func (t *Task) SetValue(v string, now time.Time) bool {
	if v == t.Value {
		return false
	}
	t.PrevValue = t.Value
	t.Value = v
	t.HasChanged = true
	ts := now.UTC()
	t.LastUpdate = &ts
	return true
}

// MarkViewed clears the change flag without touching the value history.
func (t *Task) MarkViewed() {
	t.HasChanged = false
}

// Validate checks that the kind-specific key fields are present.
func (t Task) Validate() error {
	switch t.Kind {
	case KindBuild:
		if t.Project == "" || t.DefinitionID == 0 {
			return fmt.Errorf("build task requires project and definition id")
		}
	case KindRelease:
		if t.Project == "" || t.DefinitionID == 0 || t.EnvironmentID == 0 {
			return fmt.Errorf("release task requires project, definition id and environment id")
		}
	case KindRepository:
		if t.Owner == "" || t.Repo == "" {
			return fmt.Errorf("repository task requires owner and repo")
		}
	case KindMetric:
		if t.Metric == "" {
			return fmt.Errorf("metric task requires a metric")
		}
	case KindHealthcheck:
		if t.Path == "" {
			return fmt.Errorf("healthcheck task requires a path")
		}
	default:
		return fmt.Errorf("unknown task kind %q", t.Kind)
	}
	return nil
}
