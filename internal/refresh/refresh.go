// Package refresh polls the providers behind one account and commits the
// observed statuses of its tasks.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/ambrose/internal/events"
	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/source"
	"github.com/nhle/ambrose/internal/telemetry"
)

// TaskStore is the persistence the refresher needs.
type TaskStore interface {
	ListTasks(ctx context.Context, accountID string) ([]model.Task, error)
	CommitTaskValues(ctx context.Context, accountID string, tasks []model.Task) error
}

// SourceFactory builds the provider source for an account.
type SourceFactory interface {
	New(account model.Account, token string) (source.Source, error)
}

// Decrypter opens stored credentials.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Locker serializes work on one account. The returned func releases the
// lock.
type Locker interface {
	Acquire(ctx context.Context, accountID string) (func(), error)
}

// GroupFailure records a provider call that failed. The tasks of the
// group keep their stale values.
type GroupFailure struct {
	Group string `json:"group"`
	Tasks int    `json:"tasks"`
	Error string `json:"error"`
	Auth  bool   `json:"auth"`
}

// Result summarizes one account refresh.
type Result struct {
	AccountID string         `json:"account_id"`
	Checked   int            `json:"checked"`
	Changed   int            `json:"changed"`
	Skipped   int            `json:"skipped"`
	Failures  []GroupFailure `json:"failures,omitempty"`
}

// Refresher pulls current statuses for all polled tasks of an account.
type Refresher struct {
	store       TaskStore
	sources     SourceFactory
	decrypter   Decrypter
	locks       Locker
	logger      *zap.Logger
	metrics     *telemetry.Metrics
	publisher   events.Publisher
	concurrency int
	now         func() time.Time
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Refresher) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records refresh metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Refresher) { r.metrics = m }
}

// WithPublisher publishes an event for every changed task.
func WithPublisher(p events.Publisher) Option {
	return func(r *Refresher) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithConcurrency bounds concurrent provider calls within one account.
func WithConcurrency(n int) Option {
	return func(r *Refresher) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

// New creates a Refresher.
func New(store TaskStore, sources SourceFactory, decrypter Decrypter, locks Locker, opts ...Option) *Refresher {
	r := &Refresher{
		store:       store,
		sources:     sources,
		decrypter:   decrypter,
		locks:       locks,
		logger:      zap.NewNop(),
		publisher:   events.Nop{},
		concurrency: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Source decrypts the account credential and builds its source.
func (r *Refresher) Source(account model.Account) (source.Source, error) {
	token := ""
	if account.Credential != "" {
		var err error
		token, err = r.decrypter.Decrypt(account.Credential)
		if err != nil {
			return nil, fmt.Errorf("decrypting credential of %s: %w", account.DisplayName(), err)
		}
	}
	src, err := r.sources.New(account, token)
	if err != nil {
		return nil, fmt.Errorf("building source for %s: %w", account.DisplayName(), err)
	}
	return src, nil
}

// Refresh observes every polled task of account and commits the changes
// in one transaction. Tasks served by webhooks are skipped. Failures of
// single provider calls are reported in the result and do not fail the
// refresh. If ctx ends before the commit nothing is written.
func (r *Refresher) Refresh(ctx context.Context, account model.Account) (*Result, error) {
	start := r.now()
	res, err := r.refresh(ctx, account)
	r.metrics.RecordRefresh(ctx, string(account.Provider), r.now().Sub(start), err == nil)
	return res, err
}

func (r *Refresher) refresh(ctx context.Context, account model.Account) (*Result, error) {
	release, err := r.locks.Acquire(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("locking account %s: %w", account.ID, err)
	}
	defer release()

	tasks, err := r.store.ListTasks(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}

	result := &Result{AccountID: account.ID}
	var polled []*model.Task
	for i := range tasks {
		if tasks[i].UsesWebhook {
			result.Skipped++
			continue
		}
		polled = append(polled, &tasks[i])
	}
	result.Checked = len(polled)
	if len(polled) == 0 {
		return result, nil
	}

	src, err := r.Source(account)
	if err != nil {
		return nil, err
	}

	groups, err := plan(src, polled)
	if err != nil {
		return nil, err
	}

	log := r.logger.With(
		zap.String("account", account.ID),
		zap.String("nickname", account.DisplayName()),
		zap.String("provider", string(account.Provider)),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, grp := range groups {
		g.Go(func() error {
			if err := grp.run(gctx); err != nil {
				log.Warn("refresh group failed",
					zap.String("group", grp.name),
					zap.Int("tasks", len(grp.tasks)),
					zap.Error(err),
				)
				r.metrics.AddProviderError(gctx, string(account.Provider))
				mu.Lock()
				result.Failures = append(result.Failures, GroupFailure{
					Group: grp.name,
					Tasks: len(grp.tasks),
					Error: err.Error(),
					Auth:  source.IsAuthError(err),
				})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("refreshing %s: %w", account.DisplayName(), err)
	}

	now := r.now()
	var changed []model.Task
	for _, grp := range groups {
		for _, obs := range grp.observed {
			if obs.apply(now) {
				changed = append(changed, *obs.task)
			}
		}
	}
	sort.Slice(result.Failures, func(i, j int) bool { return result.Failures[i].Group < result.Failures[j].Group })

	if err := r.store.CommitTaskValues(ctx, account.ID, collect(groups)); err != nil {
		return nil, fmt.Errorf("committing task values: %w", err)
	}
	result.Changed = len(changed)
	r.metrics.AddTaskChanges(ctx, string(account.Provider), len(changed))

	for _, t := range changed {
		if err := r.publisher.Publish(ctx, events.NewTaskChanged(t, "refresh", now)); err != nil {
			log.Warn("publishing task change", zap.String("task", t.ID), zap.Error(err))
		}
	}

	log.Debug("account refreshed",
		zap.Int("checked", result.Checked),
		zap.Int("changed", result.Changed),
		zap.Int("failures", len(result.Failures)),
	)
	return result, nil
}

// observation is a value seen for one task, applied after all groups
// finish.
type observation struct {
	task  *model.Task
	value string
	// extra copies auxiliary fields such as the PR count.
	extra func(t *model.Task)
}

func (o observation) apply(now time.Time) bool {
	if o.extra != nil {
		o.extra(o.task)
	}
	return o.task.SetValue(o.value, now)
}

// group is one provider call covering one or more tasks.
type group struct {
	name     string
	tasks    []*model.Task
	fetch    func(ctx context.Context, g *group) error
	observed []observation
}

func (g *group) run(ctx context.Context) error {
	return g.fetch(ctx, g)
}

func (g *group) observe(t *model.Task, value string, extra func(*model.Task)) {
	g.observed = append(g.observed, observation{task: t, value: value, extra: extra})
}

// collect returns the observed tasks, in group order.
func collect(groups []*group) []model.Task {
	var out []model.Task
	for _, g := range groups {
		for _, obs := range g.observed {
			out = append(out, *obs.task)
		}
	}
	return out
}

var errWrongSource = errors.New("source does not serve this task kind")

// plan partitions tasks into provider calls. Builds share one call per
// project and branch, releases one call per definition, and every other
// kind gets a call of its own.
func plan(src source.Source, tasks []*model.Task) ([]*group, error) {
	var groups []*group
	builds := map[string]*group{}
	buildIDs := map[string][]int{}
	releases := map[string]*group{}

	for _, t := range tasks {
		switch t.Kind {
		case model.KindBuild:
			ps, ok := src.(source.PipelineSource)
			if !ok {
				return nil, fmt.Errorf("%s: %w", t.Kind, errWrongSource)
			}
			project, branch := t.Project, t.BranchOrDefault()
			key := project + "|" + branch
			g, ok := builds[key]
			if !ok {
				g = &group{name: "builds " + project + "@" + branch}
				g.fetch = func(ctx context.Context, g *group) error {
					summary, err := ps.GetBatchStatus(ctx, project, buildIDs[key], branch)
					if err != nil {
						return err
					}
					for _, bt := range g.tasks {
						if v, ok := summary.StatusForDefinition(bt.DefinitionID); ok {
							g.observe(bt, v, nil)
						}
					}
					return nil
				}
				builds[key] = g
				groups = append(groups, g)
			}
			g.tasks = append(g.tasks, t)
			buildIDs[key] = appendUnique(buildIDs[key], t.DefinitionID)

		case model.KindRelease:
			ps, ok := src.(source.PipelineSource)
			if !ok {
				return nil, fmt.Errorf("%s: %w", t.Kind, errWrongSource)
			}
			project, defID := t.Project, t.DefinitionID
			key := project + "|" + strconv.Itoa(defID)
			g, ok := releases[key]
			if !ok {
				g = &group{name: "release " + project + "/" + strconv.Itoa(defID)}
				g.fetch = func(ctx context.Context, g *group) error {
					summary, err := ps.GetSingleEnvironmentStatus(ctx, project, defID)
					if err != nil {
						return err
					}
					for _, rt := range g.tasks {
						if v, ok := summary.StatusForEnvironment(rt.EnvironmentID); ok {
							g.observe(rt, v, nil)
						}
					}
					return nil
				}
				releases[key] = g
				groups = append(groups, g)
			}
			g.tasks = append(g.tasks, t)

		case model.KindRepository:
			rs, ok := src.(source.RepositorySource)
			if !ok {
				return nil, fmt.Errorf("%s: %w", t.Kind, errWrongSource)
			}
			groups = append(groups, single("repo "+t.Owner+"/"+t.Repo, t, func(ctx context.Context, g *group) error {
				st, err := rs.GetRepositoryStatus(ctx, t.Owner, t.Repo)
				if err != nil {
					return err
				}
				count := st.PRCount
				g.observe(t, st.Status, func(t *model.Task) { t.PRCount = count })
				return nil
			}))

		case model.KindMetric:
			ms, ok := src.(source.MetricSource)
			if !ok {
				return nil, fmt.Errorf("%s: %w", t.Kind, errWrongSource)
			}
			q := source.MetricQuery{Metric: t.Metric, Aggregation: t.Aggregation, Timespan: t.Timespan}
			groups = append(groups, single("metric "+t.Metric, t, func(ctx context.Context, g *group) error {
				m, err := ms.GetMetric(ctx, q)
				if err != nil {
					return err
				}
				g.observe(t, strconv.FormatFloat(m.Value, 'f', -1, 64), func(t *model.Task) {
					t.MetricStart, t.MetricEnd = m.Start, m.End
				})
				return nil
			}))

		case model.KindHealthcheck:
			hs, ok := src.(source.HealthSource)
			if !ok {
				return nil, fmt.Errorf("%s: %w", t.Kind, errWrongSource)
			}
			groups = append(groups, single("health "+t.Path, t, func(ctx context.Context, g *group) error {
				v, err := hs.Check(ctx, t.Path)
				if err != nil {
					return err
				}
				g.observe(t, v, nil)
				return nil
			}))

		default:
			return nil, fmt.Errorf("unknown task kind %q", t.Kind)
		}
	}
	return groups, nil
}

func single(name string, t *model.Task, fetch func(ctx context.Context, g *group) error) *group {
	return &group{name: name, tasks: []*model.Task{t}, fetch: fetch}
}

func appendUnique(ids []int, id int) []int {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}
