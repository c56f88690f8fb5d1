package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/ambrose/internal/events"
	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/reconcile"
	"github.com/nhle/ambrose/internal/refresh"
	"github.com/nhle/ambrose/internal/source"
	"github.com/nhle/ambrose/internal/store"
	"github.com/nhle/ambrose/internal/telemetry"
)

// Cipher seals and opens provider tokens.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AccountInput holds the user-supplied fields of an account.
type AccountInput struct {
	Provider      model.ProviderType `json:"provider"`
	Nickname      string             `json:"nickname"`
	Username      string             `json:"username"`
	Organization  string             `json:"organization"`
	ApplicationID string             `json:"application_id"`
	BaseURL       string             `json:"base_url"`
	// Token is the plaintext credential. On edit, an empty token or one
	// made only of '*' keeps the stored credential.
	Token string `json:"token"`
}

// ReconcileReport summarizes an applied reconciliation.
type ReconcileReport struct {
	Added     int      `json:"added"`
	Removed   int      `json:"removed"`
	Updated   int      `json:"updated"`
	Conflicts []string `json:"conflicts,omitempty"`
}

// AccountService manages provider accounts and their tasks.
type AccountService struct {
	store     store.Store
	sources   refresh.SourceFactory
	cipher    Cipher
	locks     refresh.Locker
	refresher *refresh.Refresher
	logger    *zap.Logger
	metrics   *telemetry.Metrics
	publisher events.Publisher
	timeout   time.Duration
	now       func() time.Time
}

// AccountOption configures an AccountService.
type AccountOption func(*AccountService)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) AccountOption {
	return func(s *AccountService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records webhook metrics.
func WithMetrics(m *telemetry.Metrics) AccountOption {
	return func(s *AccountService) { s.metrics = m }
}

// WithPublisher publishes webhook-driven task changes.
func WithPublisher(p events.Publisher) AccountOption {
	return func(s *AccountService) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithAccountTimeout bounds reconciliation and ad-hoc refresh.
func WithAccountTimeout(d time.Duration) AccountOption {
	return func(s *AccountService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) AccountOption {
	return func(s *AccountService) { s.now = now }
}

// NewAccountService creates an AccountService. The refresher must share
// sources, cipher and locks.
func NewAccountService(
	st store.Store,
	sources refresh.SourceFactory,
	cipher Cipher,
	locks refresh.Locker,
	refresher *refresh.Refresher,
	opts ...AccountOption,
) *AccountService {
	s := &AccountService{
		store:     st,
		sources:   sources,
		cipher:    cipher,
		locks:     locks,
		refresher: refresher,
		logger:    zap.NewNop(),
		publisher: events.Nop{},
		timeout:   45 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OwnedAccount returns the account if it belongs to userID.
func (s *AccountService) OwnedAccount(ctx context.Context, userID, accountID string) (*model.Account, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, translate(err)
	}
	if account.UserID != userID {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrUnauthorized)
	}
	return account, nil
}

// ListAccounts returns the accounts of a user.
func (s *AccountService) ListAccounts(ctx context.Context, userID string) ([]model.Account, error) {
	accounts, err := s.store.ListAccountsForUser(ctx, userID)
	return accounts, translate(err)
}

// CreateAccount validates the credentials against the provider, then
// stores the account with its token encrypted.
func (s *AccountService) CreateAccount(ctx context.Context, userID string, in AccountInput) (*model.Account, error) {
	if !in.Provider.Valid() {
		return nil, invalid("unknown provider %q", in.Provider)
	}
	account := model.Account{
		UserID:        userID,
		Provider:      in.Provider,
		Nickname:      strings.TrimSpace(in.Nickname),
		Username:      strings.TrimSpace(in.Username),
		Organization:  strings.TrimSpace(in.Organization),
		ApplicationID: strings.TrimSpace(in.ApplicationID),
		BaseURL:       strings.TrimRight(strings.TrimSpace(in.BaseURL), "/"),
	}
	if err := s.validate(ctx, account, in.Token); err != nil {
		return nil, err
	}

	sealed, err := s.seal(in.Token)
	if err != nil {
		return nil, err
	}
	account.Credential = sealed

	created, err := s.store.CreateAccount(ctx, account)
	if err != nil {
		return nil, translate(err)
	}
	s.logger.Info("account created",
		zap.String("account", created.ID),
		zap.String("provider", string(created.Provider)),
	)
	return created, nil
}

// EditAccount updates an account. The provider cannot change.
func (s *AccountService) EditAccount(ctx context.Context, userID, accountID string, in AccountInput) (*model.Account, error) {
	account, err := s.OwnedAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	if in.Provider != "" && in.Provider != account.Provider {
		return nil, invalid("provider cannot change from %s to %s", account.Provider, in.Provider)
	}

	account.Nickname = strings.TrimSpace(in.Nickname)
	account.Username = strings.TrimSpace(in.Username)
	account.Organization = strings.TrimSpace(in.Organization)
	account.ApplicationID = strings.TrimSpace(in.ApplicationID)
	account.BaseURL = strings.TrimRight(strings.TrimSpace(in.BaseURL), "/")

	if keepsCredential(in.Token) {
		token, err := s.open(account.Credential)
		if err != nil {
			return nil, err
		}
		if err := s.validate(ctx, *account, token); err != nil {
			return nil, err
		}
	} else {
		if err := s.validate(ctx, *account, in.Token); err != nil {
			return nil, err
		}
		sealed, err := s.seal(in.Token)
		if err != nil {
			return nil, err
		}
		account.Credential = sealed
	}

	if err := s.store.UpdateAccount(ctx, *account); err != nil {
		return nil, translate(err)
	}
	return account, nil
}

// DeleteAccount removes an account and all its tasks.
func (s *AccountService) DeleteAccount(ctx context.Context, userID, accountID string) error {
	if _, err := s.OwnedAccount(ctx, userID, accountID); err != nil {
		return err
	}
	return translate(s.store.DeleteAccount(ctx, accountID))
}

// DiscoverTasks lists the remote entities an account could monitor, as
// unsaved tasks. Candidates already monitored carry their webhook flag.
// Providers without discovery return no candidates.
func (s *AccountService) DiscoverTasks(ctx context.Context, userID, accountID string) ([]model.Task, error) {
	account, err := s.OwnedAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	src, err := s.refresher.Source(*account)
	if err != nil {
		return nil, err
	}

	var found []model.Task
	switch ps := src.(type) {
	case source.PipelineSource:
		projects, err := ps.ListProjects(ctx)
		if err != nil {
			return nil, fmt.Errorf("discovering projects: %w", err)
		}
		for _, p := range projects {
			refs, err := ps.ListPipelineDefinitions(ctx, p.Name)
			if err != nil {
				return nil, fmt.Errorf("discovering pipelines of %s: %w", p.Name, err)
			}
			for _, ref := range refs {
				found = append(found, ref.Task())
			}
		}
	case source.RepositorySource:
		repos, err := ps.ListRepositories(ctx)
		if err != nil {
			return nil, fmt.Errorf("discovering repositories: %w", err)
		}
		for _, r := range repos {
			found = append(found, model.Task{Kind: model.KindRepository, Owner: r.Owner, Repo: r.Repo})
		}
	default:
		return nil, nil
	}

	current, err := s.store.ListTasks(ctx, account.ID)
	if err != nil {
		return nil, translate(err)
	}
	webhook := make(map[model.TaskKey]bool, len(current))
	for _, t := range current {
		webhook[t.Key()] = t.UsesWebhook
	}
	for i := range found {
		found[i].AccountID = account.ID
		found[i].UsesWebhook = webhook[found[i].Key()]
	}
	return found, nil
}

// ReconcileTasks makes the account monitor exactly the discovered tasks.
// New tasks are added without webhooks, missing ones removed, and
// surviving ones keep their id, value history and webhook flag while
// taking names from discovery. A stored branch or nickname is replaced
// only by a non-empty discovered one. The plan applies atomically under
// the account lock.
func (s *AccountService) ReconcileTasks(ctx context.Context, userID, accountID string, discovered []model.Task) (*ReconcileReport, error) {
	account, err := s.OwnedAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	for _, t := range discovered {
		if t.Kind.Provider() != account.Provider {
			return nil, invalid("%s task cannot belong to a %s account", t.Kind, account.Provider)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	release, err := s.locks.Acquire(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("locking account %s: %w", account.ID, err)
	}
	defer release()

	current, err := s.store.ListTasks(ctx, account.ID)
	if err != nil {
		return nil, translate(err)
	}

	plan := reconcile.Diff(discovered, current, model.Task.Key)
	report := &ReconcileReport{}
	for _, c := range plan.Conflicts {
		s.logger.Warn("reconciliation conflict",
			zap.String("account", account.ID),
			zap.String("key", c.Key.String()),
			zap.Int("count", c.Count),
			zap.Bool("stored", c.Current),
		)
		report.Conflicts = append(report.Conflicts, c.Error())
	}

	var tp store.TaskPlan
	for _, t := range plan.ToAdd {
		t.ID = ""
		t.AccountID = account.ID
		t.UsesWebhook = false
		t.Value, t.PrevValue, t.HasChanged, t.LastUpdate = "", "", false, nil
		tp.Add = append(tp.Add, t)
	}
	for _, t := range plan.ToRemove {
		tp.Remove = append(tp.Remove, t.ID)
	}
	for _, pair := range plan.ToUpdate {
		kept := pair.Current
		kept.Pipeline = pair.Discovered.Pipeline
		kept.Environment = pair.Discovered.Environment
		if pair.Discovered.Branch != "" {
			kept.Branch = pair.Discovered.Branch
		}
		if pair.Discovered.Nickname != "" {
			kept.Nickname = pair.Discovered.Nickname
		}
		tp.Update = append(tp.Update, kept)
	}

	if err := s.store.ApplyTaskPlan(ctx, account.ID, tp); err != nil {
		return nil, translate(err)
	}

	report.Added, report.Removed, report.Updated = len(tp.Add), len(tp.Remove), len(tp.Update)
	s.logger.Info("tasks reconciled",
		zap.String("account", account.ID),
		zap.Int("added", report.Added),
		zap.Int("removed", report.Removed),
		zap.Int("updated", report.Updated),
	)
	return report, nil
}

// AddRepositoryTask starts monitoring one repository of a GitHub account.
func (s *AccountService) AddRepositoryTask(ctx context.Context, userID, accountID, owner, repo, nickname string) (*model.Task, error) {
	return s.addTask(ctx, userID, accountID, model.Task{
		Kind:     model.KindRepository,
		Owner:    strings.TrimSpace(owner),
		Repo:     strings.TrimSpace(repo),
		Nickname: strings.TrimSpace(nickname),
	})
}

// AddMetricTask starts monitoring an Application Insights metric.
func (s *AccountService) AddMetricTask(ctx context.Context, userID, accountID string, q source.MetricQuery, nickname string) (*model.Task, error) {
	return s.addTask(ctx, userID, accountID, model.Task{
		Kind:        model.KindMetric,
		Metric:      strings.TrimSpace(q.Metric),
		Aggregation: strings.TrimSpace(q.Aggregation),
		Timespan:    strings.TrimSpace(q.Timespan),
		Nickname:    strings.TrimSpace(nickname),
	})
}

// AddHealthcheckTask starts checking a path below the account base URL.
func (s *AccountService) AddHealthcheckTask(ctx context.Context, userID, accountID, path, nickname string) (*model.Task, error) {
	path = strings.TrimSpace(path)
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.addTask(ctx, userID, accountID, model.Task{
		Kind:     model.KindHealthcheck,
		Path:     path,
		Nickname: strings.TrimSpace(nickname),
	})
}

func (s *AccountService) addTask(ctx context.Context, userID, accountID string, t model.Task) (*model.Task, error) {
	account, err := s.OwnedAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	if t.Kind.Provider() != account.Provider {
		return nil, invalid("%s task cannot belong to a %s account", t.Kind, account.Provider)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	t.AccountID = account.ID

	created, err := s.store.CreateTask(ctx, t)
	if err != nil {
		return nil, translate(err)
	}
	return created, nil
}

// RefreshAccount refreshes one account now.
func (s *AccountService) RefreshAccount(ctx context.Context, userID, accountID string) (*refresh.Result, error) {
	account, err := s.OwnedAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.refresher.Refresh(ctx, *account)
}

func (s *AccountService) validate(ctx context.Context, account model.Account, token string) error {
	src, err := s.sources.New(account, token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := src.ValidateConnection(ctx); err != nil {
		return fmt.Errorf("validating %s account: %w", account.Provider, err)
	}
	return nil
}

func (s *AccountService) seal(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	sealed, err := s.cipher.Encrypt(token)
	if err != nil {
		return "", fmt.Errorf("encrypting credential: %w", err)
	}
	return sealed, nil
}

func (s *AccountService) open(credential string) (string, error) {
	if credential == "" {
		return "", nil
	}
	token, err := s.cipher.Decrypt(credential)
	if err != nil {
		return "", fmt.Errorf("decrypting credential: %w", err)
	}
	return token, nil
}

func keepsCredential(token string) bool {
	return strings.Trim(token, "*") == ""
}
