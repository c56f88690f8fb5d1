// Package sync drives the periodic refresh of every account.
package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/refresh"
	"github.com/nhle/ambrose/internal/source"
)

// SyncState represents the current state of an account refresh.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	}
	return "idle"
}

// SyncStatus holds the refresh state of a single account.
type SyncStatus struct {
	AccountID string
	Nickname  string
	Provider  model.ProviderType
	State     SyncState
	LastSync  time.Time
	Error     error
	AuthError bool
	Result    *refresh.Result
}

// AccountLister lists every account to refresh.
type AccountLister interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
}

// AccountRefresher refreshes one account.
type AccountRefresher interface {
	Refresh(ctx context.Context, account model.Account) (*refresh.Result, error)
}

// CycleReport lists the accounts a cycle attempted and those that failed.
type CycleReport struct {
	Attempted []string
	Failed    map[string]error
}

// Scheduler refreshes all accounts on a fixed interval through a bounded
// worker pool. It never writes tasks itself.
type Scheduler struct {
	accounts       AccountLister
	refresher      AccountRefresher
	logger         *zap.Logger
	interval       time.Duration
	workers        int
	accountTimeout time.Duration

	statuses  map[string]*SyncStatus
	triggerCh chan struct{}
	stopCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInterval sets the time between cycles.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithWorkers bounds how many accounts refresh at once.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithAccountTimeout abandons one account's refresh after d.
func WithAccountTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.accountTimeout = d
		}
	}
}

// New creates a Scheduler.
func New(accounts AccountLister, refresher AccountRefresher, opts ...Option) *Scheduler {
	s := &Scheduler{
		accounts:       accounts,
		refresher:      refresher,
		logger:         zap.NewNop(),
		interval:       60 * time.Second,
		workers:        4,
		accountTimeout: 45 * time.Second,
		statuses:       make(map[string]*SyncStatus),
		triggerCh:      make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs a cycle immediately and then on every tick until ctx is
// cancelled or Stop is called. It blocks; callers run it in a goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.RunCycle(ctx)
		case <-s.triggerCh:
			s.RunCycle(ctx)
		}
	}
}

// Stop halts a running Start loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Trigger requests an immediate cycle. Requests made while one is already
// pending are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// RunCycle refreshes every account once. A failing or panicking account
// is recorded and never affects the others.
func (s *Scheduler) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{Failed: make(map[string]error)}

	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		s.logger.Error("listing accounts", zap.Error(err))
		return report
	}

	var mu gosync.Mutex
	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, account := range accounts {
		report.Attempted = append(report.Attempted, account.ID)
		g.Go(func() error {
			if err := s.refreshOne(ctx, account); err != nil {
				mu.Lock()
				report.Failed[account.ID] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(report.Failed) > 0 {
		s.logger.Info("refresh cycle finished with failures",
			zap.Int("accounts", len(report.Attempted)),
			zap.Int("failed", len(report.Failed)),
		)
	}
	return report
}

func (s *Scheduler) refreshOne(ctx context.Context, account model.Account) (err error) {
	log := s.logger.With(
		zap.String("account", account.ID),
		zap.String("nickname", account.DisplayName()),
		zap.String("provider", string(account.Provider)),
	)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
			log.Error("account refresh panicked", zap.Any("panic", r))
			s.setStatus(account, SyncError, nil, err)
		}
	}()

	s.setStatus(account, SyncRunning, nil, nil)

	ctx, cancel := context.WithTimeout(ctx, s.accountTimeout)
	defer cancel()

	result, err := s.refresher.Refresh(ctx, account)
	if err != nil {
		log.Warn("account refresh failed", zap.Error(err))
		s.setStatus(account, SyncError, nil, err)
		return err
	}

	s.setStatus(account, SyncIdle, result, nil)
	return nil
}

// setStatus updates the refresh status of an account.
func (s *Scheduler) setStatus(account model.Account, state SyncState, result *refresh.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.statuses[account.ID]
	if !ok {
		status = &SyncStatus{AccountID: account.ID}
		s.statuses[account.ID] = status
	}
	status.Nickname = account.DisplayName()
	status.Provider = account.Provider
	status.State = state
	status.Error = err
	status.AuthError = source.IsAuthError(err)
	if result != nil {
		status.Result = result
		for _, f := range result.Failures {
			if f.Auth {
				status.AuthError = true
			}
		}
	}
	if state == SyncIdle && err == nil {
		status.LastSync = time.Now()
	}
}

// Statuses returns a snapshot of the last known status of every account.
func (s *Scheduler) Statuses() []SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		statuses = append(statuses, *st)
	}
	return statuses
}
