package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/ambrose/internal/credential"
	"github.com/nhle/ambrose/internal/events"
	"github.com/nhle/ambrose/internal/logging"
	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/refresh"
	"github.com/nhle/ambrose/internal/service"
	"github.com/nhle/ambrose/internal/source/registry"
	"github.com/nhle/ambrose/internal/store"
	ambsync "github.com/nhle/ambrose/internal/sync"
	"github.com/nhle/ambrose/internal/telemetry"
)

// runtime holds the wired components shared by the commands.
type runtime struct {
	cfg       *model.AppConfig
	logger    *zap.Logger
	store     *store.SQLStore
	bus       events.Bus
	telemetry *telemetry.Provider
	refresher *refresh.Refresher
	scheduler *ambsync.Scheduler
	accounts  *service.AccountService
	users     *service.UserService
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger}
	if err := rt.wire(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) wire(ctx context.Context) error {
	cfg := rt.cfg

	var ring credential.Keyring
	if cfg.Credentials.UseKeyring && cfg.Credentials.SecretKey == "" {
		r, err := credential.OpenKeyring()
		if err != nil {
			return err
		}
		ring = r
	}
	secret, err := credential.LoadSecret(cfg.Credentials.SecretKey, ring)
	if err != nil {
		return fmt.Errorf("loading deployment secret: %w", err)
	}
	cipher, err := credential.NewCipher(secret)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	rt.store = st

	if rt.bus, err = events.New(cfg.Events); err != nil {
		return err
	}
	if rt.telemetry, err = telemetry.NewProvider(cfg.Metrics.Enabled); err != nil {
		return err
	}
	metrics, err := telemetry.NewMetrics(rt.telemetry.MeterProvider())
	if err != nil {
		return err
	}

	sources := registry.New(registry.Endpoints{})
	locks := ambsync.NewAccountLocks()
	rt.refresher = refresh.New(st, sources, cipher, locks,
		refresh.WithLogger(rt.logger.Named("refresh")),
		refresh.WithMetrics(metrics),
		refresh.WithPublisher(rt.bus),
		refresh.WithConcurrency(cfg.Scheduler.PerAccountConcurrency),
	)
	rt.scheduler = ambsync.New(st, rt.refresher,
		ambsync.WithLogger(rt.logger.Named("scheduler")),
		ambsync.WithInterval(cfg.Scheduler.Interval),
		ambsync.WithWorkers(cfg.Scheduler.Workers),
		ambsync.WithAccountTimeout(cfg.Scheduler.AccountTimeout),
	)
	rt.accounts = service.NewAccountService(st, sources, cipher, locks, rt.refresher,
		service.WithLogger(rt.logger.Named("accounts")),
		service.WithMetrics(metrics),
		service.WithPublisher(rt.bus),
		service.WithAccountTimeout(cfg.Scheduler.AccountTimeout),
	)
	rt.users = service.NewUserService(st)
	return nil
}

// Close releases everything the runtime opened.
func (rt *runtime) Close() {
	var errs []error
	if rt.bus != nil {
		errs = append(errs, rt.bus.Close())
	}
	if rt.telemetry != nil {
		errs = append(errs, rt.telemetry.Shutdown(context.Background()))
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		rt.logger.Warn("closing runtime", zap.Error(err))
	}
	_ = rt.logger.Sync()
}

// user resolves a username given on the command line.
func (rt *runtime) user(ctx context.Context, username string) (*model.User, error) {
	if username == "" {
		return nil, errors.New("--user is required")
	}
	u, err := rt.users.UserByName(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	return u, nil
}
