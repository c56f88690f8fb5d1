package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/ambrose/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic refresh",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()
		return serve(ctx, rt)
	},
}

func serve(ctx context.Context, rt *runtime) error {
	opts := []api.Option{
		api.WithLogger(rt.logger.Named("http")),
		api.WithSyncStatus(rt.scheduler.Statuses),
		api.WithHealthCheck(rt.store.Ping),
	}
	if rt.cfg.Metrics.Enabled {
		opts = append(opts, api.WithMetricsHandler(rt.telemetry.Handler()))
	}
	srv := &http.Server{
		Addr:              rt.cfg.Server.Addr,
		Handler:           api.NewServer(rt.accounts, rt.users, opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return rt.scheduler.Start(ctx)
	})
	g.Go(func() error {
		logEvents(ctx, rt)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		rt.scheduler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// logEvents follows the event bus at debug level when the backend can be
// subscribed to.
func logEvents(ctx context.Context, rt *runtime) {
	ch, unsubscribe, err := rt.bus.Subscribe(ctx)
	if err != nil {
		rt.logger.Debug("not following task events", zap.Error(err))
		return
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			rt.logger.Debug("task changed",
				zap.String("task", ev.TaskID),
				zap.String("name", ev.Name),
				zap.String("from", ev.PrevValue),
				zap.String("to", ev.Value),
				zap.String("source", ev.Source),
			)
		}
	}
}
