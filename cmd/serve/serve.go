package serve

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"shadow-sync/cmd/common"
	"shadow-sync/internal/core"
	"shadow-sync/internal/service/scheduler"
	"shadow-sync/internal/service/trigger"
	"shadow-sync/pkg/log"
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the status and trigger gateway",
	Long: `Serve the HTTP gateway for sync status, manual triggers, replication health and metrics.
When schedule.enabled is set the scheduler runs in the same process.`,
	Example: `shadow-sync serve --config /path/to/config.yaml`,
	RunE:    runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	appConfig, err := common.LoadConfig()
	if err != nil {
		log.Logger.Error().Err(err).Msg("Error creating config")
		return err
	}
	logger := log.WithComponent("serve")

	wiring := core.NewWiring(appConfig)
	defer func() {
		if err := wiring.Close(); err != nil {
			logger.Warn().Err(err).Msg("Error closing connections")
		}
	}()

	ctx, stop := common.SignalContext(cmd.Context())
	defer stop()

	launcher := trigger.NewLauncher()
	server, err := wiring.InitGateway(ctx, launcher)
	if err != nil {
		logger.Error().Err(err).Msg("Error creating gateway")
		return err
	}

	var sched *scheduler.Scheduler
	if appConfig.Schedule.Enabled {
		sched, err = wiring.InitScheduler(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Error creating scheduler")
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	if sched != nil {
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), appConfig.Gateway.ShutdownTimeout)
		defer cancel()
		if err := launcher.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Background syncs still running at shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Gateway stopped with error")
		return err
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}
