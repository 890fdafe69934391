package sync

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"shadow-sync/cmd/common"
	"shadow-sync/internal/core"
	"shadow-sync/internal/service/orchestrator"
	"shadow-sync/pkg/log"
)

var ErrSyncFailed = errors.New("sync failed")

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the secondary database with the primary",
	Long:  `Synchronize the secondary database with the primary using the configured strategy.`,
}

var onceCmd = &cobra.Command{
	Use:     "once",
	Short:   "Run one sync attempt and exit",
	Long:    `Run a single sync attempt. Exits non-zero when the attempt fails; a skipped attempt is not a failure.`,
	Example: `shadow-sync sync once --config /path/to/config.yaml`,
	RunE:    runOnce,
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	Short:   "Run syncs on the configured schedule",
	Long:    `Run sync attempts continuously every schedule.interval until interrupted.`,
	Example: `shadow-sync sync daemon --config /path/to/config.yaml`,
	RunE:    runDaemon,
}

func init() {
	SyncCmd.AddCommand(onceCmd)
	SyncCmd.AddCommand(daemonCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	appConfig, err := common.LoadConfig()
	if err != nil {
		log.Logger.Error().Err(err).Msg("Error creating config")
		return err
	}
	logger := log.WithComponent("sync-once")
	logger.Info().Str("strategy", string(appConfig.Strategy)).Msg("Starting one-time shadow-sync")

	wiring := core.NewWiring(appConfig)
	defer func() {
		if err := wiring.Close(); err != nil {
			logger.Warn().Err(err).Msg("Error closing connections")
		}
	}()

	ctx := cmd.Context()
	orch, err := wiring.InitOrchestrator(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error creating orchestrator")
		return err
	}

	result, err := orch.RunSync(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error during sync")
		return err
	}

	switch result.Status {
	case orchestrator.ResultFailed:
		return fmt.Errorf("%w: %s", ErrSyncFailed, result.Error)
	case orchestrator.ResultSkipped:
		logger.Info().Str("reason", result.Reason).Msg("One-time sync skipped")
	default:
		logger.Info().Dur("duration", result.Duration).Msg("One-time sync completed successfully")
	}
	return nil
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	appConfig, err := common.LoadConfig()
	if err != nil {
		log.Logger.Error().Err(err).Msg("Error creating config")
		return err
	}
	logger := log.WithComponent("sync-daemon")
	logger.Info().Dur("interval", appConfig.Schedule.Interval).Msg("Starting shadow-sync daemon")

	wiring := core.NewWiring(appConfig)
	defer func() {
		if err := wiring.Close(); err != nil {
			logger.Warn().Err(err).Msg("Error closing connections")
		}
	}()

	ctx, stop := common.SignalContext(cmd.Context())
	defer stop()

	sched, err := wiring.InitScheduler(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error creating scheduler")
		return err
	}
	return sched.Run(ctx)
}
