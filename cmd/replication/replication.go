package replication

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"shadow-sync/cmd/common"
	"shadow-sync/internal/core"
	"shadow-sync/pkg/log"
)

var ErrUnhealthy = errors.New("replication is unhealthy")

var ReplicationCmd = &cobra.Command{
	Use:   "replication",
	Short: "Inspect logical replication into the secondary",
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the replication slot feeding the secondary",
	Long:    `Print the replication slot status as JSON. Exits non-zero when the slot is missing or inactive.`,
	Example: `shadow-sync replication health --config /path/to/config.yaml`,
	RunE:    runHealth,
}

func init() {
	ReplicationCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	appConfig, err := common.LoadConfig()
	if err != nil {
		log.Logger.Error().Err(err).Msg("Error creating config")
		return err
	}
	logger := log.WithComponent("replication-health")

	wiring := core.NewWiring(appConfig)
	defer func() {
		if err := wiring.Close(); err != nil {
			logger.Warn().Err(err).Msg("Error closing connections")
		}
	}()

	ctx := cmd.Context()
	statusSvc, err := wiring.InitStatusService(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error creating status service")
		return err
	}

	health, err := statusSvc.ReplicationHealth(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Replication health is not available")
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(health); err != nil {
		return err
	}
	if !health.Healthy {
		return ErrUnhealthy
	}
	return nil
}
