package status

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"shadow-sync/cmd/common"
	"shadow-sync/internal/checkpoint"
	"shadow-sync/internal/core"
	svc "shadow-sync/internal/service/status"
	"shadow-sync/pkg/log"
)

type report struct {
	Status     *svc.Document          `json:"status"`
	Statistics *checkpoint.Statistics `json:"statistics"`
}

var StatusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Print the sync status and statistics",
	Long:    `Print the current sync status document and the lifetime statistics as JSON.`,
	Example: `shadow-sync status --config /path/to/config.yaml`,
	RunE:    runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	appConfig, err := common.LoadConfig()
	if err != nil {
		log.Logger.Error().Err(err).Msg("Error creating config")
		return err
	}
	logger := log.WithComponent("status")

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

	doc, err := statusSvc.Status(ctx)
	if err != nil {
		return err
	}
	stats, err := statusSvc.Statistics(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report{Status: doc, Statistics: stats})
}
