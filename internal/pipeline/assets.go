package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"shadow-sync/pkg/log"
)

// AssetSyncer runs the bulk asset copy tool, optionally limited to objects changed since the
// previous high-water mark.
type AssetSyncer struct {
	runner  Runner
	command string
	args    []string
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

func NewAssetSyncer(runner Runner, command string, args []string, timeout time.Duration) *AssetSyncer {
	return &AssetSyncer{
		runner:  runner,
		command: command,
		args:    args,
		timeout: timeout,
		now:     time.Now,
		logger:  log.Logger.With().Str("component", "asset_syncer").Str("command", command).Logger(),
	}
}

// Sync returns the new high-water mark: the time the copy started, so objects written while it
// ran are picked up again next time.
func (a *AssetSyncer) Sync(ctx context.Context, since *time.Time) (time.Time, error) {
	startedAt := a.now().UTC()

	args := append([]string{}, a.args...)
	if since != nil {
		args = append(args, "--since", since.UTC().Format(time.RFC3339))
	}

	event := a.logger.Info()
	if since != nil {
		event = event.Time("since", *since)
	}
	event.Msg("Starting asset sync")

	result, err := a.runner.Run(ctx, Command{Name: a.command, Args: args, Timeout: a.timeout})
	if err != nil {
		a.logger.Error().Err(err).Msg("Asset sync did not complete")
		return time.Time{}, fmt.Errorf("%w: %w", ErrAssetSyncFailed, err)
	}
	if result.ExitCode != 0 {
		a.logger.Error().Int("exit_code", result.ExitCode).Str("stderr", tail(result.Stderr)).Msg("Asset sync failed")
		return time.Time{}, fmt.Errorf("%w: %s exited with status %d: %s",
			ErrAssetSyncFailed, a.command, result.ExitCode, tail(result.Stderr))
	}

	a.logger.Info().Dur("duration", result.Duration).Msg("Asset sync completed")
	return startedAt, nil
}
