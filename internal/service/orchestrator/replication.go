package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"shadow-sync/internal/checkpoint"
	"shadow-sync/internal/config"
	"shadow-sync/pkg/log"
)

// ReplicationStrategy relies on continuous logical replication for the database and only copies
// bulk assets, after confirming the replication path is alive.
type ReplicationStrategy struct {
	monitor HealthChecker
	assets  AssetSyncer
	logger  zerolog.Logger
}

func NewReplicationStrategy(monitor HealthChecker, assets AssetSyncer) *ReplicationStrategy {
	return &ReplicationStrategy{
		monitor: monitor,
		assets:  assets,
		logger:  log.Logger.With().Str("component", "replication_strategy").Logger(),
	}
}

func (s *ReplicationStrategy) Name() config.Strategy {
	return config.StrategyReplication
}

func (s *ReplicationStrategy) Execute(ctx context.Context, cp *checkpoint.SyncCheckpoint) (*Outcome, error) {
	healthy, status := s.monitor.CheckHealth(ctx)
	outcome := &Outcome{ReplicationStatus: status}
	if !healthy {
		if status == nil {
			return outcome, fmt.Errorf("%w: replication slot missing or unreachable", ErrReplicationUnhealthy)
		}
		return outcome, fmt.Errorf("%w: replication slot %s is inactive", ErrReplicationUnhealthy, status.SlotName)
	}

	var (
		previousPosition *string
		since            *time.Time
	)
	if cp != nil {
		previousPosition = cp.ReplicationPosition
		since = cp.LastAssetSyncAt
	}
	s.logger.Info().
		Interface("previous_position", previousPosition).
		Interface("assets_since", since).
		Msg("Replication healthy, syncing assets")

	mark, err := s.assets.Sync(ctx, since)
	if err != nil {
		return outcome, err
	}
	outcome.AssetSyncAt = &mark

	outcome.ReplicationPosition = status.PositionOr(previousPosition)
	return outcome, nil
}
