package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"shadow-sync/internal/checkpoint"
	"shadow-sync/internal/replication"
	"shadow-sync/pkg/converter"
	"shadow-sync/pkg/log"
)

var ErrReplicationDisabled = errors.New("replication monitoring is not configured")

type RunningProbe interface {
	IsRunning() (bool, error)
}

type HealthChecker interface {
	SlotName() string
	CheckHealth(ctx context.Context) (bool, *replication.Status)
}

// Document is the externally visible sync status. It only changes when a sync records its
// outcome or the lock changes hands.
type Document struct {
	IsRunning           bool              `json:"is_running"`
	LastSyncAt          *time.Time        `json:"last_sync_at"`
	LastSyncStatus      checkpoint.Status `json:"last_sync_status"`
	LastDumpSizeMB      *float64          `json:"last_dump_size_mb"`
	LastDurationSeconds *float64          `json:"last_duration_seconds"`
	LastError           *string           `json:"last_error"`
	TotalSyncs          int64             `json:"total_syncs"`
	FailedSyncs         int64             `json:"failed_syncs"`
}

type ReplicationHealth struct {
	SlotName string              `json:"slot_name"`
	Healthy  bool                `json:"healthy"`
	LagMB    *float64            `json:"lag_mb"`
	Slot     *replication.Status `json:"slot"`
}

type Service struct {
	probe   RunningProbe
	journal checkpoint.Journal
	monitor HealthChecker
	logger  zerolog.Logger
}

// NewService builds the read side of the gateway. monitor may be nil when the deployment does
// not use the replication strategy.
func NewService(probe RunningProbe, journal checkpoint.Journal, monitor HealthChecker) *Service {
	return &Service{
		probe:   probe,
		journal: journal,
		monitor: monitor,
		logger:  log.Logger.With().Str("component", "status").Logger(),
	}
}

func (s *Service) Status(ctx context.Context) (*Document, error) {
	running, err := s.probe.IsRunning()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to probe sync lock")
		return nil, fmt.Errorf("failed to probe sync lock: %w", err)
	}

	cp, err := s.journal.Read(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read checkpoint")
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var durationSeconds *float64
	if cp.LastDurationSeconds != nil {
		rounded := converter.RoundTo(*cp.LastDurationSeconds, 2)
		durationSeconds = &rounded
	}

	return &Document{
		IsRunning:           running,
		LastSyncAt:          cp.LastSyncAt,
		LastSyncStatus:      cp.LastSyncStatus,
		LastDumpSizeMB:      converter.OptionalBytesToMegabytes(cp.LastDumpSizeBytes),
		LastDurationSeconds: durationSeconds,
		LastError:           cp.LastError,
		TotalSyncs:          cp.TotalSyncs,
		FailedSyncs:         cp.FailedSyncs,
	}, nil
}

func (s *Service) Statistics(ctx context.Context) (*checkpoint.Statistics, error) {
	cp, err := s.journal.Read(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read checkpoint")
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	stats := cp.Statistics()
	stats.SuccessRate = converter.RoundTo(stats.SuccessRate, 4)
	return &stats, nil
}

func (s *Service) ReplicationHealth(ctx context.Context) (*ReplicationHealth, error) {
	if s.monitor == nil {
		return nil, ErrReplicationDisabled
	}

	healthy, slot := s.monitor.CheckHealth(ctx)
	report := &ReplicationHealth{
		SlotName: s.monitor.SlotName(),
		Healthy:  healthy,
		Slot:     slot,
	}
	if slot != nil {
		lag := converter.RoundTo(slot.LagMegabytes(), 2)
		report.LagMB = &lag
	}
	return report, nil
}
