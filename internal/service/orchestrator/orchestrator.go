package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shadow-sync/internal/checkpoint"
	"shadow-sync/internal/config"
	"shadow-sync/internal/lock"
	"shadow-sync/internal/metrics"
	"shadow-sync/internal/replication"
	"shadow-sync/pkg/log"
)

type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultSkipped ResultStatus = "skipped"
	ResultFailed  ResultStatus = "failed"
)

const ReasonAlreadyRunning = "sync already in progress"

type SyncResult struct {
	AttemptID           string              `json:"attempt_id"`
	Strategy            config.Strategy     `json:"strategy"`
	Status              ResultStatus        `json:"status"`
	Reason              string              `json:"reason,omitempty"`
	Error               string              `json:"error,omitempty"`
	StartedAt           time.Time           `json:"started_at"`
	Duration            time.Duration       `json:"duration"`
	DumpSizeBytes       *int64              `json:"dump_size_bytes,omitempty"`
	ReplicationStatus   *replication.Status `json:"replication_status,omitempty"`
	ReplicationPosition *string             `json:"replication_position,omitempty"`
	AssetSyncAt         *time.Time          `json:"asset_sync_at,omitempty"`
}

// SyncOrchestrator runs at most one sync attempt at a time across all processes sharing the
// lock, and records the outcome of every attempt that got to run.
type SyncOrchestrator struct {
	guard    lock.Guard
	journal  checkpoint.Journal
	strategy Strategy
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   zerolog.Logger
}

func NewSyncOrchestrator(
	guard lock.Guard,
	journal checkpoint.Journal,
	strategy Strategy,
	mt *metrics.Metrics,
) *SyncOrchestrator {
	return &SyncOrchestrator{
		guard:    guard,
		journal:  journal,
		strategy: strategy,
		metrics:  mt,
		now:      time.Now,
		logger: log.Logger.With().
			Str("component", "orchestrator").
			Str("strategy", string(strategy.Name())).
			Logger(),
	}
}

func (o *SyncOrchestrator) Strategy() config.Strategy {
	return o.strategy.Name()
}

// IsRunning reports whether any process currently holds the sync lock.
func (o *SyncOrchestrator) IsRunning() (bool, error) {
	return o.guard.IsHeld()
}

// RunSync blocks until the attempt is finished. Sync failures are reported in the result; the
// returned error is only set when the lock or the checkpoint could not be handled. The strategy
// runs detached from ctx cancellation and is bounded by its own step timeouts.
func (o *SyncOrchestrator) RunSync(ctx context.Context) (result *SyncResult, err error) {
	result = &SyncResult{
		AttemptID: uuid.NewString(),
		Strategy:  o.strategy.Name(),
		StartedAt: o.now().UTC(),
	}
	logger := o.logger.With().Str("attempt_id", result.AttemptID).Logger()

	acquired, err := o.guard.TryAcquire()
	if err != nil {
		logger.Error().Err(err).Msg("Could not acquire sync lock")
		result.Status = ResultFailed
		result.Error = err.Error()
		return result, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		logger.Info().Msg("Sync already in progress, skipping")
		result.Status = ResultSkipped
		result.Reason = ReasonAlreadyRunning
		o.metrics.SyncSkipped(string(result.Strategy))
		return result, nil
	}

	o.metrics.SyncStarted()
	defer func() {
		if releaseErr := o.guard.Release(); releaseErr != nil {
			logger.Error().Err(releaseErr).Msg("Failed to release sync lock")
			err = errors.Join(err, releaseErr)
		}
		o.metrics.SyncFinished(string(result.Strategy), string(result.Status), result.Duration)
	}()

	logger.Info().Msg("Starting sync")
	runCtx := context.WithoutCancel(ctx)

	cp, err := o.journal.Read(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read checkpoint")
		result.Status = ResultFailed
		result.Error = err.Error()
		result.Duration = o.now().Sub(result.StartedAt)
		return result, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	outcome, syncErr := o.execute(runCtx, cp, logger)
	result.Duration = o.now().Sub(result.StartedAt)
	if outcome != nil {
		result.DumpSizeBytes = outcome.DumpSizeBytes
		result.ReplicationStatus = outcome.ReplicationStatus
		result.ReplicationPosition = outcome.ReplicationPosition
		result.AssetSyncAt = outcome.AssetSyncAt
	}

	if syncErr != nil {
		result.Status = ResultFailed
		result.Error = syncErr.Error()
		if _, recordErr := o.journal.RecordFailure(runCtx, syncErr.Error()); recordErr != nil {
			logger.Error().Err(recordErr).Msg("Failed to record failed sync")
			err = fmt.Errorf("%w: %w", ErrPersistence, recordErr)
		}
		o.logSummary(logger, result)
		return result, err
	}

	result.Status = ResultSuccess
	_, recordErr := o.journal.RecordSuccess(runCtx, checkpoint.SuccessRecord{
		Duration:            result.Duration,
		SizeBytes:           result.DumpSizeBytes,
		ReplicationPosition: result.ReplicationPosition,
		AssetSyncAt:         result.AssetSyncAt,
	})
	if recordErr != nil {
		logger.Error().Err(recordErr).Msg("Failed to record successful sync")
		err = fmt.Errorf("%w: %w", ErrPersistence, recordErr)
	} else {
		o.metrics.SyncSucceeded(o.now(), result.DumpSizeBytes)
	}
	o.logSummary(logger, result)
	return result, err
}

// execute converts a strategy panic into a failed attempt so the lock is still released and
// the failure recorded.
func (o *SyncOrchestrator) execute(
	ctx context.Context,
	cp *checkpoint.SyncCheckpoint,
	logger zerolog.Logger,
) (outcome *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Sync strategy panicked")
			outcome = nil
			err = fmt.Errorf("%w: %v", ErrStrategyPanic, r)
		}
	}()
	return o.strategy.Execute(ctx, cp)
}

func (o *SyncOrchestrator) logSummary(logger zerolog.Logger, result *SyncResult) {
	event := logger.Info()
	if result.Status == ResultFailed {
		event = logger.Error().Str("error", result.Error)
	}
	if result.DumpSizeBytes != nil {
		event = event.Int64("dump_size_bytes", *result.DumpSizeBytes)
	}
	if result.ReplicationStatus != nil {
		event = event.Int64("lag_bytes", result.ReplicationStatus.LagBytes)
	}
	event.
		Str("status", string(result.Status)).
		Dur("duration", result.Duration).
		Msg("Synchronization completed")
}
