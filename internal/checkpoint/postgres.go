package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	postgres "shadow-sync/pkg/db"
	"shadow-sync/pkg/log"
)

var ErrJournalUnavailable = errors.New("checkpoint database is unavailable")

const (
	insertDefaultQuery = `INSERT INTO sync_checkpoint (id) VALUES (1) ON CONFLICT (id) DO NOTHING`
	selectQuery        = `SELECT last_sync_at, last_sync_status, last_dump_size_bytes, last_duration_seconds,
		last_error, total_syncs, failed_syncs, replication_position, last_asset_sync_at, created_at, version
		FROM sync_checkpoint WHERE id = 1`
	updateQuery = `UPDATE sync_checkpoint SET
		last_sync_at = :last_sync_at,
		last_sync_status = :last_sync_status,
		last_dump_size_bytes = :last_dump_size_bytes,
		last_duration_seconds = :last_duration_seconds,
		last_error = :last_error,
		total_syncs = :total_syncs,
		failed_syncs = :failed_syncs,
		replication_position = :replication_position,
		last_asset_sync_at = :last_asset_sync_at,
		version = :version
		WHERE id = 1 AND version = :version - 1`
)

// PostgresJournal keeps the checkpoint as the single row of the sync_checkpoint table in a
// dedicated state database. Updates are optimistic on the version column.
type PostgresJournal struct {
	psql           *postgres.PostgresDatastore
	circuitBreaker *gobreaker.CircuitBreaker
	retryOptFunc   func() []backoff.RetryOption
	now            clock
	logger         zerolog.Logger
}

func NewPostgresJournal(psql *postgres.PostgresDatastore) *PostgresJournal {
	return &PostgresJournal{
		psql:           psql,
		circuitBreaker: newCircuitBreaker(),
		retryOptFunc:   newBackoffStrategy,
		now:            time.Now,
		logger:         log.Logger.With().Str("component", "postgres_checkpoint_journal").Logger(),
	}
}

//nolint:mnd
func newCircuitBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "checkpoint_journal",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker changed state")
		},
	})
}

//nolint:mnd
func newBackoffStrategy() []backoff.RetryOption {
	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = 200 * time.Millisecond
	strategy.MaxInterval = 2 * time.Second
	return []backoff.RetryOption{
		backoff.WithBackOff(strategy),
		backoff.WithMaxTries(3),
	}
}

func (j *PostgresJournal) Read(ctx context.Context) (*SyncCheckpoint, error) {
	return j.execute(ctx, func() (*SyncCheckpoint, error) {
		return j.read(ctx)
	})
}

func (j *PostgresJournal) RecordSuccess(ctx context.Context, record SuccessRecord) (*SyncCheckpoint, error) {
	cp, err := j.update(ctx, func(cp *SyncCheckpoint) { cp.applySuccess(record, j.now()) })
	if err != nil {
		return nil, err
	}
	j.logger.Info().Int64("total_syncs", cp.TotalSyncs).Dur("duration", record.Duration).Msg("Recorded successful sync")
	return cp, nil
}

func (j *PostgresJournal) RecordFailure(ctx context.Context, message string) (*SyncCheckpoint, error) {
	cp, err := j.update(ctx, func(cp *SyncCheckpoint) { cp.applyFailure(message, j.now()) })
	if err != nil {
		return nil, err
	}
	j.logger.Warn().Int64("failed_syncs", cp.FailedSyncs).Str("error", message).Msg("Recorded failed sync")
	return cp, nil
}

// update reads, mutates and writes back the row. A lost optimistic update is not retried:
// it means someone wrote without holding the sync lock.
func (j *PostgresJournal) update(ctx context.Context, mutate func(*SyncCheckpoint)) (*SyncCheckpoint, error) {
	return j.execute(ctx, func() (*SyncCheckpoint, error) {
		cp, err := j.read(ctx)
		if err != nil {
			return nil, err
		}
		mutate(cp)

		result, err := j.psql.DB.NamedExecContext(ctx, updateQuery, cp)
		if err != nil {
			return nil, fmt.Errorf("failed to update checkpoint: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to update checkpoint: %w", err)
		}
		if affected == 0 {
			return nil, backoff.Permanent(ErrConcurrentUpdate)
		}
		return cp, nil
	})
}

func (j *PostgresJournal) read(ctx context.Context) (*SyncCheckpoint, error) {
	if _, err := j.psql.DB.ExecContext(ctx, insertDefaultQuery); err != nil {
		return nil, fmt.Errorf("failed to initialise checkpoint: %w", err)
	}

	var cp SyncCheckpoint
	if err := j.psql.DB.GetContext(ctx, &cp, selectQuery); err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	cp.CreatedAt = cp.CreatedAt.UTC()
	return &cp, nil
}

// execute runs op with retries inside the circuit breaker. A lost optimistic update passes
// through the breaker as a success so it never trips it.
func (j *PostgresJournal) execute(
	ctx context.Context,
	op func() (*SyncCheckpoint, error),
) (*SyncCheckpoint, error) {
	var conflict error
	result, err := j.circuitBreaker.Execute(func() (interface{}, error) {
		cp, err := backoff.Retry(ctx, op, j.retryOptFunc()...)
		if errors.Is(err, ErrConcurrentUpdate) {
			conflict = err
			return nil, nil
		}
		return cp, err
	})

	switch {
	case conflict != nil:
		j.logger.Error().Err(conflict).Msg("Checkpoint changed underneath the writer")
		return nil, ErrConcurrentUpdate
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		j.logger.Error().Err(err).Msg("Checkpoint database circuit is open")
		return nil, fmt.Errorf("%w: %w", ErrJournalUnavailable, err)
	case err != nil:
		j.logger.Error().Err(err).Msg("Checkpoint database operation failed")
		return nil, err
	}

	cp, _ := result.(*SyncCheckpoint)
	return cp, nil
}
