package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"shadow-sync/internal/service/orchestrator"
	"shadow-sync/pkg/log"
)

type Syncer interface {
	RunSync(ctx context.Context) (*orchestrator.SyncResult, error)
}

// Scheduler runs a sync on every tick. Ticks are handled one at a time, so a slow sync delays
// the next one instead of overlapping it.
type Scheduler struct {
	syncer     Syncer
	interval   time.Duration
	runOnStart bool
	logger     zerolog.Logger
}

func NewScheduler(syncer Syncer, interval time.Duration, runOnStart bool) *Scheduler {
	return &Scheduler{
		syncer:     syncer,
		interval:   interval,
		runOnStart: runOnStart,
		logger: log.Logger.With().
			Str("component", "scheduler").
			Dur("interval", interval).
			Logger(),
	}
}

// Run blocks until ctx is cancelled. A sync already running when ctx is cancelled finishes
// first.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Bool("run_on_start", s.runOnStart).Msg("Scheduler started")

	if s.runOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result, err := s.syncer.RunSync(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled sync returned an error")
	}
	if result != nil {
		s.logger.Info().
			Str("attempt_id", result.AttemptID).
			Str("status", string(result.Status)).
			Msg("Scheduled sync finished")
	}
}
