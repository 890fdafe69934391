package trigger

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"

	"shadow-sync/internal/service/orchestrator"
	"shadow-sync/pkg/log"
)

type Orchestrator interface {
	RunSync(ctx context.Context) (*orchestrator.SyncResult, error)
	IsRunning() (bool, error)
}

type Outcome int

const (
	OutcomeStarted Outcome = iota
	OutcomeAlreadyRunning
	OutcomeFailed
)

const (
	MessageStarted        = "Sync started"
	MessageAlreadyRunning = "Sync already in progress"
)

type TriggerResult struct {
	Outcome    Outcome `json:"-"`
	Started    bool    `json:"started"`
	IsRunning  bool    `json:"is_running,omitempty"`
	Message    string  `json:"message,omitempty"`
	Error      string  `json:"error,omitempty"`
	StackTrace string  `json:"stack_trace,omitempty"`
}

// Service starts syncs in the background on behalf of callers that cannot wait for them.
type Service struct {
	orchestrator Orchestrator
	launcher     *Launcher
	results      chan<- *orchestrator.SyncResult
	logger       zerolog.Logger
}

type Option func(*Service)

// WithResults delivers every finished background sync to ch. Sends never block.
func WithResults(ch chan<- *orchestrator.SyncResult) Option {
	return func(s *Service) {
		s.results = ch
	}
}

func NewService(orch Orchestrator, launcher *Launcher, opts ...Option) *Service {
	s := &Service{
		orchestrator: orch,
		launcher:     launcher,
		logger:       log.Logger.With().Str("component", "trigger").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger returns as soon as the sync is launched. The lock probe is only a hint; two callers
// may both see the lock free, and the orchestrator then skips the second one.
func (s *Service) Trigger(ctx context.Context) *TriggerResult {
	running, err := s.orchestrator.IsRunning()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to probe sync lock")
		return failed(fmt.Errorf("failed to probe sync lock: %w", err))
	}
	if running {
		s.logger.Info().Msg("Trigger rejected, sync already in progress")
		return &TriggerResult{
			Outcome:   OutcomeAlreadyRunning,
			IsRunning: true,
			Message:   MessageAlreadyRunning,
		}
	}

	runCtx := context.WithoutCancel(ctx)
	err = s.launcher.Go("sync", func() {
		s.run(runCtx)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to launch sync")
		return failed(fmt.Errorf("failed to launch sync: %w", err))
	}

	s.logger.Info().Msg("Sync launched")
	return &TriggerResult{
		Outcome: OutcomeStarted,
		Started: true,
		Message: MessageStarted,
	}
}

func (s *Service) run(ctx context.Context) {
	result, err := s.orchestrator.RunSync(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Background sync returned an error")
	}
	if result != nil {
		s.logger.Info().
			Str("attempt_id", result.AttemptID).
			Str("status", string(result.Status)).
			Msg("Background sync finished")
		if s.results != nil {
			select {
			case s.results <- result:
			default:
			}
		}
	}
}

func failed(err error) *TriggerResult {
	return &TriggerResult{
		Outcome:    OutcomeFailed,
		Error:      err.Error(),
		StackTrace: string(debug.Stack()),
	}
}
