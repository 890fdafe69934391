package trigger

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"shadow-sync/pkg/log"
)

// Launcher runs background work on tracked goroutines so shutdown can wait for it.
type Launcher struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	logger zerolog.Logger
}

func NewLauncher() *Launcher {
	return &Launcher{
		logger: log.Logger.With().Str("component", "launcher").Logger(),
	}
}

// Go starts fn unless the launcher has been shut down.
func (l *Launcher) Go(name string, fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLauncherClosed
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.logger.Debug().Str("task", name).Msg("Background task started")
		fn()
		l.logger.Debug().Str("task", name).Msg("Background task finished")
	}()
	return nil
}

// Shutdown refuses new work and waits for running tasks until ctx is done.
func (l *Launcher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info().Msg("All background tasks finished")
		return nil
	case <-ctx.Done():
		l.logger.Warn().Msg("Shutdown deadline reached with background tasks still running")
		return ctx.Err()
	}
}
