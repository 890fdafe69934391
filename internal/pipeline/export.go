package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"shadow-sync/internal/config"
	"shadow-sync/pkg/log"
)

// Exporter dumps the primary database to a plain SQL file that recreates every object.
type Exporter struct {
	runner  Runner
	binary  string
	source  *config.Postgres
	timeout time.Duration
	logger  zerolog.Logger
}

func NewExporter(runner Runner, binary string, source *config.Postgres, timeout time.Duration) *Exporter {
	return &Exporter{
		runner:  runner,
		binary:  binary,
		source:  source,
		timeout: timeout,
		logger: log.Logger.With().
			Str("component", "exporter").
			Str("source", fmt.Sprintf("%s:%d/%s", source.Address, source.Port, source.DBName)).
			Logger(),
	}
}

func (e *Exporter) command(artifactPath string) Command {
	return Command{
		Name: e.binary,
		Args: []string{
			"-h", e.source.Address,
			"-p", strconv.Itoa(e.source.Port),
			"-U", e.source.Username,
			"-d", e.source.DBName,
			"--clean",
			"--if-exists",
			"--no-owner",
			"--no-privileges",
			"-f", artifactPath,
		},
		Env:     postgresEnv(e.source.Password, e.source.SSLMode),
		Timeout: e.timeout,
	}
}

// Export writes the dump to artifactPath and returns its size. A missing or empty artifact
// is a failure even when the tool exits cleanly.
func (e *Exporter) Export(ctx context.Context, artifactPath string) (int64, error) {
	e.logger.Info().Str("artifact", artifactPath).Msg("Starting export")

	result, err := e.runner.Run(ctx, e.command(artifactPath))
	if err != nil {
		e.logger.Error().Err(err).Msg("Export did not complete")
		return 0, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	if result.ExitCode != 0 {
		e.logger.Error().Int("exit_code", result.ExitCode).Str("stderr", tail(result.Stderr)).Msg("Export failed")
		return 0, fmt.Errorf("%w: %s exited with status %d: %s",
			ErrExportFailed, e.binary, result.ExitCode, tail(result.Stderr))
	}

	info, err := os.Stat(artifactPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %w: %s is missing", ErrExportFailed, ErrEmptyArtifact, artifactPath)
		}
		return 0, fmt.Errorf("%w: cannot stat artifact: %w", ErrExportFailed, err)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%w: %w: %s", ErrExportFailed, ErrEmptyArtifact, artifactPath)
	}

	e.logger.Info().
		Int64("size_bytes", info.Size()).
		Dur("duration", result.Duration).
		Msg("Export completed")
	return info.Size(), nil
}
