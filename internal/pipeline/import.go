package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"shadow-sync/internal/config"
	"shadow-sync/pkg/log"
)

// Importer replays a dump into the secondary inside a single transaction, so the secondary
// ends up either fully replaced or untouched.
type Importer struct {
	runner      Runner
	binary      string
	target      *config.Postgres
	timeout     time.Duration
	onErrorStop bool
	logger      zerolog.Logger
}

func NewImporter(runner Runner, binary string, target *config.Postgres, timeout time.Duration, onErrorStop bool) *Importer {
	return &Importer{
		runner:      runner,
		binary:      binary,
		target:      target,
		timeout:     timeout,
		onErrorStop: onErrorStop,
		logger: log.Logger.With().
			Str("component", "importer").
			Str("target", fmt.Sprintf("%s:%d/%s", target.Address, target.Port, target.DBName)).
			Logger(),
	}
}

func (i *Importer) command(artifactPath string) Command {
	args := []string{
		"-h", i.target.Address,
		"-p", strconv.Itoa(i.target.Port),
		"-U", i.target.Username,
		"-d", i.target.DBName,
		"-f", artifactPath,
		"--quiet",
		"--single-transaction",
		"--no-psqlrc",
	}
	if i.onErrorStop {
		args = append(args, "-v", "ON_ERROR_STOP=1")
	}
	return Command{
		Name:    i.binary,
		Args:    args,
		Env:     postgresEnv(i.target.Password, i.target.SSLMode),
		Timeout: i.timeout,
	}
}

func (i *Importer) Import(ctx context.Context, artifactPath string) (*ImportReport, error) {
	i.logger.Info().Str("artifact", artifactPath).Msg("Starting import")

	result, err := i.runner.Run(ctx, i.command(artifactPath))
	if err != nil {
		i.logger.Error().Err(err).Msg("Import did not complete")
		return nil, fmt.Errorf("%w: %w", ErrImportFailed, err)
	}

	report := ClassifyImport(result.ExitCode, result.Stderr)
	for _, d := range report.Diagnostics {
		if d.Severity < SeverityError {
			i.logger.Debug().Str("severity", d.Severity.String()).Str("line", d.Line).Msg("Import diagnostic")
		}
	}

	if report.Fatal {
		i.logger.Error().
			Int("exit_code", result.ExitCode).
			Str("reason", report.Reason).
			Str("stderr", tail(result.Stderr)).
			Msg("Import failed")
		return report, fmt.Errorf("%w: %s", ErrImportFailed, report.Reason)
	}

	i.logger.Info().
		Int("notices", report.Count(SeverityNotice)).
		Int("warnings", report.Count(SeverityWarning)).
		Dur("duration", result.Duration).
		Msg("Import completed")
	return report, nil
}
