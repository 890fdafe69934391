package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"shadow-sync/pkg/log"
)

const waitDelay = 10 * time.Second

// Command is one invocation of an external tool.
type Command struct {
	Name    string
	Args    []string
	Env     []string
	Timeout time.Duration
}

type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes external tools. A non-zero exit is reported in the result, not as an error;
// errors mean the tool could not be run to completion (not found, timed out, cancelled).
type Runner interface {
	Run(ctx context.Context, cmd Command) (*CommandResult, error)
}

type ExecRunner struct {
	logger zerolog.Logger
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		logger: log.Logger.With().Str("component", "exec_runner").Logger(),
	}
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*CommandResult, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Env = append(os.Environ(), cmd.Env...)
	c.Stdout = &stdout
	c.Stderr = &stderr
	c.WaitDelay = waitDelay

	r.logger.Debug().Str("command", cmd.Name).Strs("args", cmd.Args).Dur("timeout", cmd.Timeout).Msg("Running command")

	start := time.Now()
	err := c.Run()
	result := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return result, fmt.Errorf("%w: %s after %s", ErrStepTimeout, cmd.Name, cmd.Timeout)
		}
		return result, fmt.Errorf("%s interrupted: %w", cmd.Name, ctxErr)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	default:
		result.ExitCode = -1
		return result, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
	}
}

// postgresEnv passes the password through the environment so it never shows up in the
// process list.
func postgresEnv(password, sslMode string) []string {
	env := []string{"PGPASSWORD=" + password}
	if sslMode != "" {
		env = append(env, "PGSSLMODE="+sslMode)
	}
	return env
}

// tail keeps the last bytes of s, starting on a rune boundary.
//
//nolint:mnd
func tail(s string) string {
	const limit = 2048
	if len(s) <= limit {
		return s
	}
	start := len(s) - limit
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return "..." + s[start:]
}
