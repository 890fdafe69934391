package log

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const serviceName = "shadow-sync"

//nolint:gochecknoglobals
var Logger zerolog.Logger

// Init replaces the global logger once the configuration is known.
// Unknown levels fall back to info.
func Init(deploymentID string, levelStr string) {
	zerolog.SetGlobalLevel(parseLevel(levelStr))

	Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Str("deployment_id", deploymentID).
		Logger()
}

func parseLevel(levelStr string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelStr)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// WithComponent returns a child of the global logger tagged with the component name.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

//nolint:gochecknoinits
func init() {
	if isTestSilentMode() {
		Logger = zerolog.New(io.Discard)
		zerolog.SetGlobalLevel(zerolog.Disabled)
		return
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()
}

func isTestSilentMode() bool {
	silent := os.Getenv("TEST_SILENT")
	return isTestMode() && (silent == "1" || silent == "true")
}

func isTestMode() bool {
	for _, arg := range os.Args {
		if strings.HasSuffix(arg, ".test") || strings.Contains(arg, "-test.") {
			return true
		}
	}
	return false
}
