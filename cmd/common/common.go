package common

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"shadow-sync/internal/config"
	"shadow-sync/pkg/log"
)

// LoadConfig reads the configuration and reinitialises the global logger with it.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log.Init(cfg.ID, cfg.LogLevel)
	return cfg, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
