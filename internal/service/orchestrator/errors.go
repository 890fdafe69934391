package orchestrator

import "errors"

var (
	ErrReplicationUnhealthy = errors.New("replication is unhealthy")
	ErrStrategyPanic        = errors.New("sync strategy panicked")
	ErrPersistence          = errors.New("failed to persist sync outcome")
)
