package checkpoint

import "errors"

var (
	ErrCheckpointCorrupt = errors.New("checkpoint is unreadable")
	ErrConcurrentUpdate  = errors.New("checkpoint was modified concurrently")
)
