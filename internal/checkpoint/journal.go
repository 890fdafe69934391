package checkpoint

import (
	"context"
	"time"
)

// Journal persists the SyncCheckpoint. Writers are expected to hold the sync lock, so
// implementations do not serialise concurrent writers themselves.
type Journal interface {
	// Read returns the current checkpoint, creating the default one when none exists yet.
	Read(ctx context.Context) (*SyncCheckpoint, error)
	RecordSuccess(ctx context.Context, record SuccessRecord) (*SyncCheckpoint, error)
	RecordFailure(ctx context.Context, message string) (*SyncCheckpoint, error)
}

type clock func() time.Time
