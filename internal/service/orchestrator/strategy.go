package orchestrator

import (
	"context"
	"time"

	"shadow-sync/internal/checkpoint"
	"shadow-sync/internal/config"
	"shadow-sync/internal/pipeline"
	"shadow-sync/internal/replication"
)

// Strategy is one way of bringing the secondary up to date. It is chosen once at startup.
type Strategy interface {
	Name() config.Strategy
	// Execute runs one attempt. The outcome may be partially filled even when err is non-nil.
	Execute(ctx context.Context, cp *checkpoint.SyncCheckpoint) (*Outcome, error)
}

type Outcome struct {
	DumpSizeBytes       *int64
	ReplicationStatus   *replication.Status
	ReplicationPosition *string
	AssetSyncAt         *time.Time
}

type Exporter interface {
	Export(ctx context.Context, artifactPath string) (int64, error)
}

type Importer interface {
	Import(ctx context.Context, artifactPath string) (*pipeline.ImportReport, error)
}

type HealthChecker interface {
	CheckHealth(ctx context.Context) (bool, *replication.Status)
}

type AssetSyncer interface {
	Sync(ctx context.Context, since *time.Time) (time.Time, error)
}
