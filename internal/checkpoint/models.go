package checkpoint

import (
	"time"
)

type Status string

const (
	StatusNever   Status = "never"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// SyncCheckpoint is the single durable record of sync progress for a deployment.
type SyncCheckpoint struct {
	LastSyncAt          *time.Time `json:"last_sync_at" db:"last_sync_at"`
	LastSyncStatus      Status     `json:"last_sync_status" db:"last_sync_status"`
	LastDumpSizeBytes   *int64     `json:"last_dump_size_bytes" db:"last_dump_size_bytes"`
	LastDurationSeconds *float64   `json:"last_duration_seconds" db:"last_duration_seconds"`
	LastError           *string    `json:"last_error" db:"last_error"`
	TotalSyncs          int64      `json:"total_syncs" db:"total_syncs"`
	FailedSyncs         int64      `json:"failed_syncs" db:"failed_syncs"`
	ReplicationPosition *string    `json:"replication_position" db:"replication_position"`
	LastAssetSyncAt     *time.Time `json:"last_asset_sync_at" db:"last_asset_sync_at"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	Version             int64      `json:"version" db:"version"`
}

// SuccessRecord carries what a successful attempt produced. Nil fields keep the previous value.
type SuccessRecord struct {
	Duration            time.Duration
	SizeBytes           *int64
	ReplicationPosition *string
	AssetSyncAt         *time.Time
}

type Statistics struct {
	TotalSyncs     int64      `json:"total_syncs"`
	FailedSyncs    int64      `json:"failed_syncs"`
	SuccessRate    float64    `json:"success_rate"`
	LastSyncAt     *time.Time `json:"last_sync_at"`
	LastSyncStatus Status     `json:"last_sync_status"`
	CreatedAt      time.Time  `json:"created_at"`
}

func NewSyncCheckpoint(now time.Time) *SyncCheckpoint {
	return &SyncCheckpoint{
		LastSyncStatus: StatusNever,
		CreatedAt:      now.UTC(),
	}
}

// SuccessRate is successes over all finished attempts, 0 when nothing has run yet.
func (c *SyncCheckpoint) SuccessRate() float64 {
	attempts := c.TotalSyncs + c.FailedSyncs
	if attempts == 0 {
		return 0
	}
	return float64(c.TotalSyncs) / float64(attempts)
}

func (c *SyncCheckpoint) Statistics() Statistics {
	return Statistics{
		TotalSyncs:     c.TotalSyncs,
		FailedSyncs:    c.FailedSyncs,
		SuccessRate:    c.SuccessRate(),
		LastSyncAt:     c.LastSyncAt,
		LastSyncStatus: c.LastSyncStatus,
		CreatedAt:      c.CreatedAt,
	}
}

func (c *SyncCheckpoint) applySuccess(record SuccessRecord, now time.Time) {
	at := now.UTC()
	seconds := record.Duration.Seconds()

	c.LastSyncAt = &at
	c.LastSyncStatus = StatusSuccess
	c.LastDurationSeconds = &seconds
	c.LastError = nil
	c.TotalSyncs++
	if record.SizeBytes != nil {
		size := *record.SizeBytes
		c.LastDumpSizeBytes = &size
	}
	if record.ReplicationPosition != nil {
		position := *record.ReplicationPosition
		c.ReplicationPosition = &position
	}
	if record.AssetSyncAt != nil {
		assetAt := record.AssetSyncAt.UTC()
		c.LastAssetSyncAt = &assetAt
	}
	c.Version++
}

func (c *SyncCheckpoint) applyFailure(message string, now time.Time) {
	at := now.UTC()

	c.LastSyncAt = &at
	c.LastSyncStatus = StatusFailed
	c.LastError = &message
	c.FailedSyncs++
	c.Version++
}
