package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"shadow-sync/pkg/log"
)

// FileJournal keeps the checkpoint as a JSON document. Every write goes to a temp file in the
// same directory and is renamed over the document, so readers see the old or the new document
// and never a partial one.
type FileJournal struct {
	path   string
	now    clock
	logger zerolog.Logger

	// afterTempWrite runs between writing the temp file and renaming it.
	afterTempWrite func(tmpPath string) error
}

func NewFileJournal(path string) *FileJournal {
	return &FileJournal{
		path: path,
		now:  time.Now,
		logger: log.Logger.With().
			Str("component", "file_checkpoint_journal").
			Str("path", path).
			Logger(),
	}
}

func (j *FileJournal) Read(ctx context.Context) (*SyncCheckpoint, error) {
	cp, err := j.load()
	if err == nil {
		return cp, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	j.logger.Info().Msg("No checkpoint found, creating a new one")
	cp = NewSyncCheckpoint(j.now())
	if err := j.write(cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func (j *FileJournal) RecordSuccess(ctx context.Context, record SuccessRecord) (*SyncCheckpoint, error) {
	cp, err := j.Read(ctx)
	if err != nil {
		return nil, err
	}

	cp.applySuccess(record, j.now())
	if err := j.write(cp); err != nil {
		return nil, err
	}

	j.logger.Info().
		Int64("total_syncs", cp.TotalSyncs).
		Dur("duration", record.Duration).
		Msg("Recorded successful sync")
	return cp, nil
}

func (j *FileJournal) RecordFailure(ctx context.Context, message string) (*SyncCheckpoint, error) {
	cp, err := j.Read(ctx)
	if err != nil {
		return nil, err
	}

	cp.applyFailure(message, j.now())
	if err := j.write(cp); err != nil {
		return nil, err
	}

	j.logger.Warn().
		Int64("failed_syncs", cp.FailedSyncs).
		Str("error", message).
		Msg("Recorded failed sync")
	return cp, nil
}

func (j *FileJournal) load() (*SyncCheckpoint, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrCheckpointCorrupt, err)
	}

	var cp SyncCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		j.logger.Error().Err(err).Msg("Checkpoint document is not valid JSON")
		return nil, fmt.Errorf("%w: %w", ErrCheckpointCorrupt, err)
	}
	if cp.LastSyncStatus == "" {
		cp.LastSyncStatus = StatusNever
	}
	return &cp, nil
}

func (j *FileJournal) write(cp *SyncCheckpoint) error {
	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(j.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp checkpoint: %w", err)
	}

	if j.afterTempWrite != nil {
		if err := j.afterTempWrite(tmpPath); err != nil {
			return err
		}
	}

	if err := os.Rename(tmpPath, j.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	renamed = true

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
