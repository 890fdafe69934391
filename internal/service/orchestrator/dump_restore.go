package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"shadow-sync/internal/checkpoint"
	"shadow-sync/internal/config"
	"shadow-sync/pkg/log"
)

const ArtifactName = "main_db_dump.sql"

// DumpRestoreStrategy replaces the whole secondary with a fresh dump of the primary.
type DumpRestoreStrategy struct {
	exporter     Exporter
	importer     Importer
	artifactPath string
	logger       zerolog.Logger
}

func NewDumpRestoreStrategy(exporter Exporter, importer Importer, stagingDir string) *DumpRestoreStrategy {
	return &DumpRestoreStrategy{
		exporter:     exporter,
		importer:     importer,
		artifactPath: filepath.Join(stagingDir, ArtifactName),
		logger:       log.Logger.With().Str("component", "dump_restore_strategy").Logger(),
	}
}

func (s *DumpRestoreStrategy) Name() config.Strategy {
	return config.StrategyDumpRestore
}

func (s *DumpRestoreStrategy) ArtifactPath() string {
	return s.artifactPath
}

func (s *DumpRestoreStrategy) Execute(ctx context.Context, cp *checkpoint.SyncCheckpoint) (*Outcome, error) {
	if cp != nil && cp.LastSyncAt != nil {
		s.logger.Info().Time("previous_sync_at", *cp.LastSyncAt).Str("previous_status", string(cp.LastSyncStatus)).
			Msg("Starting full copy")
	}

	if err := os.MkdirAll(filepath.Dir(s.artifactPath), 0o750); err != nil {
		return &Outcome{}, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer s.removeArtifact()

	size, err := s.exporter.Export(ctx, s.artifactPath)
	if err != nil {
		return &Outcome{}, err
	}
	outcome := &Outcome{DumpSizeBytes: &size}

	if _, err := s.importer.Import(ctx, s.artifactPath); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (s *DumpRestoreStrategy) removeArtifact() {
	if err := os.Remove(s.artifactPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn().Err(err).Str("artifact", s.artifactPath).Msg("Failed to remove staging artifact")
		return
	}
	s.logger.Debug().Str("artifact", s.artifactPath).Msg("Removed staging artifact")
}
