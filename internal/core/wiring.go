package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"shadow-sync/internal/api"
	"shadow-sync/internal/checkpoint"
	"shadow-sync/internal/config"
	"shadow-sync/internal/lock"
	"shadow-sync/internal/metrics"
	"shadow-sync/internal/pipeline"
	"shadow-sync/internal/replication"
	"shadow-sync/internal/service/orchestrator"
	"shadow-sync/internal/service/scheduler"
	"shadow-sync/internal/service/status"
	"shadow-sync/internal/service/trigger"
	"shadow-sync/pkg/db"
	"shadow-sync/pkg/db/migrations"
	"shadow-sync/pkg/log"
)

// Wiring builds every component from the configuration. Components are created lazily and
// shared, so commands only open the connections they use. Call Close when done.
type Wiring struct {
	config  *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	guard        *lock.FileGuard
	journal      checkpoint.Journal
	monitor      *replication.Monitor
	orchestrator *orchestrator.SyncOrchestrator
	datastores   []*db.PostgresDatastore
}

func NewWiring(cfg *config.Config) *Wiring {
	return &Wiring{
		config:  cfg,
		logger:  log.Logger.With().Str("component", "wiring").Logger(),
		metrics: metrics.New(),
	}
}

func (w *Wiring) GetConfig() *config.Config {
	return w.config
}

func (w *Wiring) Metrics() *metrics.Metrics {
	return w.metrics
}

func (w *Wiring) InitGuard() *lock.FileGuard {
	if w.guard == nil {
		w.guard = lock.NewFileGuard(w.config.Paths.LockFile)
	}
	return w.guard
}

func (w *Wiring) InitJournal(ctx context.Context) (checkpoint.Journal, error) {
	if w.journal != nil {
		return w.journal, nil
	}

	switch w.config.Checkpoint.Backend {
	case config.CheckpointBackendPostgres:
		migration, err := migrations.NewPostgresMigration()
		if err != nil {
			return nil, err
		}
		store, err := db.NewPostgresDatastore(ctx, w.config.Checkpoint.Postgres, migration)
		if err != nil {
			return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
		}
		w.datastores = append(w.datastores, store)
		w.journal = checkpoint.NewPostgresJournal(store)
	default:
		w.journal = checkpoint.NewFileJournal(w.config.Paths.CheckpointFile)
	}

	w.logger.Info().Str("backend", string(w.config.Checkpoint.Backend)).Msg("Checkpoint journal ready")
	return w.journal, nil
}

// InitMonitor prepares a read-only pool for the secondary without contacting it, so an
// unreachable secondary is reported by the health check instead of failing startup. It returns
// nil without error when the deployment does not use replication.
func (w *Wiring) InitMonitor() (*replication.Monitor, error) {
	if w.config.Strategy != config.StrategyReplication {
		return nil, nil
	}
	if w.monitor != nil {
		return w.monitor, nil
	}

	store, err := db.OpenPostgresDatastore(&w.config.Secondary)
	if err != nil {
		return nil, fmt.Errorf("failed to open secondary database: %w", err)
	}
	w.datastores = append(w.datastores, store)

	w.monitor = replication.NewMonitor(
		replication.NewPostgresSlotQuerier(store.DB),
		w.config.Replication.SlotName,
		replication.WithLagWarningMB(w.config.Replication.LagWarningMB),
		replication.WithMetrics(w.metrics),
	)
	return w.monitor, nil
}

func (w *Wiring) InitStrategy() (orchestrator.Strategy, error) {
	runner := pipeline.NewExecRunner()

	switch w.config.Strategy {
	case config.StrategyReplication:
		monitor, err := w.InitMonitor()
		if err != nil {
			return nil, err
		}
		assets := pipeline.NewAssetSyncer(runner, w.config.AssetSync.Command, w.config.AssetSync.Args,
			w.config.AssetSync.Timeout)
		return orchestrator.NewReplicationStrategy(monitor, assets), nil
	case config.StrategyDumpRestore:
		cfg := w.config.Pipeline
		exporter := pipeline.NewExporter(runner, cfg.DumpBinary, &w.config.Primary, cfg.ExportTimeout)
		importer := pipeline.NewImporter(runner, cfg.RestoreBinary, &w.config.Secondary, cfg.ImportTimeout,
			cfg.OnErrorStop)
		return orchestrator.NewDumpRestoreStrategy(exporter, importer, w.config.Paths.StagingDir), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", w.config.Strategy)
	}
}

func (w *Wiring) InitOrchestrator(ctx context.Context) (*orchestrator.SyncOrchestrator, error) {
	if w.orchestrator != nil {
		return w.orchestrator, nil
	}

	journal, err := w.InitJournal(ctx)
	if err != nil {
		return nil, err
	}
	strategy, err := w.InitStrategy()
	if err != nil {
		return nil, err
	}

	w.orchestrator = orchestrator.NewSyncOrchestrator(w.InitGuard(), journal, strategy, w.metrics)
	return w.orchestrator, nil
}

func (w *Wiring) InitStatusService(ctx context.Context) (*status.Service, error) {
	orch, err := w.InitOrchestrator(ctx)
	if err != nil {
		return nil, err
	}
	monitor, err := w.InitMonitor()
	if err != nil {
		return nil, err
	}

	// a nil *Monitor must not become a non-nil interface
	if monitor == nil {
		return status.NewService(orch, w.journal, nil), nil
	}
	return status.NewService(orch, w.journal, monitor), nil
}

func (w *Wiring) InitScheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	orch, err := w.InitOrchestrator(ctx)
	if err != nil {
		return nil, err
	}
	return scheduler.NewScheduler(orch, w.config.Schedule.Interval, w.config.Schedule.RunOnStart), nil
}

func (w *Wiring) InitGateway(ctx context.Context, launcher *trigger.Launcher) (*api.Server, error) {
	orch, err := w.InitOrchestrator(ctx)
	if err != nil {
		return nil, err
	}
	statusSvc, err := w.InitStatusService(ctx)
	if err != nil {
		return nil, err
	}

	handler := api.NewHandler(statusSvc, trigger.NewService(orch, launcher), w.metrics)
	return api.NewServer(w.config.Gateway.ListenAddress, handler, w.config.Gateway.ShutdownTimeout), nil
}

func (w *Wiring) Close() error {
	var errs []error
	for _, store := range w.datastores {
		errs = append(errs, store.Close())
	}
	w.datastores = nil
	return errors.Join(errs...)
}
