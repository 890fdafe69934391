package orchestrator

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"shadow-sync/internal/checkpoint"
	"shadow-sync/internal/config"
	"shadow-sync/internal/pipeline"
	"shadow-sync/internal/replication"
)

type MockGuard struct {
	mock.Mock
}

func (m *MockGuard) TryAcquire() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func (m *MockGuard) Release() error {
	return m.Called().Error(0)
}

func (m *MockGuard) IsHeld() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) Read(ctx context.Context) (*checkpoint.SyncCheckpoint, error) {
	args := m.Called(ctx)
	cp, _ := args.Get(0).(*checkpoint.SyncCheckpoint)
	return cp, args.Error(1)
}

func (m *MockJournal) RecordSuccess(ctx context.Context, record checkpoint.SuccessRecord) (*checkpoint.SyncCheckpoint, error) {
	args := m.Called(ctx, record)
	cp, _ := args.Get(0).(*checkpoint.SyncCheckpoint)
	return cp, args.Error(1)
}

func (m *MockJournal) RecordFailure(ctx context.Context, message string) (*checkpoint.SyncCheckpoint, error) {
	args := m.Called(ctx, message)
	cp, _ := args.Get(0).(*checkpoint.SyncCheckpoint)
	return cp, args.Error(1)
}

type MockStrategy struct {
	mock.Mock
}

func (m *MockStrategy) Name() config.Strategy {
	return config.StrategyDumpRestore
}

func (m *MockStrategy) Execute(ctx context.Context, cp *checkpoint.SyncCheckpoint) (*Outcome, error) {
	args := m.Called(ctx, cp)
	outcome, _ := args.Get(0).(*Outcome)
	return outcome, args.Error(1)
}

type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) Export(ctx context.Context, artifactPath string) (int64, error) {
	args := m.Called(ctx, artifactPath)
	return args.Get(0).(int64), args.Error(1)
}

type MockImporter struct {
	mock.Mock
}

func (m *MockImporter) Import(ctx context.Context, artifactPath string) (*pipeline.ImportReport, error) {
	args := m.Called(ctx, artifactPath)
	report, _ := args.Get(0).(*pipeline.ImportReport)
	return report, args.Error(1)
}

type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) CheckHealth(ctx context.Context) (bool, *replication.Status) {
	args := m.Called(ctx)
	status, _ := args.Get(1).(*replication.Status)
	return args.Bool(0), status
}

type MockAssetSyncer struct {
	mock.Mock
}

func (m *MockAssetSyncer) Sync(ctx context.Context, since *time.Time) (time.Time, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(time.Time), args.Error(1)
}
