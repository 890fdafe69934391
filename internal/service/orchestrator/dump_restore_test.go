package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"shadow-sync/internal/checkpoint"
	"shadow-sync/internal/config"
	"shadow-sync/internal/lock"
	"shadow-sync/internal/pipeline"
	"shadow-sync/testutil"
)

const fakeDump = `while [ $# -gt 0 ]; do
  if [ "$1" = "-f" ]; then out="$2"; fi
  shift
done
%s
`

const fakeRestore = `while [ $# -gt 0 ]; do
  if [ "$1" = "-f" ]; then in="$2"; fi
  shift
done
test -s "$in" || exit 9
%s
`

type dumpRestoreFixture struct {
	stagingDir string
	strategy   *DumpRestoreStrategy
}

func newDumpRestoreFixture(t *testing.T, dumpBody, restoreBody string) *dumpRestoreFixture {
	t.Helper()
	binDir := t.TempDir()
	stagingDir := filepath.Join(t.TempDir(), "sync")

	dumpBin := testutil.WriteScript(t, binDir, "pg_dump", strings.Replace(fakeDump, "%s", dumpBody, 1))
	restoreBin := testutil.WriteScript(t, binDir, "psql", strings.Replace(fakeRestore, "%s", restoreBody, 1))

	db := &config.Postgres{Address: "localhost", Port: 5432, Username: "u", Password: "p", DBName: "main"}
	runner := pipeline.NewExecRunner()
	exporter := pipeline.NewExporter(runner, dumpBin, db, 10*time.Second)
	importer := pipeline.NewImporter(runner, restoreBin, db, 10*time.Second, true)

	return &dumpRestoreFixture{
		stagingDir: stagingDir,
		strategy:   NewDumpRestoreStrategy(exporter, importer, stagingDir),
	}
}

func TestDumpRestoreStrategy(t *testing.T) {
	t.Run("notices from the restore do not fail the sync", func(t *testing.T) {
		f := newDumpRestoreFixture(t,
			`printf 'DROP TABLE IF EXISTS rooms;\nCREATE TABLE rooms (id int);\n' > "$out"`,
			`echo 'psql:main_db_dump.sql:3: NOTICE:  table "rooms" does not exist, skipping' >&2`,
		)

		outcome, err := f.strategy.Execute(context.Background(), nil)

		require.NoError(t, err)
		require.NotNil(t, outcome.DumpSizeBytes)
		assert.Positive(t, *outcome.DumpSizeBytes)
		assert.NoFileExists(t, f.strategy.ArtifactPath())
	})

	t.Run("empty export never reaches the import", func(t *testing.T) {
		f := newDumpRestoreFixture(t, `: > "$out"`, `exit 0`)
		importer := new(MockImporter)
		exporter := f.strategy.exporter
		strategy := NewDumpRestoreStrategy(exporter, importer, f.stagingDir)

		_, err := strategy.Execute(context.Background(), nil)

		require.ErrorIs(t, err, pipeline.ErrExportFailed)
		require.ErrorIs(t, err, pipeline.ErrEmptyArtifact)
		importer.AssertNotCalled(t, "Import", mock.Anything, mock.Anything)
		assert.NoFileExists(t, strategy.ArtifactPath())
	})

	t.Run("fatal restore fails and removes the artifact", func(t *testing.T) {
		f := newDumpRestoreFixture(t,
			`echo 'CREATE TABLE rooms (id int);' > "$out"`,
			`echo 'psql: error: FATAL:  password authentication failed for user "u"' >&2; exit 2`,
		)

		outcome, err := f.strategy.Execute(context.Background(), nil)

		require.ErrorIs(t, err, pipeline.ErrImportFailed)
		require.NotNil(t, outcome.DumpSizeBytes)
		assert.NoFileExists(t, f.strategy.ArtifactPath())
	})

	t.Run("failing export keeps the size unset", func(t *testing.T) {
		f := newDumpRestoreFixture(t, `echo 'pg_dump: error: connection refused' >&2; exit 1`, `exit 0`)

		outcome, err := f.strategy.Execute(context.Background(), nil)

		require.ErrorIs(t, err, pipeline.ErrExportFailed)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Nil(t, outcome.DumpSizeBytes)
	})

	t.Run("staging directory that cannot be created", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
		exporter := new(MockExporter)
		importer := new(MockImporter)
		strategy := NewDumpRestoreStrategy(exporter, importer, filepath.Join(blocker, "sync"))

		_, err := strategy.Execute(context.Background(), nil)

		require.Error(t, err)
		exporter.AssertNotCalled(t, "Export", mock.Anything, mock.Anything)
	})
}

func newEndToEndOrchestrator(t *testing.T, dir string, strategy Strategy) (*SyncOrchestrator, *checkpoint.FileJournal) {
	t.Helper()
	journal := checkpoint.NewFileJournal(filepath.Join(dir, "sync_checkpoint.json"))
	guard := lock.NewFileGuard(filepath.Join(dir, "sync.lock"))
	return NewSyncOrchestrator(guard, journal, strategy, nil), journal
}

func TestSyncOrchestratorEndToEnd(t *testing.T) {
	newOrchestrator := newEndToEndOrchestrator

	t.Run("records a successful full copy", func(t *testing.T) {
		f := newDumpRestoreFixture(t, `echo 'CREATE TABLE rooms (id int);' > "$out"`, `exit 0`)
		orch, journal := newOrchestrator(t, f.stagingDir, f.strategy)

		result, err := orch.RunSync(context.Background())

		require.NoError(t, err)
		assert.Equal(t, ResultSuccess, result.Status)

		cp, err := journal.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, checkpoint.StatusSuccess, cp.LastSyncStatus)
		assert.Equal(t, int64(1), cp.TotalSyncs)
		require.NotNil(t, cp.LastDumpSizeBytes)
		assert.Equal(t, *result.DumpSizeBytes, *cp.LastDumpSizeBytes)

		running, err := orch.IsRunning()
		require.NoError(t, err)
		assert.False(t, running)
	})

	t.Run("records a failed full copy and frees the lock", func(t *testing.T) {
		f := newDumpRestoreFixture(t, `: > "$out"`, `exit 0`)
		orch, journal := newOrchestrator(t, f.stagingDir, f.strategy)

		result, err := orch.RunSync(context.Background())

		require.NoError(t, err)
		assert.Equal(t, ResultFailed, result.Status)

		cp, err := journal.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, checkpoint.StatusFailed, cp.LastSyncStatus)
		assert.Equal(t, int64(1), cp.FailedSyncs)
		assert.Equal(t, int64(0), cp.TotalSyncs)
		require.NotNil(t, cp.LastError)
		assert.Contains(t, *cp.LastError, "empty")

		running, err := orch.IsRunning()
		require.NoError(t, err)
		assert.False(t, running)
	})

	t.Run("overlapping triggers run the strategy once", func(t *testing.T) {
		dir := t.TempDir()
		entered := make(chan struct{})
		proceed := make(chan struct{})
		var executions atomic.Int32

		strategy := new(MockStrategy)
		strategy.On("Execute", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			if executions.Add(1) == 1 {
				close(entered)
			}
			<-proceed
		}).Return(&Outcome{}, nil)

		first, _ := newOrchestrator(t, dir, strategy)
		var (
			firstResult *SyncResult
			firstErr    error
			done        = make(chan struct{})
		)
		go func() {
			defer close(done)
			firstResult, firstErr = first.RunSync(context.Background())
		}()
		<-entered

		const contenders = 8
		results := make([]*SyncResult, contenders)
		var wg sync.WaitGroup
		for i := range contenders {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				orch, _ := newOrchestrator(t, dir, strategy)
				result, err := orch.RunSync(context.Background())
				assert.NoError(t, err)
				results[i] = result
			}(i)
		}
		wg.Wait()
		close(proceed)
		<-done

		require.NoError(t, firstErr)
		assert.Equal(t, ResultSuccess, firstResult.Status)
		for _, r := range results {
			assert.Equal(t, ResultSkipped, r.Status)
			assert.Equal(t, ReasonAlreadyRunning, r.Reason)
		}
		assert.Equal(t, int32(1), executions.Load())

		cp, err := checkpoint.NewFileJournal(filepath.Join(dir, "sync_checkpoint.json")).Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), cp.TotalSyncs)
	})

	t.Run("panicking strategy is recorded", func(t *testing.T) {
		dir := t.TempDir()
		strategy := new(MockStrategy)
		strategy.On("Execute", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			panic(errors.New("index out of range"))
		})
		orch, journal := newOrchestrator(t, dir, strategy)

		result, err := orch.RunSync(context.Background())

		require.NoError(t, err)
		assert.Equal(t, ResultFailed, result.Status)
		cp, err := journal.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), cp.FailedSyncs)

		again, err := orch.RunSync(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ResultFailed, again.Status)
	})
}
