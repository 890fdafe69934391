package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAssetSyncer_Sync(t *testing.T) {
	ctx := context.Background()
	startedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	newSyncer := func(runner Runner) *AssetSyncer {
		s := NewAssetSyncer(runner, "/opt/sync_media.sh", []string{"--transfers", "8"}, time.Hour)
		s.now = func() time.Time { return startedAt }
		return s
	}

	t.Run("first run copies everything", func(t *testing.T) {
		runner := new(MockRunner)
		runner.On("Run", mock.Anything, Command{
			Name:    "/opt/sync_media.sh",
			Args:    []string{"--transfers", "8"},
			Timeout: time.Hour,
		}).Return(&CommandResult{}, nil)

		mark, err := newSyncer(runner).Sync(ctx, nil)

		require.NoError(t, err)
		assert.Equal(t, startedAt, mark)
		runner.AssertExpectations(t)
	})

	t.Run("later runs pass the previous high-water mark", func(t *testing.T) {
		since := time.Date(2025, 5, 31, 22, 30, 0, 0, time.FixedZone("CEST", 2*60*60))
		runner := new(MockRunner)
		runner.On("Run", mock.Anything, Command{
			Name:    "/opt/sync_media.sh",
			Args:    []string{"--transfers", "8", "--since", "2025-05-31T20:30:00Z"},
			Timeout: time.Hour,
		}).Return(&CommandResult{}, nil)

		mark, err := newSyncer(runner).Sync(ctx, &since)

		require.NoError(t, err)
		assert.Equal(t, startedAt, mark)
		runner.AssertExpectations(t)
	})

	t.Run("non-zero exit fails", func(t *testing.T) {
		runner := new(MockRunner)
		runner.On("Run", mock.Anything, mock.Anything).Return(&CommandResult{ExitCode: 5, Stderr: "rclone: quota"}, nil)

		_, err := newSyncer(runner).Sync(ctx, nil)

		require.ErrorIs(t, err, ErrAssetSyncFailed)
		assert.Contains(t, err.Error(), "quota")
	})

	t.Run("configured args are not mutated between runs", func(t *testing.T) {
		since := startedAt.Add(-time.Hour)
		runner := new(MockRunner)
		runner.On("Run", mock.Anything, mock.Anything).Return(&CommandResult{}, nil)
		syncer := newSyncer(runner)

		_, err := syncer.Sync(ctx, &since)
		require.NoError(t, err)

		assert.Equal(t, []string{"--transfers", "8"}, syncer.args)
	})
}
