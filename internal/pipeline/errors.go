package pipeline

import "errors"

var (
	ErrExportFailed    = errors.New("export failed")
	ErrEmptyArtifact   = errors.New("export produced an empty artifact")
	ErrImportFailed    = errors.New("import failed")
	ErrStepTimeout     = errors.New("step timed out")
	ErrAssetSyncFailed = errors.New("asset sync failed")
)
