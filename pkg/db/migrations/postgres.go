package migrations

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const sourceTypeIOFS = "iofs"

// PostgresMigration serves the state database schema (the sync_checkpoint table) from files
// embedded in the binary.
type PostgresMigration struct {
	fs fs.FS
}

//go:embed postgres/*.sql
var PostgresFS embed.FS

func NewPostgresMigration() (*PostgresMigration, error) {
	subFS, err := fs.Sub(PostgresFS, "postgres")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded postgres migrations: %w", err)
	}
	return &PostgresMigration{fs: subFS}, nil
}

func (p *PostgresMigration) GetSourceType() string {
	return sourceTypeIOFS
}

func (p *PostgresMigration) GetSourceDriver() (source.Driver, error) {
	d, err := iofs.New(p.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	return d, nil
}
