package testutil

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"shadow-sync/internal/config"
)

const postgresImage = "postgres:16-alpine"

type PostgresHelper struct {
	Container *postgres.PostgresContainer
	Config    *config.Postgres
	hostPort  int
}

type PostgresOption func(*postgresOptions)

type postgresOptions struct {
	dbName  string
	cmdArgs []string
}

func WithDatabaseName(name string) PostgresOption {
	return func(o *postgresOptions) { o.dbName = name }
}

// WithLogicalReplication starts the server with wal_level=logical so replication slots can be
// created in tests.
func WithLogicalReplication() PostgresOption {
	return func(o *postgresOptions) {
		o.cmdArgs = append(o.cmdArgs, "-c", "wal_level=logical", "-c", "max_replication_slots=4")
	}
}

func NewPostgresContainer(ctx context.Context, opts ...PostgresOption) (*PostgresHelper, error) {
	options := &postgresOptions{dbName: "test_db"}
	for _, opt := range opts {
		opt(options)
	}

	dbUser := "testuser"
	dbPassword := "testpassword"

	hostPort, err := getPortManager().reservePort()
	if err != nil {
		return nil, err
	}

	customizers := []testcontainers.ContainerCustomizer{
		postgres.WithDatabase(options.dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		postgres.WithSQLDriver("pgx"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(1*time.Minute),
			wait.ForExposedPort().WithStartupTimeout(1*time.Minute),
		),
		testcontainers.WithHostConfigModifier(func(hostConfig *container.HostConfig) {
			hostConfig.PortBindings = nat.PortMap{
				nat.Port("5432/tcp"): []nat.PortBinding{{HostPort: strconv.Itoa(hostPort)}},
			}
		}),
	}
	if len(options.cmdArgs) > 0 {
		customizers = append(customizers, testcontainers.CustomizeRequestOption(
			func(req *testcontainers.GenericContainerRequest) error {
				req.Cmd = append(req.Cmd, options.cmdArgs...)
				return nil
			},
		))
	}

	pgContainer, err := postgres.Run(ctx, postgresImage, customizers...)
	if err != nil {
		getPortManager().releasePort(hostPort)
		return nil, fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}

	portNat, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	port, err := strconv.Atoi(portNat.Port())
	if err != nil {
		return nil, fmt.Errorf("failed to convert port to integer: %w", err)
	}

	return &PostgresHelper{
		Container: pgContainer,
		hostPort:  hostPort,
		Config: &config.Postgres{
			Address:  host,
			Port:     port,
			Username: dbUser,
			Password: dbPassword,
			DBName:   options.dbName,
			SSLMode:  "disable",
		},
	}, nil
}

// Exec runs statements directly against the container database, outside of any datastore.
func (p *PostgresHelper) Exec(ctx context.Context, statements ...string) error {
	connStr, err := p.Container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to build connection string: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, "pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer db.Close()

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to exec %q: %w", stmt, err)
		}
	}
	return nil
}

func (p *PostgresHelper) Terminate(ctx context.Context) error {
	defer getPortManager().releasePort(p.hostPort)
	if p.Container != nil {
		return p.Container.Terminate(ctx)
	}
	return nil
}

func (p *PostgresHelper) Stop(ctx context.Context, timeout *time.Duration) error {
	if p.Container != nil {
		return p.Container.Stop(ctx, timeout)
	}
	return nil
}

func (p *PostgresHelper) Start(ctx context.Context) error {
	if p.Container != nil {
		return p.Container.Start(ctx)
	}
	return nil
}
