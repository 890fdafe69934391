package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // this is required to register the pgx driver with database/sql
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/golang-migrate/migrate/v4"
	psqlmigrator "github.com/golang-migrate/migrate/v4/database/postgres"

	"shadow-sync/internal/config"
	"shadow-sync/pkg/db/migrations"
	"shadow-sync/pkg/log"
)

//nolint:gochecknoglobals
var (
	defaultHealthCheckPeriod = 1 * time.Minute
	defaultConnectTries      = uint(5)
)

type PostgresDatastore struct {
	DB                  *sqlx.DB
	migrationSource     migrations.MigrationSource
	healthCheckInterval *time.Ticker
	stopHealthCheckCh   chan struct{}
	stopHealthCheck     sync.Once
	healthCheckDone     sync.WaitGroup
	logger              zerolog.Logger
}

type PostgresConfig struct {
	*config.Postgres

	MinimumConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewPostgresDatastore connects to the database, retrying with exponential backoff while it
// comes up. A nil migrationSource skips schema management.
func NewPostgresDatastore(
	ctx context.Context,
	cfg *config.Postgres,
	migrationSource migrations.MigrationSource,
) (*PostgresDatastore, error) {
	connectionString := buildPostgresDSN(cfg)
	redactedConnectionString := redactDSN(connectionString)

	log.Logger.Info().Str("dsn", redactedConnectionString).Msg("Attempting to connect to PostgreSQL")

	db, err := backoff.Retry(ctx, func() (*sqlx.DB, error) {
		return sqlx.ConnectContext(ctx, "pgx", connectionString)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(defaultConnectTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Logger.Warn().Err(err).Str("dsn", redactedConnectionString).Dur("retry_in", next).
				Msg("PostgreSQL not reachable yet")
		}),
	)
	if err != nil {
		log.Logger.Error().Err(err).Str("dsn", redactedConnectionString).Msg("failed to connect to postgres")
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	log.Logger.Info().Str("dsn", redactedConnectionString).Msg("Successfully connected to PostgreSQL")
	psqlDB := newDatastore(cfg, db, migrationSource)

	if migrationSource == nil {
		return psqlDB, nil
	}
	if err := psqlDB.initSchema(); err != nil {
		_ = psqlDB.Close()
		return nil, err
	}
	return psqlDB, nil
}

// OpenPostgresDatastore prepares a connection pool without contacting the server. Connection
// errors surface on first use, so a database that is down at startup does not stop the caller.
func OpenPostgresDatastore(cfg *config.Postgres) (*PostgresDatastore, error) {
	connectionString := buildPostgresDSN(cfg)

	db, err := sqlx.Open("pgx", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}

	log.Logger.Info().Str("dsn", redactDSN(connectionString)).Msg("Opened PostgreSQL pool, connecting on first use")
	return newDatastore(cfg, db, nil), nil
}

func newDatastore(cfg *config.Postgres, db *sqlx.DB, migrationSource migrations.MigrationSource) *PostgresDatastore {
	poolConfig := defaultPoolConfig()
	poolConfig.Postgres = cfg
	setPoolConfig(poolConfig, db)

	psqlDB := &PostgresDatastore{
		DB:                  db,
		migrationSource:     migrationSource,
		healthCheckInterval: time.NewTicker(defaultHealthCheckPeriod),
		stopHealthCheckCh:   make(chan struct{}),
		logger: log.Logger.With().
			Str("component", "postgres_datastore").
			Str("database", cfg.DBName).
			Logger(),
	}
	psqlDB.startHealthCheck()
	return psqlDB
}

// Close stops the health check, waiting for an in-flight ping, and closes the pool. It is safe
// to call more than once.
func (p *PostgresDatastore) Close() error {
	if p.stopHealthCheckCh != nil {
		p.stopHealthCheck.Do(func() {
			close(p.stopHealthCheckCh)
		})
		p.healthCheckDone.Wait()
	}
	if p.DB != nil {
		p.logger.Info().Msg("Closing PostgreSQL connection")
		return p.DB.Close()
	}
	return nil
}

func redactDSN(dsnStr string) string {
	parsedDSN, err := url.Parse(dsnStr)
	if err != nil {
		return "<unparseable dsn>"
	}

	if parsedDSN.User != nil {
		username := parsedDSN.User.Username()
		parsedDSN.User = url.UserPassword(username, "xxxxx")
	}

	return parsedDSN.String()
}

func (p *PostgresDatastore) initSchema() error {
	p.logger.Info().Msg("Initializing database schema via embedded migrations...")
	d, err := p.migrationSource.GetSourceDriver()
	if err != nil {
		return err
	}

	driver, err := psqlmigrator.WithInstance(p.DB.DB, &psqlmigrator.Config{})
	if err != nil {
		p.logger.Error().Err(err).Msg("Could not create postgres driver for migrate")
		return fmt.Errorf("could not create postgres driver for migrate: %w", err)
	}

	m, err := migrate.NewWithInstance(p.migrationSource.GetSourceType(), d, p.DB.DriverName(), driver)
	if err != nil {
		p.logger.Error().Err(err).Msg("Could not create migrate instance")
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if upErr := m.Up(); upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		p.logger.Error().Err(upErr).Msg("Failed to apply migrations")
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	if err != nil {
		p.logger.Warn().Err(err).Msg("Could not get migration version after applying")
	} else {
		p.logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("Migrations applied")
	}
	return nil
}

func buildPostgresDSN(cfg *config.Postgres) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Path:   cfg.DBName,
	}
	query := dsn.Query()
	query.Set("sslmode", sslMode)
	dsn.RawQuery = query.Encode()

	return dsn.String()
}

//nolint:mnd
func defaultPoolConfig() PostgresConfig {
	return PostgresConfig{
		MinimumConns:    2,
		ConnMaxLifetime: 15 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

func setPoolConfig(cfg PostgresConfig, db *sqlx.DB) {
	db.SetMaxIdleConns(cfg.MinimumConns)
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Logger.Debug().
		Int("max_open", cfg.MaxConnections).
		Int("max_idle", cfg.MinimumConns).
		Dur("max_lifetime", cfg.ConnMaxLifetime).
		Dur("max_idle_time", cfg.ConnMaxIdleTime).
		Msg("Configured PostgreSQL connection pool")
}

//nolint:mnd
func (p *PostgresDatastore) startHealthCheck() {
	p.healthCheckDone.Add(1)
	go func() {
		defer p.healthCheckDone.Done()
		for {
			select {
			case <-p.healthCheckInterval.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := p.DB.PingContext(ctx); err != nil {
					p.logger.Warn().Err(err).Msg("Database health check failed")
				}
				cancel()
			case <-p.stopHealthCheckCh:
				p.healthCheckInterval.Stop()
				p.logger.Info().Msg("Stopped PostgreSQL health check")
				return
			}
		}
	}()

	p.logger.Debug().Msg("Started database health check")
}
