package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Strategy string

const (
	StrategyDumpRestore Strategy = "dump_restore"
	StrategyReplication Strategy = "replication"
)

type CheckpointBackend string

const (
	CheckpointBackendFile     CheckpointBackend = "file"
	CheckpointBackendPostgres CheckpointBackend = "postgres"
)

// Config is the full configuration of a shadow-sync deployment.
type Config struct {
	ID          string            `mapstructure:"id" json:"id" yaml:"id" validate:"required"`
	LogLevel    string            `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	Strategy    Strategy          `mapstructure:"strategy" json:"strategy" yaml:"strategy" validate:"required,oneof=dump_restore replication"`
	Primary     Postgres          `mapstructure:"primary" json:"primary" yaml:"primary"`
	Secondary   Postgres          `mapstructure:"secondary" json:"secondary" yaml:"secondary"`
	Paths       Paths             `mapstructure:"paths" json:"paths" yaml:"paths"`
	Checkpoint  CheckpointConfig  `mapstructure:"checkpoint" json:"checkpoint" yaml:"checkpoint"`
	Pipeline    Pipeline          `mapstructure:"pipeline" json:"pipeline" yaml:"pipeline"`
	Replication Replication       `mapstructure:"replication" json:"replication" yaml:"replication"`
	AssetSync   AssetSync         `mapstructure:"asset_sync" json:"asset_sync" yaml:"asset_sync"`
	Gateway     Gateway           `mapstructure:"gateway" json:"gateway" yaml:"gateway"`
	Schedule    Schedule          `mapstructure:"schedule" json:"schedule" yaml:"schedule"`
}

// Postgres describes one PostgreSQL endpoint.
type Postgres struct {
	Address        string `mapstructure:"address" json:"address" yaml:"address" validate:"required,hostname_rfc1123|ip"`
	Port           int    `mapstructure:"port" json:"port" yaml:"port" validate:"required,gt=0,lt=65536"`
	Username       string `mapstructure:"username" json:"username" yaml:"username" validate:"required"`
	Password       string `mapstructure:"password" json:"-" yaml:"-"`
	DBName         string `mapstructure:"db_name" json:"db_name" yaml:"db_name" validate:"required"`
	SSLMode        string `mapstructure:"ssl_mode" json:"ssl_mode" yaml:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxConnections int    `mapstructure:"max_connections" json:"max_connections" yaml:"max_connections" validate:"gte=0"`
}

type Paths struct {
	StagingDir     string `mapstructure:"staging_dir" json:"staging_dir" yaml:"staging_dir" validate:"required"`
	LockFile       string `mapstructure:"lock_file" json:"lock_file" yaml:"lock_file" validate:"required"`
	CheckpointFile string `mapstructure:"checkpoint_file" json:"checkpoint_file" yaml:"checkpoint_file" validate:"required"`
}

type CheckpointConfig struct {
	Backend  CheckpointBackend `mapstructure:"backend" json:"backend" yaml:"backend" validate:"required,oneof=file postgres"`
	Postgres *Postgres         `mapstructure:"postgres" json:"postgres,omitempty" yaml:"postgres,omitempty" validate:"-"`
}

type Pipeline struct {
	DumpBinary    string        `mapstructure:"dump_binary" json:"dump_binary" yaml:"dump_binary" validate:"required"`
	RestoreBinary string        `mapstructure:"restore_binary" json:"restore_binary" yaml:"restore_binary" validate:"required"`
	ExportTimeout time.Duration `mapstructure:"export_timeout" json:"export_timeout" yaml:"export_timeout" validate:"gt=0"`
	ImportTimeout time.Duration `mapstructure:"import_timeout" json:"import_timeout" yaml:"import_timeout" validate:"gt=0"`
	OnErrorStop   bool          `mapstructure:"on_error_stop" json:"on_error_stop" yaml:"on_error_stop"`
}

type Replication struct {
	SlotName     string  `mapstructure:"slot_name" json:"slot_name" yaml:"slot_name"`
	LagWarningMB float64 `mapstructure:"lag_warning_mb" json:"lag_warning_mb" yaml:"lag_warning_mb" validate:"gte=0"`
}

type AssetSync struct {
	Command string        `mapstructure:"command" json:"command" yaml:"command"`
	Args    []string      `mapstructure:"args" json:"args" yaml:"args"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout" validate:"gt=0"`
}

type Gateway struct {
	ListenAddress   string        `mapstructure:"listen_address" json:"listen_address" yaml:"listen_address" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
}

type Schedule struct {
	Enabled    bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Interval   time.Duration `mapstructure:"interval" json:"interval" yaml:"interval" validate:"required_if=Enabled true"`
	RunOnStart bool          `mapstructure:"run_on_start" json:"run_on_start" yaml:"run_on_start"`
}

//nolint:mnd
func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("strategy", string(StrategyDumpRestore))
	viper.SetDefault("paths.staging_dir", "/var/lib/shadow-sync/sync")
	viper.SetDefault("paths.lock_file", "/var/lib/shadow-sync/sync/sync.lock")
	viper.SetDefault("paths.checkpoint_file", "/var/lib/shadow-sync/sync/sync_checkpoint.json")
	viper.SetDefault("checkpoint.backend", string(CheckpointBackendFile))
	viper.SetDefault("pipeline.dump_binary", "pg_dump")
	viper.SetDefault("pipeline.restore_binary", "psql")
	viper.SetDefault("pipeline.export_timeout", time.Hour)
	viper.SetDefault("pipeline.import_timeout", 2*time.Hour)
	viper.SetDefault("pipeline.on_error_stop", true)
	viper.SetDefault("replication.lag_warning_mb", 100)
	viper.SetDefault("asset_sync.timeout", time.Hour)
	viper.SetDefault("gateway.listen_address", ":8080")
	viper.SetDefault("gateway.shutdown_timeout", 30*time.Second)
	viper.SetDefault("schedule.interval", 15*time.Minute)
}

//nolint:gochecknoglobals
var envKeys = []string{
	"id", "log_level", "strategy",
	"primary.address", "primary.port", "primary.username", "primary.password", "primary.db_name",
	"primary.ssl_mode", "primary.max_connections",
	"secondary.address", "secondary.port", "secondary.username", "secondary.password", "secondary.db_name",
	"secondary.ssl_mode", "secondary.max_connections",
	"paths.staging_dir", "paths.lock_file", "paths.checkpoint_file",
	"checkpoint.backend",
	"checkpoint.postgres.address", "checkpoint.postgres.port", "checkpoint.postgres.username",
	"checkpoint.postgres.password", "checkpoint.postgres.db_name", "checkpoint.postgres.ssl_mode",
	"checkpoint.postgres.max_connections",
	"pipeline.dump_binary", "pipeline.restore_binary", "pipeline.export_timeout", "pipeline.import_timeout",
	"pipeline.on_error_stop",
	"replication.slot_name", "replication.lag_warning_mb",
	"asset_sync.command", "asset_sync.args", "asset_sync.timeout",
	"gateway.listen_address", "gateway.shutdown_timeout",
	"schedule.enabled", "schedule.interval", "schedule.run_on_start",
}

// KeyReplacer maps nested keys (primary.address) to env var names (PRIMARY_ADDRESS).
func KeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

// bindEnv makes every known key resolvable from the environment even when no config
// file mentions it, so deployments can be configured from env vars alone.
func bindEnv() {
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}
}

// NewConfig builds the configuration from whatever viper has loaded (file, env, flags)
// and validates it.
func NewConfig() (*Config, error) {
	setDefaults()
	bindEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Load reads the config file (if one is configured) and builds the configuration.
func Load() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return NewConfig()
}

func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	var messages []string
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return fmt.Errorf("failed to validate config: %w", err)
		}
		for _, fe := range validationErrors {
			messages = append(messages, describeFieldError(fe))
		}
	}
	messages = append(messages, c.validateStrategy(validate)...)

	if len(messages) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(messages, ", "))
	}
	return nil
}

// validateStrategy checks the fields whose requirement depends on the selected strategy
// or checkpoint backend.
func (c *Config) validateStrategy(validate *validator.Validate) []string {
	var messages []string

	if c.Strategy == StrategyReplication {
		if c.Replication.SlotName == "" {
			messages = append(messages, "Config.Replication.SlotName is required when strategy is replication")
		}
		if c.AssetSync.Command == "" {
			messages = append(messages, "Config.AssetSync.Command is required when strategy is replication")
		}
	}

	if c.Checkpoint.Backend == CheckpointBackendPostgres {
		if c.Checkpoint.Postgres == nil {
			messages = append(messages, "Config.Checkpoint.Postgres is required when backend is postgres")
		} else if err := validate.Struct(c.Checkpoint.Postgres); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				for _, fe := range validationErrors {
					messages = append(messages, "Config.Checkpoint."+describeFieldError(fe))
				}
			}
		} else if c.Checkpoint.Postgres.Address == c.Secondary.Address &&
			c.Checkpoint.Postgres.Port == c.Secondary.Port &&
			c.Checkpoint.Postgres.DBName == c.Secondary.DBName {
			messages = append(messages, "Config.Checkpoint.Postgres must not point at the secondary database")
		}
	}

	return messages
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "hostname_rfc1123|ip":
		return fmt.Sprintf("%s must be a valid hostname or IP address", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed on the '%s' rule", field, fe.Tag())
	}
}
