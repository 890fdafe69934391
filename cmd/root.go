package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shadow-sync/cmd/configprint"
	"shadow-sync/cmd/replication"
	"shadow-sync/cmd/serve"
	"shadow-sync/cmd/status"
	"shadow-sync/cmd/sync"
	"shadow-sync/cmd/version"
	"shadow-sync/internal/config"
	"shadow-sync/pkg/log"
)

var (
	cfgFile string
	envFile string
)

const (
	cfgFlagName = "config"
	envFlagName = "env-file"
)

var RootCmd = &cobra.Command{
	Use:   "shadow-sync",
	Short: "shadow-sync keeps a hidden secondary database in step with the primary",
	Long: `shadow-sync copies a primary PostgreSQL database into an isolated secondary instance,
either with a full dump and restore or by checking logical replication and copying assets.
It guarantees a single sync at a time and records the outcome of every attempt.`,
	SilenceUsage: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d, b string) {
	version.SetVersionInfo(v, c, d, b)
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVarP(&cfgFile, cfgFlagName, "c", "", "path to config file")
	RootCmd.PersistentFlags().StringVar(&envFile, envFlagName, ".env", "path to a .env file loaded before the environment")
	_ = viper.BindPFlag(cfgFlagName, RootCmd.PersistentFlags().Lookup(cfgFlagName))

	RootCmd.AddCommand(sync.SyncCmd)
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(status.StatusCmd)
	RootCmd.AddCommand(replication.ReplicationCmd)
	RootCmd.AddCommand(configprint.ConfigPrintCmd)
	RootCmd.AddCommand(version.VersionCmd)
}

func initConfig() {
	// a missing .env is the normal case outside local development
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		log.Logger.Warn().Err(err).Str("file", envFile).Msg("Failed to load env file")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")                  // For running from project root
		viper.AddConfigPath("/etc/shadow-sync/")  // For production
		viper.AddConfigPath("$HOME/.shadow-sync") // For user-specific config
	}
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("shadow_sync")
	viper.SetEnvKeyReplacer(config.KeyReplacer())
	viper.AutomaticEnv()
}
