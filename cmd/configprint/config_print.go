package configprint

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"shadow-sync/cmd/common"
	"shadow-sync/internal/config"
	"shadow-sync/pkg/log"
)

var (
	sectionFlag string
	formatFlag  string
)

var ConfigPrintCmd = &cobra.Command{
	Use:   "config-print",
	Short: "Print the current configuration",
	Long: `Print the loaded configuration or a specific section of it.
Passwords are never printed. Supports YAML and JSON output formats.`,
	Example: `  # Print entire config
  shadow-sync config-print

  # Print specific section
  shadow-sync config-print --section primary
  shadow-sync config-print --section pipeline

  # Print in JSON format
  shadow-sync config-print --section replication --format json`,
	RunE: run,
}

func init() {
	ConfigPrintCmd.Flags().StringVarP(&sectionFlag, "section", "s", "",
		"print only a specific section ("+strings.Join(sectionNames(), ", ")+")")
	ConfigPrintCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml",
		"output format (yaml|json)")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := common.LoadConfig()
	if err != nil {
		log.Logger.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	logger := log.WithComponent("config_print")

	var output interface{} = cfg
	if sectionFlag != "" {
		output, err = getSection(cfg, sectionFlag)
		if err != nil {
			logger.Error().Err(err).Str("section", sectionFlag).Msg("Invalid section")
			return err
		}
	}

	return write(cmd.OutOrStdout(), output, formatFlag)
}

//nolint:gochecknoglobals
var sections = map[string]func(cfg *config.Config) interface{}{
	"id":          func(cfg *config.Config) interface{} { return map[string]string{"id": cfg.ID} },
	"log_level":   func(cfg *config.Config) interface{} { return map[string]string{"log_level": cfg.LogLevel} },
	"strategy":    func(cfg *config.Config) interface{} { return map[string]config.Strategy{"strategy": cfg.Strategy} },
	"primary":     func(cfg *config.Config) interface{} { return cfg.Primary },
	"secondary":   func(cfg *config.Config) interface{} { return cfg.Secondary },
	"paths":       func(cfg *config.Config) interface{} { return cfg.Paths },
	"checkpoint":  func(cfg *config.Config) interface{} { return cfg.Checkpoint },
	"pipeline":    func(cfg *config.Config) interface{} { return cfg.Pipeline },
	"replication": func(cfg *config.Config) interface{} { return cfg.Replication },
	"asset_sync":  func(cfg *config.Config) interface{} { return cfg.AssetSync },
	"gateway":     func(cfg *config.Config) interface{} { return cfg.Gateway },
	"schedule":    func(cfg *config.Config) interface{} { return cfg.Schedule },
}

func sectionNames() []string {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func getSection(cfg *config.Config, section string) (interface{}, error) {
	getter, ok := sections[section]
	if !ok {
		return nil, fmt.Errorf("unknown section: %s (valid: %s)", section, strings.Join(sectionNames(), ", "))
	}
	return getter(cfg), nil
}

func write(out io.Writer, data interface{}, format string) error {
	switch format {
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(data); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return encoder.Close()
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", format)
	}
}
