package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/regalsync/am"
	"github.com/teranos/regalsync/engine"
	"github.com/teranos/regalsync/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage regalsync configuration",
	Long: `am - Manage regalsync configuration ("I am")

Display and manage regalsync configuration settings.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (REGALSYNC_* prefix, also read from ./.env)
3. File given with --config
4. Project config (./am.toml, searched up the directory tree)
5. User config (~/.regalsync/am.toml)
6. System config (/etc/regalsync/config.toml)
7. Default values

Examples:
  regalsync am show                    # Show current configuration
  regalsync am show --format json      # Show configuration in JSON format
  regalsync am get repository.host     # Get specific config value
  regalsync am validate --mode SYNC    # Check the options SYNC needs
  regalsync am init                    # Write ./am.toml with defaults`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current regalsync configuration from all sources. The repository password is masked.",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., sync.namespace, repository.rps)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long: `Validate value ranges and, with --mode, that every option the mode
needs is set.`,
	RunE: runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Long:  "List the config files checked, lowest precedence first, and whether each exists.",
	RunE:  runAmWhere,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with default values",
	Long: `Write the default configuration as TOML, to ./am.toml unless a path is
given. An existing file is kept as .back1 (older copies rotate to .back3).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAmInit,
}

var (
	configFormat string
	validateMode string
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amValidateCmd.Flags().StringVar(&validateMode, "mode", "", "Also check the options required by this mode")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	redacted := cfg.Redacted()

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(redacted)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Printf("# regalsync configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(redacted)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Printf("# regalsync configuration\n%s", string(data))

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.Newf("configuration key %q not found", key)
	}
	if key == "repository.password" {
		fmt.Println("********")
		return nil
	}
	fmt.Println(v.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	if validateMode == "" {
		if err := cfg.Validate(); err != nil {
			return errors.Wrap(err, "configuration validation failed")
		}
		pterm.Success.Println("Configuration is valid")
		return nil
	}

	mode, err := engine.ParseMode(validateMode)
	if err != nil {
		return err
	}
	if err := cfg.ValidateForMode(string(mode)); err != nil {
		return err
	}
	pterm.Success.Printf("Configuration is valid for %s (%s)\n", mode, strings.Join(am.RequiredOptions(string(mode)), ", "))
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	fmt.Println("Configuration cascade (later overrides earlier):")
	fmt.Println("  [DEFAULT]  Built-in defaults")
	for _, path := range am.ConfigPaths() {
		status := "missing"
		if _, err := os.Stat(path); err == nil {
			status = "loaded"
		}
		fmt.Printf("  [%-7s]  %s\n", status, path)
	}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		fmt.Printf("  [FLAG]     %s\n", path)
	}
	fmt.Printf("  [ENV]      %s_* environment variables\n", am.EnvPrefix)
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := "am.toml"
	if len(args) == 1 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "invalid path %s", path)
	}
	if err := am.WriteConfig(abs, am.DefaultConfig()); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s\n", abs)
	return nil
}
